package store

// Schemas are embedded JSON Schema documents (draft 2020-12) for the
// three files this package persists. Validating shape before
// unmarshal gives ErrConfigInvalid a precise trigger instead of ad
// hoc field checks scattered across callers.
const (
	configSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["capacity_mb", "port"],
		"properties": {
			"capacity_mb": {"type": "integer", "minimum": 50, "maximum": 100},
			"port": {"type": "integer", "minimum": 1, "maximum": 65535}
		},
		"additionalProperties": false
	}`

	nodeStateSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["node_id", "group_id"],
		"properties": {
			"node_id": {"type": "integer", "minimum": 1},
			"group_id": {"type": "string"}
		},
		"additionalProperties": false
	}`

	metadataSchema = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["files"],
		"properties": {
			"files": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["size", "num_blocks", "upload_date", "blocks"],
					"properties": {
						"size": {"type": "integer", "minimum": 0},
						"num_blocks": {"type": "integer", "minimum": 1},
						"upload_date": {"type": "string"},
						"blocks": {"type": "array", "items": {"type": "integer"}}
					},
					"additionalProperties": false
				}
			}
		},
		"additionalProperties": false
	}`
)
