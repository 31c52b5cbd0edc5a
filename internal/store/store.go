// Package store persists and validates the three JSON files a
// blocknode process keeps in its config directory: config.json,
// node_state.json, and metadata.json (spec.md §6's filesystem
// layout). Each is schema-validated before being unmarshaled into its
// Go shape, giving ErrConfigInvalid a precise trigger.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/paths"
)

// Config is the shape of config.json.
type Config struct {
	CapacityMB int `json:"capacity_mb"`
	Port       int `json:"port"`
}

// NodeState is the shape of node_state.json, absent on first run.
type NodeState struct {
	NodeID  int    `json:"node_id"`
	GroupID string `json:"group_id"`
}

// fileMeta is one entry of metadata.json's "files" object.
type fileMeta struct {
	SizeBytes  int64  `json:"size"`
	NumBlocks  int    `json:"num_blocks"`
	UploadDate string `json:"upload_date"`
	Blocks     []int  `json:"blocks"`
}

// metadataDoc is the shape of metadata.json.
type metadataDoc struct {
	Files map[string]fileMeta `json:"files"`
}

var (
	configValidator    = compile("config.json", configSchema)
	nodeStateValidator = compile("node_state.json", nodeStateSchema)
	metadataValidator  = compile("metadata.json", metadataSchema)
)

func compile(name, schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(schemaJSON)))
	if err != nil {
		panic(fmt.Sprintf("store: invalid embedded schema %s: %v", name, err))
	}
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("store: add schema resource %s: %v", name, err))
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("store: compile schema %s: %v", name, err))
	}
	return sch
}

func validate(sch *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}
	return nil
}

// LoadConfig reads and validates config.json.
func LoadConfig(p paths.Paths) (Config, error) {
	data, err := os.ReadFile(p.ConfigFile())
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config.json: %v", errs.ErrConfigInvalid, err)
	}
	if err := validate(configValidator, data); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config.json: %v", errs.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// SaveConfig validates and writes cfg to config.json.
func SaveConfig(p paths.Paths, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode config.json: %v", errs.ErrConfigInvalid, err)
	}
	if err := validate(configValidator, data); err != nil {
		return err
	}
	if err := p.EnsureDirs(); err != nil {
		return fmt.Errorf("%w: mkdir config dir: %v", errs.ErrBlockIOLocal, err)
	}
	if err := os.WriteFile(p.ConfigFile(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write config.json: %v", errs.ErrBlockIOLocal, err)
	}
	return nil
}

// LoadNodeState reads node_state.json. Absence is not an error: it
// returns the zero value and ok=false for a process's first run.
func LoadNodeState(p paths.Paths) (NodeState, bool, error) {
	data, err := os.ReadFile(p.NodeStateFile())
	if os.IsNotExist(err) {
		return NodeState{}, false, nil
	}
	if err != nil {
		return NodeState{}, false, fmt.Errorf("%w: read node_state.json: %v", errs.ErrBlockIOLocal, err)
	}
	if err := validate(nodeStateValidator, data); err != nil {
		return NodeState{}, false, err
	}
	var st NodeState
	if err := json.Unmarshal(data, &st); err != nil {
		return NodeState{}, false, fmt.Errorf("%w: decode node_state.json: %v", errs.ErrConfigInvalid, err)
	}
	return st, true, nil
}

// SaveNodeState validates and writes st to node_state.json.
func SaveNodeState(p paths.Paths, st NodeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode node_state.json: %v", errs.ErrConfigInvalid, err)
	}
	if err := validate(nodeStateValidator, data); err != nil {
		return err
	}
	if err := p.EnsureDirs(); err != nil {
		return fmt.Errorf("%w: mkdir config dir: %v", errs.ErrBlockIOLocal, err)
	}
	if err := os.WriteFile(p.NodeStateFile(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write node_state.json: %v", errs.ErrBlockIOLocal, err)
	}
	return nil
}

// LoadMetadata reads metadata.json into file registry records. A
// missing file is treated as an empty registry.
func LoadMetadata(p paths.Paths) ([]filetable.Record, error) {
	data, err := os.ReadFile(p.MetadataFile())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata.json: %v", errs.ErrBlockIOLocal, err)
	}
	if err := validate(metadataValidator, data); err != nil {
		return nil, err
	}
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode metadata.json: %v", errs.ErrConfigInvalid, err)
	}

	records := make([]filetable.Record, 0, len(doc.Files))
	for name, m := range doc.Files {
		uploadTime, err := time.Parse(time.RFC3339, m.UploadDate)
		if err != nil {
			return nil, fmt.Errorf("%w: parse upload_date for %q: %v", errs.ErrConfigInvalid, name, err)
		}
		records = append(records, filetable.Record{
			FileName:   name,
			SizeBytes:  m.SizeBytes,
			NumBlocks:  m.NumBlocks,
			UploadTime: uploadTime,
			BlockIDs:   m.Blocks,
		})
	}
	return records, nil
}

// SaveMetadata validates and writes records to metadata.json.
func SaveMetadata(p paths.Paths, records []filetable.Record) error {
	doc := metadataDoc{Files: make(map[string]fileMeta, len(records))}
	for _, r := range records {
		doc.Files[r.FileName] = fileMeta{
			SizeBytes:  r.SizeBytes,
			NumBlocks:  r.NumBlocks,
			UploadDate: r.UploadTime.UTC().Format(time.RFC3339),
			Blocks:     r.BlockIDs,
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode metadata.json: %v", errs.ErrConfigInvalid, err)
	}
	if err := validate(metadataValidator, data); err != nil {
		return err
	}
	if err := p.EnsureDirs(); err != nil {
		return fmt.Errorf("%w: mkdir config dir: %v", errs.ErrBlockIOLocal, err)
	}
	if err := os.WriteFile(p.MetadataFile(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write metadata.json: %v", errs.ErrBlockIOLocal, err)
	}
	return nil
}
