package controlplane

import "blocknode/internal/wire"

func okResp() wire.PayloadCtlResponse {
	return wire.PayloadCtlResponse{Ok: true}
}

func errResp(err error) wire.PayloadCtlResponse {
	return wire.PayloadCtlResponse{Ok: false, Error: err.Error()}
}

func dataResp(data any) wire.PayloadCtlResponse {
	raw, err := marshal(data)
	if err != nil {
		return errResp(err)
	}
	return wire.PayloadCtlResponse{Ok: true, Data: raw}
}
