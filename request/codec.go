package request

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/bystander/id"
)

// Marshal encodes r as the JSON record stored under its ID. The ID itself
// is the store key and is not part of the value.
func Marshal(r *Request) ([]byte, error) {
	if r.Rejected == nil {
		cp := *r
		cp.Rejected = []string{}
		r = &cp
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("request: marshal %s: %w", r.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a stored record and attaches requestID to it.
func Unmarshal(requestID id.RequestID, data []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("request: unmarshal %s: %w", requestID, err)
	}
	r.ID = requestID
	if r.Rejected == nil {
		r.Rejected = []string{}
	}
	return &r, nil
}
