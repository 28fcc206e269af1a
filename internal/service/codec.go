package service

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// Codec carries plain Go structs as JSON. It replaces Connect's protobuf JSON
// codec, which only accepts generated messages.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name matches the "application/json" content type.
func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
