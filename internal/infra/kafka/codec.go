package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPayload 消息体为空 (tombstone)
var ErrEmptyPayload = errors.New("kafka: empty payload")

// EncodeJSON 消息体统一使用 JSON
func EncodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode %T: %w", v, err)
	}
	return b, nil
}

func DecodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("kafka: decode into %T: %w", v, err)
	}
	return nil
}
