package comm

import (
	"encoding/json"
	"fmt"
)

// Encode renders an envelope as JSON. Non-finite values cannot be encoded.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("comm: encode: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("comm: decode: %w", err)
	}
	return env, nil
}
