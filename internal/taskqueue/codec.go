package taskqueue

import (
	"bytes"
	"encoding/gob"
)

// Activity inputs are any-typed, so the durable queue stores them via
// encoding/gob interface encoding. Concrete payload types must be
// gob-registered by the package that owns them.

func encodeInput(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeInput(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
