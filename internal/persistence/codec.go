package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/rewind/pkg/api"
)

// History events carry arbitrary workflow payloads in their any-typed
// fields, so serialization uses encoding/gob with interface encoding.
// Concrete payload types must be gob-registered by the package that owns
// them (a workflow package typically does this in init).

// EncodeEvent gob-encodes a single history event.
func EncodeEvent(ev api.HistoryEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent gob-decodes a single history event.
func DecodeEvent(data []byte) (api.HistoryEvent, error) {
	var ev api.HistoryEvent
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev); err != nil {
		return api.HistoryEvent{}, err
	}
	return ev, nil
}

// EncodeValue serializes an arbitrary payload (instance input or output).
// nil encodes to nil.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	// Encode through an interface so DecodeValue can decode into any.
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
