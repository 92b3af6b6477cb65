package persistence

import (
	"testing"

	"github.com/petrijr/rewind/pkg/api"
)

func TestEventCodecRoundTrip(t *testing.T) {
	ev := api.NewActivityScheduled(3, "Check", samplePayload{Msg: "in", N: 9})

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if got.Type != ev.Type || got.Seq != 3 || got.Activity != "Check" {
		t.Fatalf("decoded = %+v", got)
	}
	in, ok := got.Input.(samplePayload)
	if !ok || in != ev.Input.(samplePayload) {
		t.Fatalf("decoded input = %#v", got.Input)
	}
}

func TestValueCodecNil(t *testing.T) {
	data, err := EncodeValue(nil)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	if data != nil {
		t.Fatalf("nil must encode to nil, got %v", data)
	}
	v, err := DecodeValue(nil)
	if err != nil || v != nil {
		t.Fatalf("DecodeValue(nil) = %v, %v", v, err)
	}
}

func TestValueCodecRoundTrip(t *testing.T) {
	for _, v := range []any{"confirmed", 42, true, samplePayload{Msg: "x", N: 1}} {
		data, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("EncodeValue(%v) failed: %v", v, err)
		}
		got, err := DecodeValue(data)
		if err != nil {
			t.Fatalf("DecodeValue failed: %v", err)
		}
		if got != v {
			t.Fatalf("round trip: got %#v, want %#v", got, v)
		}
	}
}
