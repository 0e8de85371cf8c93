package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrBadRequest,
		ErrUnknownAgent,
		ErrUnknownFloor,
		ErrInvalidTarget,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"PATH_REQ","protocol_version":"1.0","target":[1,2,3]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Type != TypePathReq || b.ProtocolVersion != Version {
		t.Fatalf("unexpected base: %+v", b)
	}
	if _, err := DecodeBase([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed input")
	}
}
