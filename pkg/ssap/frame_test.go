package ssap

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool

		wantType string
		wantID   string
	}{
		{
			name:     "response frame",
			data:     `{"type":"response","id":"abc","payload":{"returnValue":true}}`,
			wantType: TypeResponse,
			wantID:   "abc",
		},
		{
			name:     "error frame",
			data:     `{"type":"error","id":"abc","error":"401 insufficient permissions"}`,
			wantType: TypeError,
			wantID:   "abc",
		},
		{
			name:     "registered frame",
			data:     `{"type":"registered","id":"reg-1","payload":{"client-key":"key123"}}`,
			wantType: TypeRegistered,
			wantID:   "reg-1",
		},
		{
			name:    "missing type",
			data:    `{"id":"abc"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `type:button`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Type != tt.wantType {
				t.Errorf("type = %q, want %q", f.Type, tt.wantType)
			}
			if f.ID != tt.wantID {
				t.Errorf("id = %q, want %q", f.ID, tt.wantID)
			}
		})
	}
}

func TestParseResponsePayload(t *testing.T) {
	f := &Frame{
		Type:    TypeResponse,
		ID:      "abc",
		Payload: json.RawMessage(`{"returnValue":false,"errorCode":-101,"errorText":"volume out of range","pairingType":"PIN"}`),
	}

	p, err := ParseResponsePayload(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ReturnValue {
		t.Error("returnValue should be false")
	}
	if p.ErrorText != "volume out of range" {
		t.Errorf("errorText = %q", p.ErrorText)
	}
	if p.PairingType != PairingTypePIN {
		t.Errorf("pairingType = %q", p.PairingType)
	}
}

func TestParseResponsePayloadEmpty(t *testing.T) {
	p, err := ParseResponsePayload(&Frame{Type: TypeResponse, ID: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ReturnValue {
		t.Error("empty payload must not read as success")
	}
}

func TestRegisterPayload(t *testing.T) {
	raw, err := RegisterPayload("secret-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload["client-key"] != "secret-key" {
		t.Errorf("client-key = %v, want secret-key", payload["client-key"])
	}
	if _, ok := payload["manifest"]; !ok {
		t.Error("payload missing manifest")
	}
}

func TestRegisterPayloadNoKey(t *testing.T) {
	raw, err := RegisterPayload("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if _, ok := payload["client-key"]; ok {
		t.Error("first-time pairing must not carry a client-key")
	}
}

func TestNewRegister(t *testing.T) {
	f, err := NewRegister("reg-1", "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Type != TypeRegister {
		t.Errorf("type = %q", f.Type)
	}
	if f.ID != "reg-1" {
		t.Errorf("id = %q", f.ID)
	}
}

func TestNewRequestNilPayload(t *testing.T) {
	f, err := NewRequest("id-1", URIAudioGetVolume, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Payload != nil {
		t.Error("nil payload should produce no payload field")
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["payload"]; ok {
		t.Error("payload key should be omitted entirely")
	}
}
