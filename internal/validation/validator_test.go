package validation

import (
	"strings"
	"testing"
)

type connectForm struct {
	Address string `json:"address" validate:"required,ip"`
	Mode    string `json:"mode" validate:"oneof=secure insecure"`
	PIN     string `json:"pin" validate:"numeric,min=4,max=8"`
	Email   string `json:"email" validate:"email"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		form    connectForm
		wantErr string
	}{
		{
			name: "valid full form",
			form: connectForm{Address: "192.168.1.10", Mode: "secure", PIN: "1234", Email: "a@b.c"},
		},
		{
			name: "optional fields empty",
			form: connectForm{Address: "10.0.0.2"},
		},
		{
			name:    "missing required address",
			form:    connectForm{Mode: "secure"},
			wantErr: "Address",
		},
		{
			name:    "malformed ip",
			form:    connectForm{Address: "not-an-ip"},
			wantErr: "invalid IP",
		},
		{
			name:    "mode outside enum",
			form:    connectForm{Address: "10.0.0.2", Mode: "plaintext"},
			wantErr: "one of",
		},
		{
			name:    "pin not numeric",
			form:    connectForm{Address: "10.0.0.2", PIN: "12a4"},
			wantErr: "numeric",
		},
		{
			name:    "pin too short",
			form:    connectForm{Address: "10.0.0.2", PIN: "12"},
			wantErr: "minimum",
		},
		{
			name:    "pin too long",
			form:    connectForm{Address: "10.0.0.2", PIN: "123456789"},
			wantErr: "maximum",
		},
		{
			name:    "bad email",
			form:    connectForm{Address: "10.0.0.2", Email: "nobody"},
			wantErr: "email",
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.form)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonStruct(t *testing.T) {
	v := NewValidator()
	if err := v.Validate("not a struct"); err == nil {
		t.Error("expected error for non-struct input")
	}
}
