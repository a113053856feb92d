package models

import (
	"fmt"
	"time"
)

// TransportMode selects the WebSocket scheme/port pair used to reach a TV
type TransportMode string

const (
	// TransportSecure is wss:// on port 3001, self-signed device cert
	TransportSecure TransportMode = "secure"
	// TransportInsecure is plain ws:// on port 3000 (older firmware)
	TransportInsecure TransportMode = "insecure"
)

// ParseTransportMode parses the wire/config spelling of a transport mode.
func ParseTransportMode(s string) (TransportMode, error) {
	switch TransportMode(s) {
	case TransportSecure, TransportInsecure:
		return TransportMode(s), nil
	}
	return "", fmt.Errorf("invalid transport mode: %q", s)
}

// Credential represents the stored pairing secret for one TV.
// At most one record exists per address. Valid=false marks a secret the
// device has rejected; it is kept for audit but never used for silent
// re-authentication.
type Credential struct {
	Address       string        `json:"address" db:"address"`
	ClientKey     string        `json:"-" db:"client_key"`
	TransportMode TransportMode `json:"transportMode" db:"transport_mode"`
	DisplayName   string        `json:"displayName,omitempty" db:"display_name"`
	Valid         bool          `json:"valid" db:"valid"`

	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	LastUsedAt time.Time `json:"lastUsedAt" db:"last_used_at"`
}

// RedactedKey 返回用于日志的密钥前缀，配对密钥绝不以明文出现在日志里
func (c *Credential) RedactedKey() string {
	if len(c.ClientKey) <= 8 {
		return "********"
	}
	return c.ClientKey[:8] + "..."
}
