package models

import (
	"encoding/json"
	"time"
)

// EventKind names a TV state topic the controller keeps a subscription on
type EventKind string

const (
	EventVolume     EventKind = "volume"
	EventChannel    EventKind = "channel"
	EventForeground EventKind = "foreground_app"
	EventPower      EventKind = "power_state"
)

// TVEvent is one push notification from a TV, as published on the bus.
type TVEvent struct {
	Address   string          `json:"address"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}
