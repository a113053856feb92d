package ssap

import (
	"encoding/json"
	"fmt"
)

// Frame types used by the TV remote-control protocol
const (
	TypeRegister    = "register"
	TypeRegistered  = "registered"
	TypeRequest     = "request"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeResponse    = "response"
	TypeError       = "error"
)

// Pairing modes announced by the TV inside a register response payload
const (
	PairingTypePrompt = "PROMPT"
	PairingTypePIN    = "PIN"
)

// Frame 是 TV 协议的基本消息单元，所有消息共享同一结构
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ResponsePayload 是 response 帧 payload 的公共部分。
// returnValue 是应用层成功标志，与帧级 error 相互独立，二者都要检查。
type ResponsePayload struct {
	ReturnValue bool   `json:"returnValue"`
	ErrorCode   any    `json:"errorCode,omitempty"`
	ErrorText   string `json:"errorText,omitempty"`
	PairingType string `json:"pairingType,omitempty"`
	ClientKey   string `json:"client-key,omitempty"`
	SocketPath  string `json:"socketPath,omitempty"`
}

// ParseFrame decodes a raw inbound message into a Frame.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("parse frame: missing type")
	}
	return &f, nil
}

// ParseResponsePayload decodes the common portion of a response payload.
// A nil payload yields a zero value with ReturnValue=false.
func ParseResponsePayload(f *Frame) (*ResponsePayload, error) {
	var p ResponsePayload
	if len(f.Payload) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse response payload: %w", err)
	}
	return &p, nil
}

// NewRequest builds a request frame for the given URI.
func NewRequest(id, uri string, payload any) (*Frame, error) {
	f := &Frame{Type: TypeRequest, ID: id, URI: uri}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		f.Payload = raw
	}
	return f, nil
}

// NewSubscribe builds a subscribe frame for the given URI.
func NewSubscribe(id, uri string, payload any) (*Frame, error) {
	f := &Frame{Type: TypeSubscribe, ID: id, URI: uri}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal subscribe payload: %w", err)
		}
		f.Payload = raw
	}
	return f, nil
}

// NewUnsubscribe builds an unsubscribe frame referencing an earlier subscribe id.
func NewUnsubscribe(id, uri string) *Frame {
	return &Frame{Type: TypeUnsubscribe, ID: id, URI: uri}
}
