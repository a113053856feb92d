package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/pkg/ssap"
)

// Buttons accepted by the pointer input channel. The TV also accepts a
// wider set (numbers, color keys); these are the ones the API exposes.
var knownButtons = map[string]bool{
	"UP": true, "DOWN": true, "LEFT": true, "RIGHT": true,
	"ENTER": true, "BACK": true, "EXIT": true, "HOME": true,
	"MENU": true, "DASH": true, "INFO": true,
	"VOLUMEUP": true, "VOLUMEDOWN": true, "MUTE": true,
	"CHANNELUP": true, "CHANNELDOWN": true,
	"PLAY": true, "PAUSE": true, "STOP": true,
	"REWIND": true, "FASTFORWARD": true,
	"RED": true, "GREEN": true, "YELLOW": true, "BLUE": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// ValidButton reports whether name is an accepted pointer button.
func ValidButton(name string) bool {
	return knownButtons[strings.ToUpper(name)]
}

// pointerConn 惰性建立按键通道：方向键等低级输入不走主请求 URI，
// 而是通过一次性 socket URL 打开第二条 WebSocket 连接
func (s *DeviceSession) pointerConn(ctx context.Context) (*websocket.Conn, error) {
	s.pointerMu.Lock()
	defer s.pointerMu.Unlock()

	if s.pointer != nil {
		return s.pointer, nil
	}

	payload, err := s.Request(ctx, ssap.URIPointerSocket, nil)
	if err != nil {
		return nil, fmt.Errorf("pointer socket request: %w", err)
	}
	var p ssap.ResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: pointer socket payload: %v", ErrRequestFailed, err)
	}
	if p.SocketPath == "" {
		return nil, fmt.Errorf("%w: empty pointer socket path", ErrRequestFailed)
	}

	conn, _, err := newDialer(s.opts.ConnectTimeout).DialContext(ctx, p.SocketPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: pointer dial: %v", ErrTransport, err)
	}
	s.pointer = conn

	log.Debug().
		Str("address", s.address).
		Msg("Pointer input channel opened")

	return conn, nil
}

// Button sends one button press over the pointer channel, opening and
// caching the channel on first use. The channel dies with the session.
func (s *DeviceSession) Button(ctx context.Context, name string) error {
	name = strings.ToUpper(name)
	if !knownButtons[name] {
		return fmt.Errorf("%w: unknown button %q", ErrCommandFailed, name)
	}

	conn, err := s.pointerConn(ctx)
	if err != nil {
		return err
	}

	// 按键通道走换行分隔的文本帧，而不是 JSON
	msg := fmt.Sprintf("type:button\nname:%s\n\n", name)
	if err := s.writePointer(conn, msg); err != nil {
		return err
	}
	return nil
}

// Click sends a pointer click.
func (s *DeviceSession) Click(ctx context.Context) error {
	conn, err := s.pointerConn(ctx)
	if err != nil {
		return err
	}
	return s.writePointer(conn, "type:click\n\n")
}

// Move sends a relative pointer movement.
func (s *DeviceSession) Move(ctx context.Context, dx, dy int) error {
	conn, err := s.pointerConn(ctx)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("type:move\ndx:%d\ndy:%d\ndown:0\n\n", dx, dy)
	return s.writePointer(conn, msg)
}

func (s *DeviceSession) writePointer(conn *websocket.Conn, msg string) error {
	s.pointerMu.Lock()
	defer s.pointerMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		// 失效的按键通道直接丢弃，下次使用时重建
		conn.Close()
		if s.pointer == conn {
			s.pointer = nil
		}
		return fmt.Errorf("%w: pointer write: %v", ErrTransport, err)
	}
	return nil
}
