package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/pkg/ssap"
)

// State 设备会话状态
type State string

const (
	StateConnected      State = "connected" // socket 已建立，尚未认证
	StateAwaitingPIN    State = "awaiting_pin"
	StateAwaitingPrompt State = "awaiting_prompt"
	StateAuthenticated  State = "authenticated"
	StateFailed         State = "failed"
	StateClosed         State = "closed"
)

// Default ports used by the two transport modes
const (
	DefaultSecurePort   = 3001
	DefaultInsecurePort = 3000
)

// Options holds per-session timing and port configuration.
type Options struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	PairingWindow  time.Duration
	SecurePort     int
	InsecurePort   int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.PairingWindow <= 0 {
		o.PairingWindow = 60 * time.Second
	}
	if o.SecurePort <= 0 {
		o.SecurePort = DefaultSecurePort
	}
	if o.InsecurePort <= 0 {
		o.InsecurePort = DefaultInsecurePort
	}
	return o
}

type result struct {
	payload json.RawMessage
	err     error
}

type subscription struct {
	uri      string
	callback func(json.RawMessage)
}

type subEvent struct {
	callback func(json.RawMessage)
	payload  json.RawMessage
}

// DeviceSession 持有到一台电视的 WebSocket 连接，负责配对状态机、
// 请求/响应关联和订阅分发。同一会话可被多个 goroutine 并发使用。
type DeviceSession struct {
	address string
	mode    models.TransportMode
	opts    Options

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla 连接要求单写者

	mu        sync.Mutex
	state     State
	closed    bool
	closeErr  error
	clientKey string
	inflight  map[string]chan result
	subs      map[string]*subscription

	// registration handshake plumbing; the register id receives multiple
	// frames (response then registered/error), so it bypasses the
	// one-shot inflight table
	registerID string
	regCh      chan *ssap.Frame

	// bounded queue decoupling subscription callbacks from the read loop
	events chan subEvent
	done   chan struct{}

	pointerMu sync.Mutex
	pointer   *websocket.Conn
}

// deviceURL derives the WebSocket endpoint for an address and mode.
func deviceURL(address string, mode models.TransportMode, opts Options) string {
	if mode == models.TransportInsecure {
		return fmt.Sprintf("ws://%s", net.JoinHostPort(address, fmt.Sprint(opts.InsecurePort)))
	}
	return fmt.Sprintf("wss://%s", net.JoinHostPort(address, fmt.Sprint(opts.SecurePort)))
}

func newDialer(timeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: timeout,
		// 消费级设备使用自签名证书
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

// Dial establishes the primary socket. On success the session is in state
// Connected and not yet authenticated.
func Dial(ctx context.Context, address string, mode models.TransportMode, opts Options) (*DeviceSession, error) {
	opts = opts.withDefaults()

	rawURL := deviceURL(address, mode, opts)
	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, _, err := newDialer(opts.ConnectTimeout).DialContext(dialCtx, rawURL, nil)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, address)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	s := &DeviceSession{
		address:  address,
		mode:     mode,
		opts:     opts,
		conn:     conn,
		state:    StateConnected,
		inflight: make(map[string]chan result),
		subs:     make(map[string]*subscription),
		regCh:    make(chan *ssap.Frame, 8),
		events:   make(chan subEvent, 64),
		done:     make(chan struct{}),
	}

	go s.readLoop()
	go s.dispatchLoop()

	log.Debug().
		Str("address", address).
		Str("mode", string(mode)).
		Msg("Device session connected")

	return s, nil
}

// Address returns the device address this session is bound to.
func (s *DeviceSession) Address() string { return s.address }

// Mode returns the transport mode the socket was established with.
func (s *DeviceSession) Mode() models.TransportMode { return s.mode }

// State returns the current session state.
func (s *DeviceSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientKey returns the pairing secret confirmed by the device, empty
// before authentication completes.
func (s *DeviceSession) ClientKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientKey
}

// Alive reports whether the session can still carry traffic.
func (s *DeviceSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Request 发送一个关联请求并阻塞等待响应。每个请求恰好被解析一次：
// 匹配响应、错误帧或超时，三者互斥。
func (s *DeviceSession) Request(ctx context.Context, uri string, payload any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan result, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrCancelled
	}
	s.inflight[id] = ch
	s.mu.Unlock()

	frame, err := ssap.NewRequest(id, uri, payload)
	if err != nil {
		s.removeInflight(id)
		return nil, err
	}
	if err := s.writeFrame(frame); err != nil {
		s.removeInflight(id)
		return nil, err
	}

	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-timer.C:
		if s.removeInflight(id) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, uri)
		}
		// resolved concurrently with the timer firing
		r := <-ch
		return r.payload, r.err
	case <-ctx.Done():
		if s.removeInflight(id) {
			return nil, ctx.Err()
		}
		r := <-ch
		return r.payload, r.err
	}
}

// Subscribe registers a durable subscription and returns its id
// immediately. It does not wait for device acknowledgment: a subscription
// may legitimately never produce its first event quickly. The callback is
// invoked once per matching inbound frame until Unsubscribe.
func (s *DeviceSession) Subscribe(uri string, payload any, callback func(json.RawMessage)) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrCancelled
	}
	s.subs[id] = &subscription{uri: uri, callback: callback}
	s.mu.Unlock()

	frame, err := ssap.NewSubscribe(id, uri, payload)
	if err != nil {
		s.removeSub(id)
		return "", err
	}
	if err := s.writeFrame(frame); err != nil {
		s.removeSub(id)
		return "", err
	}
	return id, nil
}

// Unsubscribe removes the handle and notifies the device best-effort; a
// failed unsubscribe frame does not error the caller.
func (s *DeviceSession) Unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	closed := s.closed
	s.mu.Unlock()

	if !ok || closed {
		return
	}
	if err := s.writeFrame(ssap.NewUnsubscribe(id, sub.uri)); err != nil {
		log.Debug().Err(err).Str("uri", sub.uri).Msg("Unsubscribe frame not delivered")
	}
}

// Disconnect closes both sockets, fails every in-flight request with
// ErrCancelled and drops all subscriptions without notifying the device.
func (s *DeviceSession) Disconnect() {
	s.closeWithError(ErrCancelled)
}

// writeFrame serializes one frame onto the primary socket.
func (s *DeviceSession) writeFrame(f *ssap.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (s *DeviceSession) removeInflight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		delete(s.inflight, id)
		return true
	}
	return false
}

func (s *DeviceSession) removeSub(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// readLoop 是单线程入站处理：同一会话的帧严格按序分发，
// 这也是"每请求至多一次解析"不变式成立的前提
func (s *DeviceSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closeWithError(fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}
		frame, err := ssap.ParseFrame(data)
		if err != nil {
			log.Debug().Err(err).Str("address", s.address).Msg("Dropping unparseable frame")
			continue
		}
		s.dispatch(frame)
	}
}

// dispatch routes one inbound frame: registration traffic first (the
// register id sees multiple frames), then in-flight requests, then
// subscriptions, else drop. A request and a subscription never share an
// id; in-flight entries resolve before subscriptions so they are always
// reclaimed.
func (s *DeviceSession) dispatch(f *ssap.Frame) {
	s.mu.Lock()
	if s.registerID != "" && f.ID == s.registerID {
		s.mu.Unlock()
		select {
		case s.regCh <- f:
		default:
			log.Warn().Str("address", s.address).Msg("Registration event queue full, dropping frame")
		}
		return
	}

	if ch, ok := s.inflight[f.ID]; ok {
		delete(s.inflight, f.ID)
		s.mu.Unlock()
		ch <- resolveResponse(f)
		return
	}

	if sub, ok := s.subs[f.ID]; ok {
		cb := sub.callback
		s.mu.Unlock()
		select {
		case s.events <- subEvent{callback: cb, payload: f.Payload}:
		default:
			log.Warn().
				Str("address", s.address).
				Str("uri", sub.uri).
				Msg("Subscription event queue full, dropping event")
		}
		return
	}
	s.mu.Unlock()

	log.Debug().
		Str("address", s.address).
		Str("type", f.Type).
		Str("id", f.ID).
		Msg("Unhandled frame")
}

// resolveResponse maps one inbound frame to a request resolution.
// Frame-level errors and application-level failures are distinct.
func resolveResponse(f *ssap.Frame) result {
	if f.Type == ssap.TypeError {
		return result{err: fmt.Errorf("%w: %s", ErrRequestFailed, f.Error)}
	}
	p, err := ssap.ParseResponsePayload(f)
	if err != nil {
		return result{err: fmt.Errorf("%w: %v", ErrRequestFailed, err)}
	}
	if !p.ReturnValue {
		msg := p.ErrorText
		if msg == "" {
			msg = "device reported failure"
		}
		return result{err: fmt.Errorf("%w: %s", ErrCommandFailed, msg)}
	}
	return result{payload: f.Payload}
}

// dispatchLoop delivers subscription callbacks off the read loop so a
// slow callback cannot stall frame dispatch.
func (s *DeviceSession) dispatchLoop() {
	for {
		select {
		case ev := <-s.events:
			ev.callback(ev.payload)
		case <-s.done:
			return
		}
	}
}

// closeWithError tears the session down exactly once. In-flight requests
// fail immediately rather than riding out their timeouts.
func (s *DeviceSession) closeWithError(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	if cause == ErrCancelled {
		s.state = StateClosed
	} else {
		s.state = StateFailed
	}

	inflight := s.inflight
	s.inflight = make(map[string]chan result)
	s.subs = make(map[string]*subscription)
	s.mu.Unlock()

	for _, ch := range inflight {
		ch <- result{err: ErrCancelled}
	}

	close(s.done)
	s.conn.Close()

	s.pointerMu.Lock()
	if s.pointer != nil {
		s.pointer.Close()
		s.pointer = nil
	}
	s.pointerMu.Unlock()

	log.Debug().
		Str("address", s.address).
		AnErr("cause", cause).
		Msg("Device session closed")
}
