package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/internal/storage"
)

// Orchestrator errors
var (
	// ErrNoStoredDevice means no valid credential exists to reconnect with.
	ErrNoStoredDevice = errors.New("controller: no stored device")

	// ErrNoPendingPairing means CompletePairing found no pairing in
	// progress for the address.
	ErrNoPendingPairing = errors.New("controller: no pending pairing")

	// ErrNotConnected means no authenticated session is current.
	ErrNotConnected = errors.New("controller: not connected")
)

// ConnectStatus classifies the outcome of a Connect call.
type ConnectStatus string

const (
	StatusConnected       ConnectStatus = "connected"
	StatusPairingRequired ConnectStatus = "pairing_required"
)

// ConnectResult is the structured outcome of Connect / CompletePairing.
type ConnectResult struct {
	Status        ConnectStatus        `json:"status"`
	Address       string               `json:"address"`
	TransportMode models.TransportMode `json:"transportMode"`
}

type pendingPairing struct {
	sess *session.DeviceSession
	mode models.TransportMode
}

// Manager 是"当前连接到哪台电视"的唯一事实来源：进程内至多持有一个
// 活跃会话，所有 connect/pair/disconnect 生命周期迁移都在同一把锁内
// 串行执行，两个并发 Connect 不会竞争安装两个会话。
type Manager struct {
	store storage.CredentialStore
	nc    *nats.Conn // 可为 nil，事件广播被禁用
	opts  session.Options

	mu      sync.Mutex
	current *session.DeviceSession
	pending map[string]*pendingPairing
}

// NewManager creates the session orchestrator. nc may be nil to disable
// event publishing.
func NewManager(store storage.CredentialStore, nc *nats.Conn, opts session.Options) *Manager {
	return &Manager{
		store:   store,
		nc:      nc,
		opts:    opts,
		pending: make(map[string]*pendingPairing),
	}
}

// EnsureConnection reconnects silently using the most recently used valid
// credential. It never starts pairing: pairing needs a human at the TV.
// A rejected credential is invalidated in the store exactly once; on
// transport failures stored validity is left untouched, the device may
// simply be unreachable.
func (m *Manager) EnsureConnection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Alive() && m.current.State() == session.StateAuthenticated {
		return nil
	}

	rec, err := m.store.MostRecentValidCredential(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoStoredDevice
		}
		return fmt.Errorf("credential lookup: %w", err)
	}

	log.Info().
		Str("address", rec.Address).
		Str("mode", string(rec.TransportMode)).
		Msg("Reconnecting with stored credential")

	sess, err := session.Dial(ctx, rec.Address, rec.TransportMode, m.opts)
	if err != nil {
		return err
	}

	res, err := sess.Register(ctx, rec.ClientKey)
	if err != nil {
		sess.Disconnect()
		if errors.Is(err, session.ErrCredentialRejected) {
			m.invalidate(ctx, rec.Address)
		}
		return err
	}
	if res.State != session.StateAuthenticated {
		// 设备要求重新配对，等价于拒绝已存密钥
		sess.Disconnect()
		m.invalidate(ctx, rec.Address)
		return fmt.Errorf("%w: device demands pairing", session.ErrCredentialRejected)
	}

	// 刷新 last_used，密钥可能被设备轮换
	if err := m.store.UpsertCredential(ctx, rec.Address, res.ClientKey, rec.TransportMode, rec.DisplayName); err != nil {
		log.Error().Err(err).Str("address", rec.Address).Msg("Refreshing credential failed")
	}
	m.installLocked(sess)
	return nil
}

// Connect establishes a session to an explicit address. With a pinned
// transport mode only that mode is tried and its failure propagates;
// otherwise Secure is tried first, then Insecure, and the first success
// wins and is remembered. A PIN requirement does not block: it parks a
// pending pairing and reports StatusPairingRequired.
func (m *Manager) Connect(ctx context.Context, address string, mode *models.TransportMode, force bool) (*ConnectResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && m.current != nil && m.current.Alive() &&
		m.current.State() == session.StateAuthenticated && m.current.Address() == address {
		return &ConnectResult{
			Status:        StatusConnected,
			Address:       address,
			TransportMode: m.current.Mode(),
		}, nil
	}

	m.teardownLocked(address)

	sess, err := m.dialLocked(ctx, address, mode)
	if err != nil {
		return nil, err
	}

	// 若有有效存储记录则先尝试静默重认证
	storedKey := ""
	if rec, gerr := m.store.GetCredential(ctx, address); gerr == nil && rec.Valid {
		storedKey = rec.ClientKey
	}

	res, err := sess.Register(ctx, storedKey)
	if err != nil {
		sess.Disconnect()
		if storedKey != "" && errors.Is(err, session.ErrCredentialRejected) {
			m.invalidate(ctx, address)
		}
		return nil, err
	}

	switch res.State {
	case session.StateAuthenticated:
		if err := m.store.UpsertCredential(ctx, address, res.ClientKey, sess.Mode(), ""); err != nil {
			log.Error().Err(err).Str("address", address).Msg("Persisting credential failed")
		}
		m.installLocked(sess)
		return &ConnectResult{
			Status:        StatusConnected,
			Address:       address,
			TransportMode: sess.Mode(),
		}, nil

	case session.StateAwaitingPIN:
		m.pending[address] = &pendingPairing{sess: sess, mode: sess.Mode()}
		log.Info().Str("address", address).Msg("TV displayed a PIN, awaiting submission")
		return &ConnectResult{
			Status:        StatusPairingRequired,
			Address:       address,
			TransportMode: sess.Mode(),
		}, nil

	default:
		sess.Disconnect()
		return nil, fmt.Errorf("%w: unexpected auth state %s", session.ErrRegistrationFailed, res.State)
	}
}

// CompletePairing forwards a displayed PIN into the pending pairing for
// an address. The pending entry is cleared whatever the outcome; success
// persists the issued secret and installs the session as current.
func (m *Manager) CompletePairing(ctx context.Context, address, pin string) (*ConnectResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingPairing, address)
	}
	delete(m.pending, address)

	res, err := p.sess.SubmitPIN(ctx, pin)
	if err != nil {
		p.sess.Disconnect()
		return nil, err
	}

	if err := m.store.UpsertCredential(ctx, address, res.ClientKey, p.mode, ""); err != nil {
		log.Error().Err(err).Str("address", address).Msg("Persisting credential failed")
	}
	m.installLocked(p.sess)

	return &ConnectResult{
		Status:        StatusConnected,
		Address:       address,
		TransportMode: p.mode,
	}, nil
}

// Disconnect tears down the current session and every pending pairing.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}
	for addr, p := range m.pending {
		p.sess.Disconnect()
		delete(m.pending, addr)
	}
}

// Session returns the current authenticated session for command wrappers.
func (m *Manager) Session() (*session.DeviceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.Alive() || m.current.State() != session.StateAuthenticated {
		return nil, ErrNotConnected
	}
	return m.current, nil
}

// Status describes the orchestrator state for the front end.
type Status struct {
	Connected       bool                 `json:"connected"`
	Address         string               `json:"address,omitempty"`
	State           session.State        `json:"state,omitempty"`
	TransportMode   models.TransportMode `json:"transportMode,omitempty"`
	PendingPairings []string             `json:"pendingPairings,omitempty"`
}

// Status reports the current session and pending pairings.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{}
	if m.current != nil && m.current.Alive() {
		st.Connected = m.current.State() == session.StateAuthenticated
		st.Address = m.current.Address()
		st.State = m.current.State()
		st.TransportMode = m.current.Mode()
	}
	for addr := range m.pending {
		st.PendingPairings = append(st.PendingPairings, addr)
	}
	return st
}

// dialLocked tries the requested mode, or Secure then Insecure when
// unspecified. Caller holds m.mu.
func (m *Manager) dialLocked(ctx context.Context, address string, mode *models.TransportMode) (*session.DeviceSession, error) {
	if mode != nil {
		return session.Dial(ctx, address, *mode, m.opts)
	}

	sess, secureErr := session.Dial(ctx, address, models.TransportSecure, m.opts)
	if secureErr == nil {
		return sess, nil
	}
	log.Debug().Err(secureErr).Str("address", address).Msg("Secure transport failed, trying insecure")

	sess, insecureErr := session.Dial(ctx, address, models.TransportInsecure, m.opts)
	if insecureErr == nil {
		return sess, nil
	}
	return nil, fmt.Errorf("both transports failed (secure: %v): %w", secureErr, insecureErr)
}

// teardownLocked closes the live session and any pending pairing for the
// address being replaced. Caller holds m.mu.
func (m *Manager) teardownLocked(address string) {
	if m.current != nil {
		m.current.Disconnect()
		m.current = nil
	}
	if p, ok := m.pending[address]; ok {
		// 针对同一地址发起新的 connect 使旧的待配对条目失效
		p.sess.Disconnect()
		delete(m.pending, address)
	}
}

// installLocked installs an authenticated session as current and starts
// the push-event subscriptions. Caller holds m.mu.
func (m *Manager) installLocked(sess *session.DeviceSession) {
	m.current = sess
	m.startEventSubscriptions(sess)

	log.Info().
		Str("address", sess.Address()).
		Str("mode", string(sess.Mode())).
		Msg("Session installed as current")
}

func (m *Manager) invalidate(ctx context.Context, address string) {
	if err := m.store.InvalidateCredential(ctx, address); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error().Err(err).Str("address", address).Msg("Invalidating credential failed")
	} else {
		log.Warn().Str("address", address).Msg("Stored credential invalidated after device rejection")
	}
}
