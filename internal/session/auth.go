package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/pkg/ssap"
)

// AuthResult summarizes where a registration attempt ended up.
type AuthResult struct {
	State     State
	ClientKey string
}

// Register 发送签名能力清单并驱动配对握手。storedKey 非空表示静默重认证。
//
// 返回三种结局之一：Authenticated（设备已信任密钥或用户在电视上确认）、
// AwaitingPIN（需要调用方在配对窗口内提交屏幕上显示的 PIN）、或错误。
// 设备对已存密钥的拒绝以 ErrCredentialRejected 区别于全新配对失败。
func (s *DeviceSession) Register(ctx context.Context, storedKey string) (*AuthResult, error) {
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrCancelled
	}
	if s.state != StateConnected {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: register in state %s", ErrRegistrationFailed, st)
	}
	s.registerID = id
	s.mu.Unlock()

	frame, err := ssap.NewRegister(id, storedKey)
	if err != nil {
		return nil, err
	}
	if err := s.writeFrame(frame); err != nil {
		return nil, err
	}

	window := time.NewTimer(s.opts.PairingWindow)
	defer window.Stop()

	for {
		select {
		case f := <-s.regCh:
			switch f.Type {
			case ssap.TypeRegistered:
				return s.finishAuth(f, storedKey)

			case ssap.TypeError:
				s.mu.Lock()
				s.state = StateFailed
				s.mu.Unlock()
				if storedKey != "" {
					return nil, fmt.Errorf("%w: %s", ErrCredentialRejected, f.Error)
				}
				return nil, fmt.Errorf("%w: %s", ErrRegistrationFailed, f.Error)

			case ssap.TypeResponse:
				p, perr := ssap.ParseResponsePayload(f)
				if perr != nil {
					log.Debug().Err(perr).Msg("Malformed register response, waiting for a decisive frame")
					continue
				}
				if !p.ReturnValue {
					// 应用层失败，与帧级 error 同样终结本次注册
					s.mu.Lock()
					s.state = StateFailed
					s.mu.Unlock()
					if storedKey != "" {
						return nil, fmt.Errorf("%w: %s", ErrCredentialRejected, p.ErrorText)
					}
					return nil, fmt.Errorf("%w: %s", ErrRegistrationFailed, p.ErrorText)
				}
				if p.PairingType == ssap.PairingTypePIN {
					s.mu.Lock()
					s.state = StateAwaitingPIN
					s.mu.Unlock()
					go s.pinWindowWatchdog()
					return &AuthResult{State: StateAwaitingPIN}, nil
				}
				// PROMPT：电视正在等待用户按遥控器确认，继续等 registered
				s.mu.Lock()
				s.state = StateAwaitingPrompt
				s.mu.Unlock()
			}

		case <-window.C:
			s.closeWithError(ErrPairingTimeout)
			return nil, ErrPairingTimeout

		case <-s.done:
			return nil, s.closeError()

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SubmitPIN completes a PIN pairing flow started by Register. On success
// the device emits "registered" and the session becomes Authenticated; on
// rejection the session fails terminally with ErrInvalidPIN.
func (s *DeviceSession) SubmitPIN(ctx context.Context, pin string) (*AuthResult, error) {
	s.mu.Lock()
	if s.state != StateAwaitingPIN {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrNotPairing, st)
	}
	s.mu.Unlock()

	_, err := s.Request(ctx, ssap.URISetPin, map[string]string{"pin": pin})
	if err != nil {
		if errors.Is(err, ErrCommandFailed) || errors.Is(err, ErrRequestFailed) {
			s.closeWithError(ErrInvalidPIN)
			return nil, fmt.Errorf("%w: %v", ErrInvalidPIN, err)
		}
		if errors.Is(err, ErrCancelled) {
			// 会话已被看门狗或断连关闭，上抛真实原因
			return nil, s.closeError()
		}
		return nil, err
	}

	window := time.NewTimer(s.opts.PairingWindow)
	defer window.Stop()

	for {
		select {
		case f := <-s.regCh:
			switch f.Type {
			case ssap.TypeRegistered:
				return s.finishAuth(f, "")
			case ssap.TypeError:
				s.closeWithError(ErrInvalidPIN)
				return nil, fmt.Errorf("%w: %s", ErrInvalidPIN, f.Error)
			}

		case <-window.C:
			s.closeWithError(ErrPairingTimeout)
			return nil, ErrPairingTimeout

		case <-s.done:
			return nil, s.closeError()

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// finishAuth records the confirmed client key from a registered frame.
func (s *DeviceSession) finishAuth(f *ssap.Frame, storedKey string) (*AuthResult, error) {
	p, err := ssap.ParseResponsePayload(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	key := p.ClientKey
	if key == "" {
		key = storedKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: registered frame carried no client-key", ErrRegistrationFailed)
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.clientKey = key
	s.registerID = ""
	s.mu.Unlock()

	log.Info().
		Str("address", s.address).
		Str("mode", string(s.mode)).
		Msg("Device session authenticated")

	return &AuthResult{State: StateAuthenticated, ClientKey: key}, nil
}

// pinWindowWatchdog fails the attempt if no PIN is verified inside the
// pairing window.
func (s *DeviceSession) pinWindowWatchdog() {
	t := time.NewTimer(s.opts.PairingWindow)
	defer t.Stop()

	select {
	case <-t.C:
		s.mu.Lock()
		stillPairing := s.state == StateAwaitingPIN
		s.mu.Unlock()
		if stillPairing {
			log.Info().Str("address", s.address).Msg("Pairing window expired before PIN verification")
			s.closeWithError(ErrPairingTimeout)
		}
	case <-s.done:
	}
}

func (s *DeviceSession) closeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrCancelled
}
