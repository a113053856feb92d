package session

import "errors"

// Session error taxonomy. Callers match with errors.Is; messages carry
// device-reported detail where available.
var (
	// ErrConnectTimeout means no open/close/error event arrived within the
	// connect timeout.
	ErrConnectTimeout = errors.New("session: connect timeout")

	// ErrTransport is a socket-level failure (dial refused, read error,
	// unexpected close).
	ErrTransport = errors.New("session: transport error")

	// ErrPairingTimeout means the pairing window elapsed before the device
	// confirmed registration or the caller submitted a PIN.
	ErrPairingTimeout = errors.New("session: pairing timeout")

	// ErrInvalidPIN means the device rejected the submitted PIN.
	ErrInvalidPIN = errors.New("session: invalid pin")

	// ErrCredentialRejected means the device no longer trusts a stored
	// client key. Distinct from a fresh pairing failure so the caller can
	// invalidate the stored record instead of retrying pairing.
	ErrCredentialRejected = errors.New("session: stored credential rejected")

	// ErrRegistrationFailed is a fresh pairing attempt failed by the device.
	ErrRegistrationFailed = errors.New("session: registration failed")

	// ErrRequestTimeout means no matching frame arrived within the request
	// timeout.
	ErrRequestTimeout = errors.New("session: request timeout")

	// ErrRequestFailed is a frame-level error response to a request.
	ErrRequestFailed = errors.New("session: request failed")

	// ErrCommandFailed is a device-reported application error
	// (returnValue=false in a response payload).
	ErrCommandFailed = errors.New("session: command failed")

	// ErrCancelled means the session was disconnected while the operation
	// was outstanding.
	ErrCancelled = errors.New("session: cancelled")

	// ErrNotPairing means SubmitPIN was called while the session was not
	// awaiting a PIN.
	ErrNotPairing = errors.New("session: no pairing in progress")
)
