package session

import "errors"

// Handshake rejection taxonomy. Every rejection is local to one connection
// attempt; the client only ever sees a generic handshake failure, these
// travel no further than server-side logs and metrics.
var (
	ErrUnauthenticated = errors.New("handshake: no session cookie")
	ErrBackendError    = errors.New("handshake: authorization backend error")
	ErrRoomMismatch    = errors.New("handshake: declared room does not match socket room")
	ErrInvalidRoomName = errors.New("handshake: room name is not a v4 UUID")
	ErrUnauthorized    = errors.New("handshake: insufficient document abilities")
)

// Reason maps a handshake error to a stable label for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrBackendError):
		return "backend_error"
	case errors.Is(err, ErrRoomMismatch):
		return "room_mismatch"
	case errors.Is(err, ErrInvalidRoomName):
		return "invalid_room_name"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}
