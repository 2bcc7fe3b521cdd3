package domain

import "time"

// Session pairing lifecycle status. DISCONNECTED and ERROR are terminal
// until a new connect request re-enters PENDING.
const (
	SessionIdle         = "idle"
	SessionPending      = "pending"
	SessionConnected    = "connected"
	SessionDisconnected = "disconnected"
	SessionError        = "error"
)

// Session represents one device pairing attempt / connection.
type Session struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	QRPayload  string    `json:"qr_payload,omitempty"`
	QRIssuedAt time.Time `json:"qr_issued_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Terminal reports whether the session cannot transition further without a
// fresh connect.
func (s *Session) Terminal() bool {
	return s.Status == SessionDisconnected || s.Status == SessionError
}
