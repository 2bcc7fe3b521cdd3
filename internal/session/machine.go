// Package session tracks device-pairing state machines, one per session,
// each with its own QR expiry timer. All mutation funnels through a single
// transition path so the lifecycle stays auditable.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/eventbus"
	"github.com/coolnoor19/wadesk/internal/identity"
)

// Pairer is the external pairing service. Request failures surface as
// session error state; there is no automatic retry.
type Pairer interface {
	RequestPairing(ctx context.Context, identity string) error
	EndPairing(ctx context.Context, sessionID string) error
}

// Notice kinds surfaced to the UI when a session drops.
const (
	NoticeExpired      = "expired"
	NoticeDisconnected = "disconnected"
)

// Notice is a user-visible message distinguishing a QR expiry from a
// disconnect by the remote peer.
type Notice struct {
	SessionID string
	Kind      string
	Text      string
}

// Hooks are the observable outputs of the machine. Any hook may be nil.
type Hooks struct {
	// OnChange fires with a snapshot after every state transition.
	OnChange func(domain.Session)
	// OnConnected fires after a session reaches connected state, used to
	// trigger dependent refreshes such as chat list re-derivation.
	OnConnected func(sessionID string)
	// OnNotice surfaces expiry/disconnect notices.
	OnNotice func(Notice)
}

type entry struct {
	domain.Session
	timer *time.Timer
	// gen guards timer callbacks: a fired timer whose generation no longer
	// matches is a no-op. Bumped on every timer cancel and on teardown.
	gen uint64
	// reqGen coalesces concurrent pairing requests; only the most recent
	// request may publish its outcome.
	reqGen uint64
}

// Machine owns the active session set.
type Machine struct {
	pairer Pairer
	hooks  Hooks
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	active   string
	closed   bool
}

// NewMachine creates a machine with the given QR validity window.
func NewMachine(pairer Pairer, window time.Duration, hooks Hooks) *Machine {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Machine{
		pairer:   pairer,
		hooks:    hooks,
		window:   window,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Attach subscribes the machine's event handlers on the bus.
func (m *Machine) Attach(bus eventbus.Bus) error {
	if err := bus.Subscribe(domain.EventQR, m.OnQR); err != nil {
		return err
	}
	if err := bus.Subscribe(domain.EventConnected, m.OnConnected); err != nil {
		return err
	}
	if err := bus.Subscribe(domain.EventDisconnected, m.OnDisconnected); err != nil {
		return err
	}
	return bus.Subscribe(domain.EventQRExpired, m.OnQRExpired)
}

// Connect creates or re-enters a pairing session for the given phone
// identity. Concurrent connects for the same identity coalesce to the most
// recent request. The pairing request itself runs asynchronously.
func (m *Machine) Connect(ctx context.Context, rawIdentity string) error {
	if !identity.ValidPhone(rawIdentity) {
		return errors.Errorf("invalid phone identity %q", rawIdentity)
	}
	id := identity.Normalize(rawIdentity)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("session machine closed")
	}
	e := m.sessions[id]
	if e == nil {
		e = &entry{Session: domain.Session{ID: id}}
		m.sessions[id] = e
	}
	m.cancelTimerLocked(e)
	e.Status = domain.SessionPending
	e.QRPayload = ""
	e.QRIssuedAt = time.Time{}
	e.LastError = ""
	e.reqGen++
	reqGen := e.reqGen
	m.active = id
	snap := e.Session
	m.mu.Unlock()

	m.emitChange(snap)
	zap.L().Info("session: pairing requested", zap.String("session_id", id))

	go func() {
		err := m.pairer.RequestPairing(ctx, id)
		if err == nil {
			return
		}
		m.mu.Lock()
		e := m.sessions[id]
		if m.closed || e == nil || e.reqGen != reqGen {
			// superseded by a newer connect
			m.mu.Unlock()
			return
		}
		m.cancelTimerLocked(e)
		e.Status = domain.SessionError
		e.LastError = err.Error()
		snap := e.Session
		m.mu.Unlock()

		zap.L().Warn("session: pairing request failed",
			zap.String("session_id", id), zap.Error(err))
		m.emitChange(snap)
	}()
	return nil
}

// Disconnect moves a session to disconnected state. Safe to call on an
// unknown or already-terminal session.
func (m *Machine) Disconnect(ctx context.Context, sessionID string) {
	id := identity.Normalize(sessionID)

	m.mu.Lock()
	e := m.sessions[id]
	if m.closed || e == nil || e.Terminal() {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked(e)
	e.Status = domain.SessionDisconnected
	e.QRPayload = ""
	snap := e.Session
	m.mu.Unlock()

	if err := m.pairer.EndPairing(ctx, id); err != nil {
		zap.L().Warn("session: end pairing failed",
			zap.String("session_id", id), zap.Error(err))
	}
	m.emitChange(snap)
}

// Delete removes a session from the active set. Idempotent.
func (m *Machine) Delete(ctx context.Context, sessionID string) {
	id := identity.Normalize(sessionID)

	m.mu.Lock()
	e := m.sessions[id]
	if e == nil {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked(e)
	delete(m.sessions, id)
	if m.active == id {
		m.active = ""
	}
	closed := m.closed
	m.mu.Unlock()

	if !closed {
		if err := m.pairer.EndPairing(ctx, id); err != nil {
			zap.L().Warn("session: end pairing failed on delete",
				zap.String("session_id", id), zap.Error(err))
		}
	}
	zap.L().Info("session: deleted", zap.String("session_id", id))
}

// OnQR handles a qr event. The expiry timer is anchored to the event's
// issuedAt so that delivery lag does not stretch the validity window, and a
// re-delivered qr for a session with a running timer only refreshes the
// displayed payload - it never restarts the window.
func (m *Machine) OnQR(evt *domain.QREvent) {
	id := identity.Normalize(evt.SessionID)
	issuedAt := evt.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = m.now()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	e := m.sessions[id]
	if e == nil {
		// server-initiated pairing we have no local record of yet
		e = &entry{Session: domain.Session{ID: id}}
		m.sessions[id] = e
	}
	e.Status = domain.SessionPending
	e.QRPayload = evt.Payload

	if e.timer == nil {
		e.QRIssuedAt = issuedAt
		remaining := m.window - m.now().Sub(issuedAt)
		if remaining <= 0 {
			snap := m.expireLocked(e)
			m.mu.Unlock()
			m.emitNotice(Notice{SessionID: id, Kind: NoticeExpired,
				Text: "QR code expired, request a new connection"})
			m.emitChange(snap)
			return
		}
		gen := e.gen
		e.timer = time.AfterFunc(remaining, func() { m.timerFired(id, gen) })
	}
	snap := e.Session
	m.mu.Unlock()
	m.emitChange(snap)
}

// OnConnected handles a connected event: the timer is cleared and the
// dependent refresh hook runs.
func (m *Machine) OnConnected(evt *domain.SessionEvent) {
	id := identity.Normalize(evt.SessionID)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	e := m.sessions[id]
	if e == nil {
		e = &entry{Session: domain.Session{ID: id}}
		m.sessions[id] = e
	}
	m.cancelTimerLocked(e)
	e.Status = domain.SessionConnected
	e.QRPayload = ""
	e.QRIssuedAt = time.Time{}
	e.LastError = ""
	snap := e.Session
	m.mu.Unlock()

	zap.L().Info("session: connected", zap.String("session_id", id))
	m.emitChange(snap)
	if m.hooks.OnConnected != nil {
		m.hooks.OnConnected(id)
	}
}

// OnDisconnected handles a peer disconnect event.
func (m *Machine) OnDisconnected(evt *domain.SessionEvent) {
	m.dropSession(evt.SessionID, NoticeDisconnected,
		"Device disconnected by peer")
}

// OnQRExpired handles a server-side expiry announcement.
func (m *Machine) OnQRExpired(evt *domain.SessionEvent) {
	m.dropSession(evt.SessionID, NoticeExpired,
		"QR code expired, request a new connection")
}

func (m *Machine) dropSession(sessionID, kind, text string) {
	id := identity.Normalize(sessionID)

	m.mu.Lock()
	e := m.sessions[id]
	if m.closed || e == nil || e.Terminal() {
		m.mu.Unlock()
		return
	}
	snap := m.expireLocked(e)
	m.mu.Unlock()

	m.emitNotice(Notice{SessionID: id, Kind: kind, Text: text})
	m.emitChange(snap)
}

// Remaining reports the time left on a session's QR validity window,
// computed from the original issuedAt. Zero when no window is running.
func (m *Machine) Remaining(sessionID string) time.Duration {
	id := identity.Normalize(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.sessions[id]
	if e == nil || e.timer == nil {
		return 0
	}
	remaining := m.window - m.now().Sub(e.QRIssuedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Get returns a snapshot of one session.
func (m *Machine) Get(sessionID string) (domain.Session, bool) {
	id := identity.Normalize(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.sessions[id]
	if e == nil {
		return domain.Session{}, false
	}
	return e.Session, true
}

// Active returns the session currently designated for QR display.
func (m *Machine) Active() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return domain.Session{}, false
	}
	e := m.sessions[m.active]
	if e == nil {
		return domain.Session{}, false
	}
	return e.Session, true
}

// Snapshot returns copies of every tracked session.
func (m *Machine) Snapshot() []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.Session)
	}
	return out
}

// Close cancels every outstanding timer. Timers firing after Close are
// guaranteed no-ops.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, e := range m.sessions {
		m.cancelTimerLocked(e)
	}
	zap.L().Info("session: machine closed", zap.Int("sessions", len(m.sessions)))
}

func (m *Machine) timerFired(id string, gen uint64) {
	m.mu.Lock()
	e := m.sessions[id]
	if m.closed || e == nil || e.gen != gen || e.timer == nil {
		m.mu.Unlock()
		return
	}
	snap := m.expireLocked(e)
	m.mu.Unlock()

	m.emitNotice(Notice{SessionID: id, Kind: NoticeExpired,
		Text: "QR code expired, request a new connection"})
	m.emitChange(snap)
}

// expireLocked transitions an entry to disconnected and clears its timer.
func (m *Machine) expireLocked(e *entry) domain.Session {
	m.cancelTimerLocked(e)
	e.Status = domain.SessionDisconnected
	e.QRPayload = ""
	return e.Session
}

func (m *Machine) cancelTimerLocked(e *entry) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (m *Machine) emitChange(snap domain.Session) {
	if m.hooks.OnChange != nil {
		m.hooks.OnChange(snap)
	}
}

func (m *Machine) emitNotice(n Notice) {
	zap.L().Info("session: notice",
		zap.String("session_id", n.SessionID), zap.String("kind", n.Kind))
	if m.hooks.OnNotice != nil {
		m.hooks.OnNotice(n)
	}
}
