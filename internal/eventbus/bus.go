// Package eventbus adapts the backend socket stream into an in-process
// publish/subscribe bus. A single adapter owns one long-lived transport,
// fans events out to named-topic subscribers and keeps server-side room
// subscriptions alive across reconnects.
package eventbus

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
)

// Room identifies a server-side subscription scope.
type Room struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Key is the wire form of the room, also used as the tracking map key.
func (r Room) Key() string {
	if r.ConversationID == "" {
		return r.SessionID
	}
	return r.SessionID + "/" + r.ConversationID
}

// Bus is the injectable contract consumed by the session machine and the
// reconciliation engine. Tests substitute a fake.
type Bus interface {
	Subscribe(event string, fn interface{}) error
	Unsubscribe(event string, fn interface{}) error
	Join(room Room) error
	Leave(room Room) error
	Close() error
}

// Transport is the remote socket connection. Implementations call
// Adapter.Dispatch for every named event received and Adapter.Reconnected
// after re-establishing a dropped connection.
type Transport interface {
	Connect(ctx context.Context) error
	Join(roomKey string) error
	Leave(roomKey string) error
	Close() error
}

// Adapter multiplexes named socket events to internal listeners.
type Adapter struct {
	bus       EventBus.Bus
	transport Transport

	mu     sync.Mutex
	rooms  map[string]Room
	closed bool
}

var _ Bus = (*Adapter)(nil)

// New creates an adapter over the given transport. Call Start to connect.
func New(t Transport) *Adapter {
	return &Adapter{
		bus:       EventBus.New(),
		transport: t,
		rooms:     make(map[string]Room),
	}
}

// Start connects the underlying transport.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.transport.Connect(ctx); err != nil {
		return errors.Wrap(err, "event transport connect")
	}
	zap.L().Info("eventbus: transport connected")
	return nil
}

// Subscribe registers fn for a named event. The handler signature must match
// the typed payload published for that event (see Dispatch).
func (a *Adapter) Subscribe(event string, fn interface{}) error {
	return a.bus.Subscribe(event, fn)
}

func (a *Adapter) Unsubscribe(event string, fn interface{}) error {
	return a.bus.Unsubscribe(event, fn)
}

// Join subscribes this client to a server-side room. The room is tracked so
// it can be re-joined after a reconnect.
func (a *Adapter) Join(room Room) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("eventbus: adapter closed")
	}
	a.rooms[room.Key()] = room
	a.mu.Unlock()

	if err := a.transport.Join(room.Key()); err != nil {
		return errors.Wrapf(err, "join room %s", room.Key())
	}
	return nil
}

// Leave drops a server-side room subscription. Leaving an unknown room is a
// no-op.
func (a *Adapter) Leave(room Room) error {
	a.mu.Lock()
	_, known := a.rooms[room.Key()]
	delete(a.rooms, room.Key())
	closed := a.closed
	a.mu.Unlock()

	if !known || closed {
		return nil
	}
	if err := a.transport.Leave(room.Key()); err != nil {
		return errors.Wrapf(err, "leave room %s", room.Key())
	}
	return nil
}

// Close tears the adapter down. Events dispatched afterwards are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.rooms = make(map[string]Room)
	a.mu.Unlock()
	return a.transport.Close()
}

// Reconnected re-establishes every tracked room subscription. Events missed
// during the disconnected window are not replayed here; the next history
// pull is the authoritative reconciliation point.
func (a *Adapter) Reconnected() {
	a.mu.Lock()
	rooms := make([]Room, 0, len(a.rooms))
	for _, r := range a.rooms {
		rooms = append(rooms, r)
	}
	closed := a.closed
	a.mu.Unlock()

	if closed {
		return
	}
	zap.L().Info("eventbus: transport reconnected, re-joining rooms",
		zap.Int("rooms", len(rooms)))
	for _, r := range rooms {
		if err := a.transport.Join(r.Key()); err != nil {
			zap.L().Warn("eventbus: re-join failed",
				zap.String("room", r.Key()), zap.Error(err))
		}
	}
	a.bus.Publish(domain.EventSessionUpdate)
}

// Dispatch decodes a raw socket event and publishes the typed form on the
// internal bus. Malformed payloads are dropped with a warning; no event may
// take the process down.
func (a *Adapter) Dispatch(event string, payload map[string]interface{}) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	switch event {
	case domain.EventQR:
		evt, err := domain.DecodeQREvent(payload)
		if err != nil {
			dropEvent(event, err)
			return
		}
		a.bus.Publish(event, evt)
	case domain.EventConnected, domain.EventDisconnected, domain.EventQRExpired:
		evt, err := domain.DecodeSessionEvent(payload)
		if err != nil {
			dropEvent(event, err)
			return
		}
		a.bus.Publish(event, evt)
	case domain.EventNewMessage:
		evt, err := domain.DecodeMessageEvent(payload)
		if err != nil {
			dropEvent(event, err)
			return
		}
		a.bus.Publish(event, evt)
	case domain.EventStatusUpdate:
		evt, err := domain.DecodeStatusEvent(payload)
		if err != nil {
			dropEvent(event, err)
			return
		}
		a.bus.Publish(event, evt)
	case domain.EventTypingUpdate:
		evt, err := domain.DecodeTypingEvent(payload)
		if err != nil {
			dropEvent(event, err)
			return
		}
		a.bus.Publish(event, evt)
	case domain.EventSessionUpdate:
		a.bus.Publish(event)
	default:
		zap.L().Debug("eventbus: ignoring unknown event", zap.String("event", event))
	}
}

func dropEvent(event string, err error) {
	zap.L().Warn("eventbus: dropping malformed event",
		zap.String("event", event), zap.Error(err))
}
