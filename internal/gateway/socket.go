package gateway

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/config"
	"github.com/coolnoor19/wadesk/internal/eventbus"
)

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
	writeWait         = 10 * time.Second
)

// Dispatcher receives decoded socket frames. The eventbus adapter satisfies
// this; the transport stays unaware of topic semantics.
type Dispatcher interface {
	Dispatch(event string, payload map[string]interface{})
	Reconnected()
}

// frame is the wire envelope on the event socket.
type frame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// SocketTransport is the long-lived websocket connection to the backend
// event stream. It reconnects with backoff and replays room joins through
// the dispatcher's Reconnected hook.
type SocketTransport struct {
	wsURL      string
	token      string
	dispatcher Dispatcher

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc

	// writeMu serializes frame writes; gorilla/websocket allows only one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

var _ eventbus.Transport = (*SocketTransport)(nil)

// NewSocketTransport derives the socket endpoint from the backend base URL.
func NewSocketTransport(cfg config.BackendConfig) *SocketTransport {
	return &SocketTransport{
		wsURL: httpToWs(cfg.BaseURL) + "/socket",
		token: cfg.Token,
	}
}

func httpToWs(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}

// SetDispatcher must be called before Connect.
func (t *SocketTransport) SetDispatcher(d Dispatcher) {
	t.dispatcher = d
}

// Connect dials the socket and starts the read loop. The first dial failure
// is returned to the caller; later drops are retried in the background.
func (t *SocketTransport) Connect(ctx context.Context) error {
	if t.dispatcher == nil {
		return errors.New("socket transport: no dispatcher")
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "socket dial")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(loopCtx)
	return nil
}

func (t *SocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.wsURL)
	if err != nil {
		return nil, err
	}
	if t.token != "" {
		q := u.Query()
		q.Set("token", t.token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (t *SocketTransport) readLoop(ctx context.Context) {
	delay := reconnectMinDelay
	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var f frame
		_, raw, err := conn.ReadMessage()
		if err == nil {
			err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &f)
			if err != nil {
				zap.L().Warn("socket: undecodable frame", zap.Error(err))
				continue
			}
			delay = reconnectMinDelay
			t.dispatcher.Dispatch(f.Event, f.Data)
			continue
		}

		// connection dropped; reconnect with backoff unless closed
		if ctx.Err() != nil {
			return
		}
		zap.L().Warn("socket: connection lost", zap.Error(err))
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay < reconnectMaxDelay {
				delay *= 2
				if delay > reconnectMaxDelay {
					delay = reconnectMaxDelay
				}
			}

			newConn, derr := t.dial(ctx)
			if derr != nil {
				zap.L().Warn("socket: reconnect failed", zap.Error(derr))
				continue
			}
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				newConn.Close()
				return
			}
			t.conn = newConn
			t.mu.Unlock()
			t.dispatcher.Reconnected()
			break
		}
	}
}

func (t *SocketTransport) writeFrame(event, roomKey string) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return errors.New("socket transport: not connected")
	}

	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(frame{
		Event: event,
		Data:  map[string]interface{}{"room": roomKey},
	})
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Join subscribes this client to a server-side room.
func (t *SocketTransport) Join(roomKey string) error {
	return t.writeFrame("join", roomKey)
}

// Leave drops a server-side room subscription.
func (t *SocketTransport) Leave(roomKey string) error {
	return t.writeFrame("leave", roomKey)
}

// Close shuts the connection down permanently.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
