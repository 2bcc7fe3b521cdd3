// Package engine reconciles the per-conversation message list against three
// asynchronous sources: REST history pulls, live socket events, and locally
// originated optimistic sends. The result is one duplicate-free, causally
// ordered sequence per open conversation.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/gommon/random"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/eventbus"
	"github.com/coolnoor19/wadesk/internal/identity"
	"github.com/coolnoor19/wadesk/internal/markup"
)

// HistoryFetcher pulls persisted messages from the backend. The history pull
// is the authoritative reconciliation point after any event loss.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// Sender issues outbound sends through the backend REST API.
type Sender interface {
	SendToUser(ctx context.Context, sessionID, to, text string) (domain.SendResult, error)
	SendToGroup(ctx context.Context, sessionID, groupID, text string) (domain.SendResult, error)
}

// Hooks are the engine's observable outputs. Any hook may be nil.
type Hooks struct {
	// OnMessages fires with a snapshot of the open conversation after every
	// list mutation.
	OnMessages func([]domain.Message)
	// OnSummaryStale fires when history changed for a conversation that is
	// not currently open; the chat list should re-derive.
	OnSummaryStale func()
	// OnTyping relays typing signals for the open conversation.
	OnTyping func(conversationID string, isTyping bool)
}

// Input validation errors, surfaced inline before any network call.
var (
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrNoSession      = errors.New("no active transport session")
	ErrNoConversation = errors.New("no open conversation")
)

const sendWorkers = 8

// Engine owns the mutable message list of the open conversation.
type Engine struct {
	fetcher HistoryFetcher
	sender  Sender
	bus     eventbus.Bus
	pool    *ants.Pool
	idNode  *snowflake.Node
	hooks   Hooks

	mu        sync.Mutex
	sessionID string
	open      string
	// convRoom is the conversation room as joined, including the session id
	// of the time; leaving must use this key even if the session changed.
	convRoom eventbus.Room
	messages []*domain.Message
	index    map[string]*domain.Message
	closed   bool
}

// New creates an engine bound to the given bus and backend collaborators.
func New(fetcher HistoryFetcher, sender Sender, bus eventbus.Bus, hooks Hooks) (*Engine, error) {
	pool, err := ants.NewPool(sendWorkers)
	if err != nil {
		return nil, errors.Wrap(err, "create send pool")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		pool.Release()
		return nil, errors.Wrap(err, "create id node")
	}
	return &Engine{
		fetcher: fetcher,
		sender:  sender,
		bus:     bus,
		pool:    pool,
		idNode:  node,
		hooks:   hooks,
		index:   make(map[string]*domain.Message),
	}, nil
}

// Attach subscribes the engine's event handlers on the bus.
func (e *Engine) Attach(bus eventbus.Bus) error {
	if err := bus.Subscribe(domain.EventNewMessage, e.OnInboundEvent); err != nil {
		return err
	}
	if err := bus.Subscribe(domain.EventStatusUpdate, e.OnStatusUpdate); err != nil {
		return err
	}
	return bus.Subscribe(domain.EventTypingUpdate, e.OnTypingSignal)
}

// SetSession selects the transport session used for sends and joins its
// notification channel.
func (e *Engine) SetSession(sessionID string) error {
	id := identity.Normalize(sessionID)
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
	if id == "" {
		return nil
	}
	return e.bus.Join(eventbus.Room{SessionID: id})
}

// Open switches the open conversation: the previous room is left, the new
// one joined, and history loaded. Outstanding sends for the previous
// conversation are deliberately not cancelled; their eventual resolution is
// a safe no-op against the replaced list.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	conv := identity.Normalize(conversationID)
	if conv == "" {
		return ErrNoConversation
	}

	e.mu.Lock()
	prevRoom := e.convRoom
	newRoom := eventbus.Room{SessionID: e.sessionID, ConversationID: conv}
	e.open = conv
	e.convRoom = newRoom
	e.mu.Unlock()

	if prevRoom.ConversationID != "" && prevRoom.Key() != newRoom.Key() {
		if err := e.bus.Leave(prevRoom); err != nil {
			zap.L().Warn("engine: leave previous room failed",
				zap.String("room", prevRoom.Key()), zap.Error(err))
		}
	}
	if err := e.bus.Join(newRoom); err != nil {
		zap.L().Warn("engine: join room failed",
			zap.String("room", newRoom.Key()), zap.Error(err))
	}
	return e.LoadHistory(ctx, conv)
}

// LoadHistory fetches persisted messages, keeps the open conversation's
// slice sorted ascending by creation time and replaces the in-memory list
// wholesale.
func (e *Engine) LoadHistory(ctx context.Context, conversationID string) error {
	conv := identity.Normalize(conversationID)

	e.mu.Lock()
	session := e.sessionID
	e.mu.Unlock()
	if session == "" {
		return ErrNoSession
	}

	history, err := e.fetcher.ChatHistory(ctx, session)
	if err != nil {
		return errors.Wrap(err, "fetch history")
	}

	list := make([]*domain.Message, 0, len(history))
	for i := range history {
		if identity.Normalize(history[i].ConversationID) != conv {
			continue
		}
		msg := history[i]
		msg.ConversationID = conv
		list = append(list, &msg)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	e.mu.Lock()
	if e.closed || e.open != conv {
		// user already navigated elsewhere; drop the stale fetch
		e.mu.Unlock()
		return nil
	}
	e.messages = list
	e.index = make(map[string]*domain.Message, len(list))
	for _, m := range list {
		if m.ServerID != "" {
			e.index[m.ServerID] = m
		}
		if m.LocalID != "" {
			e.index[m.LocalID] = m
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	zap.L().Debug("engine: history loaded",
		zap.String("conversation", conv), zap.Int("count", len(list)))
	e.emitMessages(snap)
	return nil
}

// Send optimistically appends a pending entry and issues the network
// request asynchronously. The append is synchronous: the caller observes the
// pending entry before Send returns.
func (e *Engine) Send(ctx context.Context, plainText, richText string) (string, error) {
	if plainText == "" && richText == "" {
		return "", ErrEmptyMessage
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", errors.New("engine closed")
	}
	conv := e.open
	session := e.sessionID
	if conv == "" {
		e.mu.Unlock()
		return "", ErrNoConversation
	}
	if session == "" {
		e.mu.Unlock()
		return "", ErrNoSession
	}

	content := plainText
	if content == "" {
		content = markup.ToPlain(richText)
	}
	wireText := content
	if richText != "" {
		wireText = markup.ToWhatsApp(richText)
	}

	msg := &domain.Message{
		LocalID:        e.newLocalID(),
		ConversationID: conv,
		Direction:      domain.DirectionOut,
		Content:        content,
		RichContent:    richText,
		Status:         domain.MsgStatusPending,
		CreatedAt:      time.Now(),
	}
	e.messages = append(e.messages, msg)
	e.index[msg.LocalID] = msg
	localID := msg.LocalID
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitMessages(snap)

	submit := func() {
		var res domain.SendResult
		var err error
		if identity.IsGroup(conv) {
			res, err = e.sender.SendToGroup(ctx, session, conv, wireText)
		} else {
			res, err = e.sender.SendToUser(ctx, session, identity.ToUserJID(conv), wireText)
		}
		e.resolveSend(localID, res, err)
	}
	if err := e.pool.Submit(submit); err != nil {
		// pool rejected the job; fail the entry right away
		e.resolveSend(localID, domain.SendResult{}, errors.Wrap(err, "submit send"))
	}
	return localID, nil
}

// resolveSend applies the HTTP response to the pending entry. The entry's
// resolution state (status no longer pending) is the single source of truth
// that also suppresses echoed outbound socket events. A missing entry means
// the list was replaced since; that is a safe no-op.
func (e *Engine) resolveSend(localID string, res domain.SendResult, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	msg, ok := e.index[localID]
	if !ok || msg.Status != domain.MsgStatusPending {
		e.mu.Unlock()
		return
	}
	if err != nil || !res.Success {
		msg.Status = domain.MsgStatusFailed
	} else {
		msg.Status = domain.MsgStatusSent
		msg.ServerID = res.ServerID
		if res.ServerID != "" {
			e.index[res.ServerID] = msg
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err != nil {
		zap.L().Warn("engine: send failed", zap.String("local_id", localID), zap.Error(err))
	}
	e.emitMessages(snap)
}

// OnInboundEvent applies a newMessage socket event. Outbound echoes are
// no-ops: the HTTP response path already resolved the pending entry.
// Duplicate events (matching serverId, or localId for legacy events without
// one) are discarded. Events for a conversation that is not open only mark
// the summary list stale.
func (e *Engine) OnInboundEvent(evt *domain.MessageEvent) {
	if evt.Direction == domain.DirectionOut {
		zap.L().Debug("engine: ignoring outbound echo",
			zap.String("server_id", evt.ServerID))
		return
	}
	conv := identity.Normalize(evt.Sender)
	if conv == "" {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if conv != e.open {
		e.mu.Unlock()
		e.emitSummaryStale()
		return
	}
	if evt.ServerID != "" {
		if _, dup := e.index[evt.ServerID]; dup {
			e.mu.Unlock()
			return
		}
	} else if _, dup := e.index[evt.LocalID]; dup {
		e.mu.Unlock()
		return
	}

	status := evt.Status
	if domain.StatusRank(status) < domain.StatusRank(domain.MsgStatusSent) {
		status = domain.MsgStatusSent
	}
	msg := &domain.Message{
		LocalID:        evt.LocalID,
		ServerID:       evt.ServerID,
		ConversationID: conv,
		Direction:      domain.DirectionIn,
		Content:        evt.Content,
		RichContent:    evt.RichContent,
		Status:         status,
		CreatedAt:      evt.CreatedAt,
	}
	e.messages = append(e.messages, msg)
	if msg.ServerID != "" {
		e.index[msg.ServerID] = msg
	}
	if msg.LocalID != "" {
		e.index[msg.LocalID] = msg
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitMessages(snap)
	e.emitSummaryStale()
}

// OnStatusUpdate mutates a message's status in place, accepting only
// equal-or-later transitions in the order pending < sent < delivered < read.
// failed is a sink reachable only from pending. Unknown server ids are
// acceptable staleness, corrected by the next history pull.
func (e *Engine) OnStatusUpdate(evt *domain.StatusEvent) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	msg, ok := e.index[evt.ServerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if evt.Status == domain.MsgStatusFailed {
		if msg.Status != domain.MsgStatusPending {
			e.mu.Unlock()
			return
		}
	} else if domain.StatusRank(evt.Status) < domain.StatusRank(msg.Status) {
		// stale out-of-order update, never downgrade
		e.mu.Unlock()
		return
	}
	if msg.Status == evt.Status {
		e.mu.Unlock()
		return
	}
	msg.Status = evt.Status
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitMessages(snap)
}

// OnTypingSignal relays typing state for the open conversation. No state is
// kept.
func (e *Engine) OnTypingSignal(evt *domain.TypingEvent) {
	e.mu.Lock()
	open := e.open
	e.mu.Unlock()
	if open == "" || !identity.Same(evt.ConversationID, open) {
		return
	}
	if e.hooks.OnTyping != nil {
		e.hooks.OnTyping(open, evt.IsTyping)
	}
}

// Messages returns a snapshot of the open conversation's list.
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// OpenConversation returns the normalized id of the open conversation.
func (e *Engine) OpenConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Close releases the send pool. In-flight resolutions become no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.pool.Release()
}

func (e *Engine) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(e.messages))
	for i, m := range e.messages {
		out[i] = *m
	}
	return out
}

func (e *Engine) emitMessages(snap []domain.Message) {
	if e.hooks.OnMessages != nil {
		e.hooks.OnMessages(snap)
	}
}

func (e *Engine) emitSummaryStale() {
	if e.hooks.OnSummaryStale != nil {
		e.hooks.OnSummaryStale()
	}
}

// newLocalID builds a collision-resistant client id: a snowflake (time
// ordered) plus a short random suffix.
func (e *Engine) newLocalID() string {
	return e.idNode.Generate().String() + "-" + random.String(4)
}
