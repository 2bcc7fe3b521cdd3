package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/eventbus"
)

type fakeFetcher struct {
	mu      sync.Mutex
	history []domain.Message
	err     error
}

func (f *fakeFetcher) ChatHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.err
}

type fakeSender struct {
	mu      sync.Mutex
	res     domain.SendResult
	err     error
	sent    []string
	release chan struct{} // when set, sends block until closed
}

func (f *fakeSender) send(to, text string) (domain.SendResult, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+":"+text)
	return f.res, f.err
}

func (f *fakeSender) SendToUser(ctx context.Context, sessionID, to, text string) (domain.SendResult, error) {
	return f.send(to, text)
}

func (f *fakeSender) SendToGroup(ctx context.Context, sessionID, groupID, text string) (domain.SendResult, error) {
	return f.send(groupID, text)
}

type fakeBus struct {
	mu     sync.Mutex
	joined []string
	left   []string
}

func (f *fakeBus) Subscribe(event string, fn interface{}) error   { return nil }
func (f *fakeBus) Unsubscribe(event string, fn interface{}) error { return nil }
func (f *fakeBus) Close() error                                   { return nil }

func (f *fakeBus) Join(room eventbus.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, room.Key())
	return nil
}

func (f *fakeBus) Leave(room eventbus.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, room.Key())
	return nil
}

type env struct {
	engine  *Engine
	fetcher *fakeFetcher
	sender  *fakeSender
	bus     *fakeBus

	mu      sync.Mutex
	stale   int
	typings []bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{fetcher: &fakeFetcher{}, sender: &fakeSender{}, bus: &fakeBus{}}
	hooks := Hooks{
		OnSummaryStale: func() {
			e.mu.Lock()
			e.stale++
			e.mu.Unlock()
		},
		OnTyping: func(conv string, isTyping bool) {
			e.mu.Lock()
			e.typings = append(e.typings, isTyping)
			e.mu.Unlock()
		},
	}
	eng, err := New(e.fetcher, e.sender, e.bus, hooks)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Close)
	e.engine = eng
	return e
}

func (e *env) openConversation(t *testing.T, conv string) {
	t.Helper()
	if err := e.engine.SetSession("628999"); err != nil {
		t.Fatal(err)
	}
	if err := e.engine.Open(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
}

func (e *env) staleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func inbound(conv, serverID, content string) *domain.MessageEvent {
	return &domain.MessageEvent{
		ServerID:  serverID,
		Sender:    conv,
		Direction: domain.DirectionIn,
		Content:   content,
		Status:    domain.MsgStatusSent,
		CreatedAt: time.Now(),
	}
}

func TestSendValidation(t *testing.T) {
	e := newEnv(t)

	if _, err := e.engine.Send(context.Background(), "", ""); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := e.engine.Send(context.Background(), "hi", ""); err != ErrNoConversation {
		t.Errorf("expected ErrNoConversation, got %v", err)
	}
	e.openConversation(t, "919876543210")
	e.engine.sessionID = "" // simulate lost transport session
	if _, err := e.engine.Send(context.Background(), "hi", ""); err != ErrNoSession {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestOptimisticThenConfirm(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.sender.release = make(chan struct{})
	e.sender.res = domain.SendResult{Success: true, ServerID: "s1"}

	localID, err := e.engine.Send(context.Background(), "hi", "")
	if err != nil {
		t.Fatal(err)
	}

	// synchronous optimistic append: pending entry visible immediately
	msgs := e.engine.Messages()
	if len(msgs) != 1 || msgs[0].Status != domain.MsgStatusPending || msgs[0].LocalID != localID {
		t.Fatalf("expected one pending entry, got %+v", msgs)
	}

	close(e.sender.release)
	waitFor(t, func() bool {
		m := e.engine.Messages()
		return len(m) == 1 && m[0].Status == domain.MsgStatusSent
	})
	msgs = e.engine.Messages()
	if msgs[0].ServerID != "s1" {
		t.Errorf("expected serverId s1, got %+v", msgs[0])
	}
	if len(msgs) != 1 {
		t.Errorf("confirmation must mutate in place, not duplicate: %d entries", len(msgs))
	}
}

func TestSendFailureMarksFailed(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.sender.err = context.DeadlineExceeded

	if _, err := e.engine.Send(context.Background(), "hi", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		m := e.engine.Messages()
		return len(m) == 1 && m[0].Status == domain.MsgStatusFailed
	})
}

func TestOutboundEchoIgnoredAfterHTTPResolution(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.sender.res = domain.SendResult{Success: true, ServerID: "s1"}

	if _, err := e.engine.Send(context.Background(), "hi", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		m := e.engine.Messages()
		return len(m) == 1 && m[0].Status == domain.MsgStatusSent
	})

	// the socket echoes our own send; it must not create a second entry
	e.engine.OnInboundEvent(&domain.MessageEvent{
		ServerID:  "s1",
		Recipient: "919876543210",
		Direction: domain.DirectionOut,
		Content:   "hi",
		CreatedAt: time.Now(),
	})
	if m := e.engine.Messages(); len(m) != 1 {
		t.Errorf("outbound echo duplicated the entry: %d", len(m))
	}
}

func TestInboundDedupByServerID(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")

	evt := inbound("919876543210", "srv-9", "hello")
	e.engine.OnInboundEvent(evt)
	e.engine.OnInboundEvent(evt)

	if m := e.engine.Messages(); len(m) != 1 {
		t.Fatalf("duplicate event produced %d entries", len(m))
	}
}

func TestInboundDedupByLocalIDWhenServerIDMissing(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")

	evt := &domain.MessageEvent{
		LocalID:   "legacy-1",
		Sender:    "919876543210",
		Direction: domain.DirectionIn,
		Content:   "old backend",
		CreatedAt: time.Now(),
	}
	e.engine.OnInboundEvent(evt)
	e.engine.OnInboundEvent(evt)

	if m := e.engine.Messages(); len(m) != 1 {
		t.Fatalf("legacy dedup failed, got %d entries", len(m))
	}
}

func TestInboundForClosedConversationOnlyMarksStale(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")

	e.engine.OnInboundEvent(inbound("628222", "srv-else", "other chat"))

	if m := e.engine.Messages(); len(m) != 0 {
		t.Errorf("closed conversation's event must not touch the open list: %+v", m)
	}
	if e.staleCount() != 1 {
		t.Errorf("expected one stale notification, got %d", e.staleCount())
	}
}

func TestStatusMonotonicUpgradeOnly(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.engine.OnInboundEvent(inbound("919876543210", "srv-1", "hi"))

	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "srv-1", Status: domain.MsgStatusDelivered})
	if m := e.engine.Messages(); m[0].Status != domain.MsgStatusDelivered {
		t.Fatalf("expected delivered, got %s", m[0].Status)
	}

	// stale out-of-order downgrade must be rejected
	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "srv-1", Status: domain.MsgStatusSent})
	if m := e.engine.Messages(); m[0].Status != domain.MsgStatusDelivered {
		t.Errorf("stale status downgraded the message to %s", m[0].Status)
	}

	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "srv-1", Status: domain.MsgStatusRead})
	if m := e.engine.Messages(); m[0].Status != domain.MsgStatusRead {
		t.Errorf("expected read, got %s", m[0].Status)
	}
	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "srv-1", Status: domain.MsgStatusDelivered})
	if m := e.engine.Messages(); m[0].Status != domain.MsgStatusRead {
		t.Errorf("read was downgraded to %s", m[0].Status)
	}

	// failed is a sink only from pending
	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "srv-1", Status: domain.MsgStatusFailed})
	if m := e.engine.Messages(); m[0].Status != domain.MsgStatusRead {
		t.Errorf("failed overrode a confirmed message: %s", m[0].Status)
	}
}

func TestStatusUpdateUnknownServerIDIsNoop(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.engine.OnStatusUpdate(&domain.StatusEvent{ServerID: "nope", Status: domain.MsgStatusRead})
	if m := e.engine.Messages(); len(m) != 0 {
		t.Errorf("unexpected mutation: %+v", m)
	}
}

func TestLoadHistorySortsAndFilters(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	e := newEnv(t)
	e.fetcher.history = []domain.Message{
		{ServerID: "c", ConversationID: "919876543210", Direction: domain.DirectionIn, Content: "third", Status: domain.MsgStatusSent, CreatedAt: base.Add(3 * time.Minute)},
		{ServerID: "a", ConversationID: "919876543210", Direction: domain.DirectionIn, Content: "first", Status: domain.MsgStatusSent, CreatedAt: base.Add(1 * time.Minute)},
		{ServerID: "x", ConversationID: "628222", Direction: domain.DirectionIn, Content: "other", Status: domain.MsgStatusSent, CreatedAt: base.Add(2 * time.Minute)},
		{ServerID: "b", ConversationID: "919876543210", Direction: domain.DirectionOut, Content: "second", Status: domain.MsgStatusRead, CreatedAt: base.Add(2 * time.Minute)},
	}
	e.openConversation(t, "919876543210")

	msgs := e.engine.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after filter, got %d", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if msgs[i].ServerID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, msgs[i].ServerID)
		}
	}
}

func TestOpenSwitchesRooms(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	if err := e.engine.Open(context.Background(), "628222"); err != nil {
		t.Fatal(err)
	}

	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	wantLeft := "628999/919876543210"
	found := false
	for _, k := range e.bus.left {
		if k == wantLeft {
			found = true
		}
	}
	if !found {
		t.Errorf("expected leave of %s, got %v", wantLeft, e.bus.left)
	}
}

func TestOpenAfterSessionSwitchLeavesOriginalRoom(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")

	// the transport session changes before the next navigation; the old
	// room must be left under the session it was joined with
	if err := e.engine.SetSession("628000"); err != nil {
		t.Fatal(err)
	}
	if err := e.engine.Open(context.Background(), "628222"); err != nil {
		t.Fatal(err)
	}

	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	if len(e.bus.left) != 1 || e.bus.left[0] != "628999/919876543210" {
		t.Fatalf("left rooms = %v, want exactly the original 628999/919876543210", e.bus.left)
	}
	foundNew := false
	for _, k := range e.bus.joined {
		if k == "628000/628222" {
			foundNew = true
		}
	}
	if !foundNew {
		t.Errorf("joined rooms = %v, missing 628000/628222", e.bus.joined)
	}
}

func TestStaleSendResolutionAfterNavigation(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")
	e.sender.release = make(chan struct{})
	e.sender.res = domain.SendResult{Success: true, ServerID: "late"}

	if _, err := e.engine.Send(context.Background(), "hi", ""); err != nil {
		t.Fatal(err)
	}
	// navigate away while the send is still in flight
	if err := e.engine.Open(context.Background(), "628222"); err != nil {
		t.Fatal(err)
	}
	close(e.sender.release)

	// the late resolution must be a safe no-op against the new list
	time.Sleep(50 * time.Millisecond)
	if m := e.engine.Messages(); len(m) != 0 {
		t.Errorf("stale resolution mutated the new conversation: %+v", m)
	}
}

func TestTypingSignalScopedToOpenConversation(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "919876543210")

	e.engine.OnTypingSignal(&domain.TypingEvent{ConversationID: "+91 98765 43210", IsTyping: true})
	e.engine.OnTypingSignal(&domain.TypingEvent{ConversationID: "628222", IsTyping: true})
	e.engine.OnTypingSignal(&domain.TypingEvent{ConversationID: "919876543210", IsTyping: false})

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.typings) != 2 || e.typings[0] != true || e.typings[1] != false {
		t.Errorf("unexpected typing relay: %v", e.typings)
	}
}

func TestGroupSendUsesGroupEndpoint(t *testing.T) {
	e := newEnv(t)
	e.openConversation(t, "team@g.us")
	e.sender.res = domain.SendResult{Success: true, ServerID: "g1"}

	if _, err := e.engine.Send(context.Background(), "hello all", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		e.sender.mu.Lock()
		defer e.sender.mu.Unlock()
		return len(e.sender.sent) == 1
	})
	e.sender.mu.Lock()
	defer e.sender.mu.Unlock()
	if e.sender.sent[0] != "team@g.us:hello all" {
		t.Errorf("unexpected send target: %v", e.sender.sent)
	}
}
