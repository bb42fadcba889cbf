package engine

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/rest"
	"github.com/emberchat/ember/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// mockAPI implements API with canned responses and call recording.
type mockAPI struct {
	mu          sync.Mutex
	chats       []rest.ChatRecord
	chatsErr    error
	messages    map[string][]rest.MessageRecord
	messagesErr error
	uploaded    *rest.UploadResult
	uploadErr   error
	uploadGate  chan struct{}
	markReads   []string
	deletes     []string
	blocks      []string
	uploads     []string
}

func (m *mockAPI) ListChats(context.Context, string) ([]rest.ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats, m.chatsErr
}

func (m *mockAPI) ListMessages(_ context.Context, chatID string) ([]rest.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[chatID], m.messagesErr
}

func (m *mockAPI) MarkRead(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markReads = append(m.markReads, chatID)
	return nil
}

func (m *mockAPI) DeleteChat(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, chatID)
	return nil
}

func (m *mockAPI) BlockUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, userID)
	return nil
}

func (m *mockAPI) Upload(_ context.Context, fileName string, _ io.Reader) (*rest.UploadResult, error) {
	m.mu.Lock()
	m.uploads = append(m.uploads, fileName)
	gate := m.uploadGate
	result, err := m.uploaded, m.uploadErr
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return result, err
}

// mockTransport implements Transport and records emitted frames.
type mockTransport struct {
	mu        sync.Mutex
	connected bool
	emitErr   error
	frames    []any
}

func (m *mockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Emit(_ context.Context, frame any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockTransport) sentFrames() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.frames))
	copy(out, m.frames)
	return out
}

func newTestEngine(t *testing.T, api *mockAPI) (*Engine, *mockTransport, *bus.Bus) {
	t.Helper()
	if api.messages == nil {
		api.messages = map[string][]rest.MessageRecord{}
	}
	b := bus.New()
	e, err := New("u1", api, testDB(t), b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tr := &mockTransport{connected: true}
	e.AttachTransport(tr)
	e.Start()
	t.Cleanup(e.Stop)
	return e, tr, b
}

// seedChats loads summaries straight onto the engine loop.
func seedChats(e *Engine, records ...rest.ChatRecord) {
	e.call(func() { e.applyChatList(records) })
}

// chatWith builds a server row where u1 occupies the first slot.
func chatWith(chatID, peerID, peerName string, unread int, lastBody string, lastAt int64) rest.ChatRecord {
	rec := rest.ChatRecord{
		ID:             chatID,
		User1ID:        "u1",
		User2ID:        peerID,
		User1:          rest.UserRecord{ID: "u1", Username: "Me"},
		User2:          rest.UserRecord{ID: peerID, Username: peerName},
		UnreadCount1:   unread,
		CreatedAt:      1,
		LastActivityAt: lastAt,
	}
	if lastBody != "" {
		rec.LastMessage = &rest.LastRecord{Content: lastBody, CreatedAt: lastAt}
	}
	return rec
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", desc)
}

func TestApplyChatListSlotSelection(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)

	// u1 sits in slot 1 of c1 and slot 2 of c2; the engine must pick the
	// counter matching its own slot.
	seedChats(e,
		chatWith("c1", "bob", "Bob", 2, "hey", 100),
		rest.ChatRecord{
			ID:           "c2",
			User1ID:      "carol",
			User2ID:      "u1",
			User1:        rest.UserRecord{ID: "carol", Username: "Carol"},
			User2:        rest.UserRecord{ID: "u1", Username: "Me"},
			UnreadCount1: 9,
			UnreadCount2: 3,
			CreatedAt:    1,
		},
	)

	chats := e.Chats()
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	byID := map[string]Chat{}
	for _, c := range chats {
		byID[c.ID] = c
	}
	if byID["c1"].Unread != 2 || byID["c1"].Peer.Username != "Bob" {
		t.Errorf("c1 = %+v", byID["c1"])
	}
	if byID["c2"].Unread != 3 || byID["c2"].Peer.Username != "Carol" {
		t.Errorf("c2 = %+v (slot-2 counter and peer expected)", byID["c2"])
	}
}

func TestChatListSortedByRecency(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)

	seedChats(e,
		chatWith("old", "a", "A", 0, "x", 100),
		chatWith("new", "b", "B", 0, "y", 300),
		chatWith("mid", "c", "C", 0, "z", 200),
	)

	chats := e.Chats()
	got := []string{chats[0].ID, chats[1].ID, chats[2].ID}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestUnreadMergeNeverDecreases(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)
	seedChats(e, chatWith("cA", "bob", "Bob", 2, "hi", 100))

	if got := e.Unread("cA"); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}

	// Server now reports fewer than we already know about.
	seedChats(e, chatWith("cA", "bob", "Bob", 1, "hi", 100))
	if got := e.Unread("cA"); got != 2 {
		t.Errorf("unread after merge = %d, want 2 (never decreased)", got)
	}

	// A higher server count does win.
	seedChats(e, chatWith("cA", "bob", "Bob", 7, "hi", 100))
	if got := e.Unread("cA"); got != 7 {
		t.Errorf("unread after merge = %d, want 7", got)
	}
}

func TestOpenChatClearsUnread(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)
	seedChats(e, chatWith("cA", "bob", "Bob", 5, "hi", 100))

	e.OpenChat(context.Background(), "cA")

	if got := e.Unread("cA"); got != 0 {
		t.Errorf("unread after open = %d, want 0", got)
	}
	waitFor(t, "mark-read call", func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.markReads) == 1 && api.markReads[0] == "cA"
	})
}

func TestRefreshFailureDegradesToEmpty(t *testing.T) {
	api := &mockAPI{chatsErr: errors.New("gateway timeout")}
	e, _, b := newTestEngine(t, api)
	loaded, unsub := b.Subscribe(bus.KindChatListLoaded, 4)
	defer unsub()

	e.RefreshChats(context.Background())

	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("no chat list notification after failed refresh")
	}
	if got := e.Chats(); len(got) != 0 {
		t.Errorf("got %d chats from failed fetch, want 0", len(got))
	}
}

func TestPresenceDefaultsOfflineOnLoad(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)

	// Server claims bob is online, but no socket event said so; unknown
	// presence defaults to offline.
	rec := chatWith("c1", "bob", "Bob", 0, "", 0)
	rec.User2.IsOnline = true
	seedChats(e, rec)

	if e.Chats()[0].Peer.Online {
		t.Error("peer online = true, want false (last-known, default offline)")
	}
}

func TestDeleteChatLocalFirst(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)
	seedChats(e, chatWith("c1", "bob", "Bob", 0, "hi", 100))

	e.DeleteChat(context.Background(), "c1")

	if got := e.Chats(); len(got) != 0 {
		t.Errorf("chat still listed after delete: %v", got)
	}
	waitFor(t, "server delete call", func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.deletes) == 1
	})
}

func TestBlockUserRemovesChat(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)
	seedChats(e, chatWith("c1", "bob", "Bob", 0, "hi", 100))

	e.BlockUser(context.Background(), "bob")

	if got := e.Chats(); len(got) != 0 {
		t.Errorf("chat with blocked user still listed: %v", got)
	}
	waitFor(t, "block call", func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.blocks) == 1 && api.blocks[0] == "bob"
	})
}

func TestOpenChatLoadsVisibleMessages(t *testing.T) {
	now := time.Now().UnixMilli()
	api := &mockAPI{
		messages: map[string][]rest.MessageRecord{
			"c1": {
				{ID: "m1", ChatID: "c1", SenderID: "bob", ReceiverID: "u1",
					Content: "live", MessageType: "text",
					CreatedAt: now, ExpiresAt: now + 60_000},
				{ID: "m2", ChatID: "c1", SenderID: "bob", ReceiverID: "u1",
					Content: "already gone", MessageType: "text",
					CreatedAt: now - 10_000, ExpiresAt: now - 1000},
			},
		},
	}
	e, _, _ := newTestEngine(t, api)
	seedChats(e, chatWith("c1", "bob", "Bob", 0, "", 0))

	e.OpenChat(context.Background(), "c1")

	waitFor(t, "messages to load", func() bool { return len(e.Messages("c1")) > 0 })
	msgs := e.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("visible = %+v, want only m1 (m2 already expired)", msgs)
	}
}
