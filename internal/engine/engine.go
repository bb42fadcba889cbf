package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/clock"
	"github.com/emberchat/ember/internal/rest"
	"github.com/emberchat/ember/internal/store"
)

// Sentinel errors for rejected user actions.
var (
	ErrNoChat       = errors.New("engine: no chat selected")
	ErrNotConnected = errors.New("engine: transport not connected")
)

// API is the request/response surface the engine consumes.
type API interface {
	ListChats(ctx context.Context, userID string) ([]rest.ChatRecord, error)
	ListMessages(ctx context.Context, chatID string) ([]rest.MessageRecord, error)
	MarkRead(ctx context.Context, chatID string) error
	DeleteChat(ctx context.Context, chatID string) error
	BlockUser(ctx context.Context, userID string) error
	Upload(ctx context.Context, fileName string, content io.Reader) (*rest.UploadResult, error)
}

// Transport is the socket surface the engine consumes: emit frames and
// ask whether a connection is up. Connection mechanics live elsewhere.
type Transport interface {
	Connected() bool
	Emit(ctx context.Context, frame any) error
}

// Engine owns every chat/message/presence/typing/unread projection for
// one user. All mutations run on a single loop goroutine: user actions,
// timer fires, socket events and network completions are closures posted
// to the loop, so no two handlers ever run concurrently.
type Engine struct {
	userID string
	logger *zap.Logger
	bus    *bus.Bus
	api    API
	sock   Transport

	sched    *clock.Scheduler
	cutoffs  *cutoffStore
	presence *presenceTracker
	typing   *typingTracker
	unread   *unreadCounter
	msgs     *messageStore
	chats    *chatList

	openChatID  string
	lastLocalID int64

	calls chan func()
	quit  chan struct{}
	done  chan struct{}
}

// New creates an engine for one user, loading the persisted cutoff map.
// AttachTransport must be called before Start.
func New(userID string, api API, db *store.DB, b *bus.Bus, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		userID:   userID,
		logger:   logger,
		bus:      b,
		api:      api,
		presence: newPresenceTracker(),
		unread:   newUnreadCounter(),
		msgs:     newMessageStore(),
		chats:    newChatList(),
		calls:    make(chan func(), 128),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.sched = clock.New(e.post)
	e.typing = newTypingTracker(e.sched, func(chatID string, typing bool) {
		e.publish(bus.KindTypingChanged, TypingChange{ChatID: chatID, Typing: typing})
	})

	cutoffs, err := newCutoffStore(userID, db, logger)
	if err != nil {
		return nil, err
	}
	e.cutoffs = cutoffs
	return e, nil
}

// AttachTransport wires the socket surface. Called once during assembly,
// before Start; the socket's handlers in turn point back at the engine.
func (e *Engine) AttachTransport(t Transport) {
	e.sock = t
}

// UserID returns the local user the engine was built for.
func (e *Engine) UserID() string {
	return e.userID
}

// Start launches the engine loop.
func (e *Engine) Start() {
	go e.loop()
}

// Stop tears the engine down: the loop exits and every pending timer is
// cancelled.
func (e *Engine) Stop() {
	select {
	case <-e.quit:
		return
	default:
	}
	close(e.quit)
	<-e.done
	e.sched.Stop()
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.calls:
			fn()
		case <-e.quit:
			return
		}
	}
}

// post queues a mutation onto the loop. Dropped silently after Stop.
func (e *Engine) post(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.quit:
	}
}

// call runs a mutation on the loop and waits for it. Returns immediately
// after Stop without running fn.
func (e *Engine) call(fn func()) {
	ran := make(chan struct{})
	select {
	case e.calls <- func() {
		fn()
		close(ran)
	}:
	case <-e.quit:
		return
	}
	select {
	case <-ran:
	case <-e.quit:
	}
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// nextLocalID generates a placeholder message id: current time in
// milliseconds, bumped to stay strictly monotonic within this instance.
func (e *Engine) nextLocalID() int64 {
	id := time.Now().UnixMilli()
	if id <= e.lastLocalID {
		id = e.lastLocalID + 1
	}
	e.lastLocalID = id
	return id
}

// SetConnected receives transport state transitions. On disconnect every
// known participant reads as offline until fresh presence arrives; on
// reconnect the chat list is refreshed since events may have been missed.
func (e *Engine) SetConnected(connected bool) {
	e.post(func() {
		e.publish(bus.KindConnState, connected)
		if connected {
			go e.refreshChats(context.Background())
			return
		}
		for _, id := range e.presence.resetAll() {
			e.chats.setPresence(id, false, e.presence.lastSeenAt(id))
			e.publish(bus.KindPresenceChanged, PresenceChange{
				UserID:   id,
				LastSeen: e.presence.lastSeenAt(id),
			})
		}
	})
}

// RefreshChats reloads the chat list from the service. Fetch failures
// degrade to an empty server result; they never propagate to the caller.
func (e *Engine) RefreshChats(ctx context.Context) {
	go e.refreshChats(ctx)
}

func (e *Engine) refreshChats(ctx context.Context) {
	records, err := e.api.ListChats(ctx, e.userID)
	if err != nil {
		e.logger.Warn("chat list fetch failed", zap.Error(err))
		records = nil
	}
	e.post(func() { e.applyChatList(records) })
}

// applyChatList projects server rows into summaries: picks the unread
// counter matching the local user's participant slot, max-merges it with
// the local count, applies last-known presence (default offline) and
// sorts by recency.
func (e *Engine) applyChatList(records []rest.ChatRecord) {
	serverUnread := make(map[string]int, len(records))
	chats := make([]Chat, 0, len(records))

	for _, rec := range records {
		other := rec.User2
		unread := rec.UnreadCount1
		if rec.User2ID == e.userID {
			other = rec.User1
			unread = rec.UnreadCount2
		}
		serverUnread[rec.ID] = unread

		c := Chat{
			ID: rec.ID,
			Peer: Peer{
				ID:       other.ID,
				Username: other.Username,
				Online:   e.presence.isOnline(other.ID),
				LastSeen: e.presence.lastSeenAt(other.ID),
			},
			CreatedAt:      rec.CreatedAt,
			LastActivityAt: rec.LastActivityAt,
		}
		if rec.LastMessage != nil {
			c.LastBody = rec.LastMessage.Content
			c.LastAt = rec.LastMessage.CreatedAt
		}
		chats = append(chats, c)
	}

	e.unread.mergeFromServer(serverUnread)
	for i := range chats {
		chats[i].Unread = e.unread.get(chats[i].ID)
	}

	e.chats.load(chats)
	e.publish(bus.KindChatListLoaded, e.chats.snapshot())
}

// OpenChat makes chatID the active chat: clears its unread badge, cancels
// the previous chat's outbound typing debounce, asks the service to mark
// it read and fetches its visible messages. In-flight sends or uploads
// for the previous chat are left alone; their results still apply.
func (e *Engine) OpenChat(ctx context.Context, chatID string) {
	e.call(func() {
		if prev := e.openChatID; prev != "" && prev != chatID {
			e.sched.Cancel(typingOutKey(prev))
		}
		e.openChatID = chatID
		e.unread.clear(chatID)
		e.chats.setUnread(chatID, 0)
		e.publish(bus.KindUnreadChanged, UnreadChange{ChatID: chatID, Count: 0})
	})

	go func() {
		if err := e.api.MarkRead(ctx, chatID); err != nil {
			e.logger.Warn("mark-read failed", zap.String("chat", chatID), zap.Error(err))
			return
		}
		// Acknowledged: make sure the badge stays cleared even if events
		// raced the call.
		e.post(func() {
			e.unread.clear(chatID)
			e.chats.setUnread(chatID, 0)
			e.publish(bus.KindUnreadChanged, UnreadChange{ChatID: chatID, Count: 0})
		})
	}()

	go func() {
		records, err := e.api.ListMessages(ctx, chatID)
		if err != nil {
			e.logger.Warn("message fetch failed", zap.String("chat", chatID), zap.Error(err))
			records = nil
		}
		e.post(func() { e.applyMessages(chatID, records) })
	}()
}

// CloseChat deselects the active chat.
func (e *Engine) CloseChat() {
	e.call(func() {
		if e.openChatID != "" {
			e.sched.Cancel(typingOutKey(e.openChatID))
		}
		e.openChatID = ""
	})
}

// applyMessages loads a fetched history: cutoff-filtered, already-expired
// entries dropped, expiry timers scheduled for every survivor.
func (e *Engine) applyMessages(chatID string, records []rest.MessageRecord) {
	// Cancel timers for whatever the load replaces; survivors are
	// rescheduled below (idempotent per message id).
	for _, m := range e.msgs.drop(chatID) {
		e.sched.Cancel(expiryKey(m.ChatID, m.ID))
	}

	now := time.Now().UnixMilli()
	msgs := make([]Message, 0, len(records))
	for _, rec := range records {
		m := Message{
			ID:         rec.ID,
			ChatID:     rec.ChatID,
			SenderID:   rec.SenderID,
			ReceiverID: rec.ReceiverID,
			Body:       rec.Content,
			Kind:       Kind(rec.MessageType),
			FileName:   rec.FileName,
			FileSize:   rec.FileSize,
			CreatedAt:  rec.CreatedAt,
			ExpiresAt:  rec.ExpiresAt,
		}
		if m.ExpiresAt != 0 && m.ExpiresAt <= now {
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = e.cutoffs.filter(chatID, msgs)

	e.msgs.replace(chatID, msgs)
	for _, m := range msgs {
		e.scheduleExpiry(m)
	}
	e.publish(bus.KindMessagesLoaded, chatID)
}

// scheduleExpiry registers the self-destruct timer for a message.
// Re-scheduling the same id replaces the previous timer, never doubles it.
func (e *Engine) scheduleExpiry(m Message) {
	if m.ExpiresAt == 0 {
		return
	}
	chatID, msgID := m.ChatID, m.ID
	e.sched.Schedule(expiryKey(chatID, msgID), time.UnixMilli(m.ExpiresAt), func() {
		e.expire(chatID, msgID)
	})
}

// expire runs on the loop when a timer fires: the message has passed its
// expiry by construction, so it is removed unconditionally.
func (e *Engine) expire(chatID, msgID string) {
	if _, ok := e.msgs.remove(chatID, msgID); ok {
		e.publish(bus.KindMessageExpired, MessageRef{ChatID: chatID, MessageID: msgID})
	}
}

// DeleteChat hides the chat locally first: cutoff recorded and persisted,
// messages and timers dropped, summary removed. The server delete runs in
// the background and is never reverted on failure.
func (e *Engine) DeleteChat(ctx context.Context, chatID string) {
	e.call(func() {
		e.removeChatLocal(chatID)
		e.cutoffs.setNow(chatID)
	})

	go func() {
		if err := e.api.DeleteChat(ctx, chatID); err != nil {
			e.logger.Warn("server delete failed, local removal stands",
				zap.String("chat", chatID), zap.Error(err))
		}
	}()
}

// BlockUser blocks a user and removes the conversation with them locally.
func (e *Engine) BlockUser(ctx context.Context, userID string) {
	e.call(func() {
		for _, c := range e.chats.snapshot() {
			if c.Peer.ID == userID {
				e.removeChatLocal(c.ID)
				break
			}
		}
	})

	go func() {
		if err := e.api.BlockUser(ctx, userID); err != nil {
			e.logger.Warn("block failed", zap.String("target", userID), zap.Error(err))
		}
	}()
}

// removeChatLocal is the shared local-removal path for delete and block.
func (e *Engine) removeChatLocal(chatID string) {
	for _, m := range e.msgs.drop(chatID) {
		e.sched.Cancel(expiryKey(m.ChatID, m.ID))
	}
	e.sched.Cancel(typingOutKey(chatID))
	e.typing.forget(chatID)
	e.unread.clear(chatID)
	e.chats.remove(chatID)
	if e.openChatID == chatID {
		e.openChatID = ""
	}
	e.publish(bus.KindChatRemoved, chatID)
}

func expiryKey(chatID, msgID string) string {
	return "expire:" + chatID + "/" + msgID
}

// Chats returns the current ordered chat list snapshot.
func (e *Engine) Chats() []Chat {
	var out []Chat
	e.call(func() { out = e.chats.snapshot() })
	return out
}

// Messages returns the visible message sequence for a chat.
func (e *Engine) Messages(chatID string) []Message {
	var out []Message
	e.call(func() { out = e.msgs.snapshot(chatID) })
	return out
}

// Unread returns the unread count for a chat.
func (e *Engine) Unread(chatID string) int {
	var out int
	e.call(func() { out = e.unread.get(chatID) })
	return out
}

// PeerOnline reports a user's presence, defaulting to offline.
func (e *Engine) PeerOnline(userID string) bool {
	var out bool
	e.call(func() { out = e.presence.isOnline(userID) })
	return out
}

// PeerTyping reports whether the other party is typing in a chat.
func (e *Engine) PeerTyping(chatID string) bool {
	var out bool
	e.call(func() { out = e.typing.typing(chatID) })
	return out
}

// OpenChatID returns the currently open chat, empty when none.
func (e *Engine) OpenChatID() string {
	var out string
	e.call(func() { out = e.openChatID })
	return out
}
