package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/bus"
	"github.com/emberchat/ember/internal/rest"
	"github.com/emberchat/ember/internal/transport"
)

// openSeededChat opens c1 and waits for its (empty) history to load so a
// later applyMessages cannot race the test's own inserts.
func openSeededChat(t *testing.T, e *Engine, b *bus.Bus) {
	t.Helper()
	seedChats(e, chatWith("c1", "bob", "Bob", 0, "old preview", 100))
	loaded, unsub := b.Subscribe(bus.KindMessagesLoaded, 4)
	defer unsub()
	e.OpenChat(context.Background(), "c1")
	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("history never loaded")
	}
}

func TestSendRejectsWithoutOpenChat(t *testing.T) {
	api := &mockAPI{}
	e, _, _ := newTestEngine(t, api)

	_, err := e.SendMessage(context.Background(), "hi", KindText, 10, nil)
	if !errors.Is(err, ErrNoChat) {
		t.Errorf("error = %v, want ErrNoChat", err)
	}
}

func TestSendRejectsWhenDisconnected(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	tr.mu.Lock()
	tr.connected = false
	tr.mu.Unlock()

	_, err := e.SendMessage(context.Background(), "hi", KindText, 10, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
	if got := len(e.Messages("c1")); got != 0 {
		t.Errorf("got %d messages, want 0 (nothing queued while offline)", got)
	}
}

func TestSendOptimisticInsert(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	m, err := e.SendMessage(context.Background(), "hi there", KindText, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Visible synchronously, before any network round trip.
	msgs := e.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != m.ID {
		t.Fatalf("messages = %+v, want the placeholder", msgs)
	}
	if msgs[0].SenderID != "u1" || msgs[0].ReceiverID != "bob" {
		t.Errorf("placeholder routing = %s->%s", msgs[0].SenderID, msgs[0].ReceiverID)
	}
	if want := m.CreatedAt + 10_000; m.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", m.ExpiresAt, want)
	}
	chat := e.Chats()[0]
	if chat.LastBody != "hi there" {
		t.Errorf("preview = %q, want optimistic bump", chat.LastBody)
	}

	var pending bool
	e.call(func() { pending = e.sched.Pending(expiryKey("c1", m.ID)) })
	if !pending {
		t.Error("placeholder has no expiry timer")
	}

	waitFor(t, "frame emission", func() bool { return len(tr.sentFrames()) == 1 })
	frame, ok := tr.sentFrames()[0].(transport.MessageFrame)
	if !ok {
		t.Fatalf("frame type = %T", tr.sentFrames()[0])
	}
	if frame.Type != "message" || frame.Content != "hi there" || frame.Destruct != 10 {
		t.Errorf("frame = %+v", frame)
	}
}

func TestSendFloorsDestructTimer(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	m, err := e.SendMessage(context.Background(), "hi", KindText, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := m.CreatedAt + minDestructSeconds*1000; m.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d (floored)", m.ExpiresAt, want)
	}

	waitFor(t, "frame emission", func() bool { return len(tr.sentFrames()) == 1 })
	frame := tr.sentFrames()[0].(transport.MessageFrame)
	if frame.Destruct != minDestructSeconds {
		t.Errorf("frame destruct = %d, want %d", frame.Destruct, minDestructSeconds)
	}
}

func TestSendUploadReconcilesInPlace(t *testing.T) {
	api := &mockAPI{uploaded: &rest.UploadResult{
		OK:           true,
		URL:          "/files/cat.png",
		OriginalName: "cat.png",
		Size:         9,
	}}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	att := &Attachment{Name: "cat.png", Size: 9, Content: strings.NewReader("png-bytes")}
	m, err := e.SendMessage(context.Background(), "cat.png", KindImage, 60, att)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "upload reconcile", func() bool {
		msgs := e.Messages("c1")
		return len(msgs) == 1 && msgs[0].Body == "/files/cat.png"
	})
	got := e.Messages("c1")[0]
	if got.ID != m.ID {
		t.Errorf("reconcile changed the id: %q -> %q", m.ID, got.ID)
	}
	if got.FileName != "cat.png" || got.FileSize != 9 {
		t.Errorf("file fields = %q/%d", got.FileName, got.FileSize)
	}

	waitFor(t, "frame emission", func() bool { return len(tr.sentFrames()) == 1 })
	frame := tr.sentFrames()[0].(transport.MessageFrame)
	if frame.Content != "/files/cat.png" || frame.FileName != "cat.png" {
		t.Errorf("frame = %+v, want stored locator", frame)
	}
}

func TestSendUploadFailureRollsBack(t *testing.T) {
	api := &mockAPI{uploadErr: errors.New("storage unavailable")}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	att := &Attachment{Name: "cat.png", Size: 9, Content: strings.NewReader("png-bytes")}
	m, err := e.SendMessage(context.Background(), "cat.png", KindImage, 60, att)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "rollback", func() bool { return len(e.Messages("c1")) == 0 })
	if frames := tr.sentFrames(); len(frames) != 0 {
		t.Errorf("emitted %d frames after failed upload, want 0", len(frames))
	}
	chat := e.Chats()[0]
	if chat.LastBody != "old preview" {
		t.Errorf("preview = %q, want reverted to old preview", chat.LastBody)
	}
	var pending bool
	e.call(func() { pending = e.sched.Pending(expiryKey("c1", m.ID)) })
	if pending {
		t.Error("rolled-back placeholder still has an expiry timer")
	}
}

func TestSendEmissionFailureKeepsMessage(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)
	tr.mu.Lock()
	tr.emitErr = errors.New("socket write failed")
	tr.mu.Unlock()

	if _, err := e.SendMessage(context.Background(), "hi", KindText, 60, nil); err != nil {
		t.Fatal(err)
	}

	// Emission failure is not a rollback; give the goroutine a beat.
	time.Sleep(50 * time.Millisecond)
	if got := len(e.Messages("c1")); got != 1 {
		t.Errorf("got %d messages after failed emission, want 1", got)
	}
}

func TestSendResultAppliesAfterChatClosed(t *testing.T) {
	api := &mockAPI{
		uploaded:   &rest.UploadResult{OK: true, URL: "/files/x", OriginalName: "x", Size: 1},
		uploadGate: make(chan struct{}),
	}
	e, _, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	att := &Attachment{Name: "x", Size: 1, Content: strings.NewReader("x")}
	if _, err := e.SendMessage(context.Background(), "x", KindFile, 60, att); err != nil {
		t.Fatal(err)
	}

	// Switch away before the upload completes; the result still applies.
	e.CloseChat()
	close(api.uploadGate)

	waitFor(t, "late reconcile", func() bool {
		msgs := e.Messages("c1")
		return len(msgs) == 1 && msgs[0].Body == "/files/x"
	})
}

func TestUploadAfterChatDeletedStaysSilent(t *testing.T) {
	api := &mockAPI{
		uploaded:   &rest.UploadResult{OK: true, URL: "/files/x", OriginalName: "x", Size: 1},
		uploadGate: make(chan struct{}),
	}
	e, _, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	att := &Attachment{Name: "x", Size: 1, Content: strings.NewReader("x")}
	if _, err := e.SendMessage(context.Background(), "x", KindFile, 60, att); err != nil {
		t.Fatal(err)
	}

	// The chat goes away while the upload is still in flight.
	e.DeleteChat(context.Background(), "c1")
	updated, unsub := b.Subscribe(bus.KindMessageUpdated, 4)
	defer unsub()
	close(api.uploadGate)

	select {
	case evt := <-updated:
		t.Errorf("got update %+v for a message no snapshot contains", evt.Payload)
	case <-time.After(150 * time.Millisecond):
	}
	if got := len(e.Messages("c1")); got != 0 {
		t.Errorf("got %d messages after delete, want 0", got)
	}
}

func TestTypingStartedEmitsSignal(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	e.TypingStarted(context.Background())

	waitFor(t, "typing frame", func() bool { return len(tr.sentFrames()) == 1 })
	frame, ok := tr.sentFrames()[0].(transport.TypingFrame)
	if !ok {
		t.Fatalf("frame type = %T", tr.sentFrames()[0])
	}
	if frame.Type != "typing" || !frame.IsTyping || frame.ReceiverID != "bob" {
		t.Errorf("frame = %+v", frame)
	}

	var pending bool
	e.call(func() { pending = e.sched.Pending(typingOutKey("c1")) })
	if !pending {
		t.Error("no idle debounce armed after typing start")
	}
}

func TestTypingStoppedCancelsDebounce(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)

	e.TypingStarted(context.Background())
	e.TypingStopped(context.Background())

	waitFor(t, "stop frame", func() bool { return len(tr.sentFrames()) == 2 })
	stop := tr.sentFrames()[1].(transport.TypingFrame)
	if stop.IsTyping {
		t.Error("second frame should carry isTyping=false")
	}
	var pending bool
	e.call(func() { pending = e.sched.Pending(typingOutKey("c1")) })
	if pending {
		t.Error("debounce timer survived an explicit stop")
	}
}

func TestTypingNoopWhenDisconnected(t *testing.T) {
	api := &mockAPI{}
	e, tr, b := newTestEngine(t, api)
	openSeededChat(t, e, b)
	tr.mu.Lock()
	tr.connected = false
	tr.mu.Unlock()

	e.TypingStarted(context.Background())

	time.Sleep(50 * time.Millisecond)
	if got := len(tr.sentFrames()); got != 0 {
		t.Errorf("emitted %d frames while disconnected, want 0", got)
	}
}
