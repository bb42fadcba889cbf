package engine

import (
	"time"

	"github.com/emberchat/ember/internal/clock"
)

// typingIdleWindow is how long an inbound typing flag survives without a
// refresh before it is force-cleared.
const typingIdleWindow = 3 * time.Second

// typingTracker maps chat ids to a transient "other party is typing"
// flag. Never persisted; auto-expires through the shared scheduler.
type typingTracker struct {
	byChat   map[string]bool
	sched    *clock.Scheduler
	window   time.Duration
	onChange func(chatID string, typing bool)
}

func newTypingTracker(sched *clock.Scheduler, onChange func(string, bool)) *typingTracker {
	return &typingTracker{
		byChat:   make(map[string]bool),
		sched:    sched,
		window:   typingIdleWindow,
		onChange: onChange,
	}
}

func typingTimerKey(chatID string) string {
	return "typing-in:" + chatID
}

// set updates the flag. Each refresh of a true flag replaces the idle
// timer, so the flag clears window after the last signal.
func (t *typingTracker) set(chatID string, isTyping bool) {
	if isTyping {
		changed := !t.byChat[chatID]
		t.byChat[chatID] = true
		t.sched.Schedule(typingTimerKey(chatID), time.Now().Add(t.window), func() {
			t.clear(chatID)
		})
		if changed {
			t.onChange(chatID, true)
		}
		return
	}
	t.sched.Cancel(typingTimerKey(chatID))
	t.clear(chatID)
}

func (t *typingTracker) clear(chatID string) {
	if !t.byChat[chatID] {
		return
	}
	delete(t.byChat, chatID)
	t.onChange(chatID, false)
}

// forget drops a chat's flag and idle timer without notifying; used when
// the chat itself is removed.
func (t *typingTracker) forget(chatID string) {
	t.sched.Cancel(typingTimerKey(chatID))
	delete(t.byChat, chatID)
}

// typing reports whether the other party is currently typing in a chat.
func (t *typingTracker) typing(chatID string) bool {
	return t.byChat[chatID]
}
