package engine

import "sort"

// chatList holds the ordered chat summaries. Mutations rebuild the slice
// so snapshots stay stable (copy-on-write), matching the message store.
type chatList struct {
	chats []Chat
}

func newChatList() *chatList {
	return &chatList{}
}

// snapshot returns the current ordered list. Callers must treat it as
// immutable.
func (l *chatList) snapshot() []Chat {
	return l.chats
}

func (l *chatList) get(chatID string) (Chat, bool) {
	for _, c := range l.chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return Chat{}, false
}

// load replaces the list and sorts it by recency.
func (l *chatList) load(chats []Chat) {
	next := make([]Chat, len(chats))
	copy(next, chats)
	sortByRecency(next)
	l.chats = next
}

// bump moves a chat to the top of the list and replaces its preview.
// Used on both local optimistic send and inbound receipt, so the list
// reacts without waiting on a network round trip. Returns false when the
// chat is unknown locally.
func (l *chatList) bump(chatID, previewBody string, at int64) bool {
	idx := -1
	for i, c := range l.chats {
		if c.ID == chatID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	bumped := l.chats[idx]
	bumped.LastBody = previewBody
	bumped.LastAt = at
	bumped.LastActivityAt = at

	next := make([]Chat, 0, len(l.chats))
	next = append(next, bumped)
	next = append(next, l.chats[:idx]...)
	next = append(next, l.chats[idx+1:]...)
	l.chats = next
	return true
}

// restorePreview puts a chat's preview fields back to a prior snapshot
// and re-sorts. Used when an upload fails after the optimistic bump.
func (l *chatList) restorePreview(chatID string, prior Chat) {
	next := make([]Chat, len(l.chats))
	copy(next, l.chats)
	for i := range next {
		if next[i].ID == chatID {
			next[i].LastBody = prior.LastBody
			next[i].LastAt = prior.LastAt
			next[i].LastActivityAt = prior.LastActivityAt
			break
		}
	}
	sortByRecency(next)
	l.chats = next
}

// remove drops a chat from the list. Local removal happens before any
// server confirmation.
func (l *chatList) remove(chatID string) bool {
	for i, c := range l.chats {
		if c.ID == chatID {
			next := make([]Chat, 0, len(l.chats)-1)
			next = append(next, l.chats[:i]...)
			next = append(next, l.chats[i+1:]...)
			l.chats = next
			return true
		}
	}
	return false
}

func (l *chatList) setUnread(chatID string, count int) {
	l.patch(func(c *Chat) bool {
		if c.ID != chatID {
			return false
		}
		c.Unread = count
		return true
	})
}

// setPresence updates the online flag of every summary whose other
// participant matches userID.
func (l *chatList) setPresence(userID string, online bool, lastSeen int64) bool {
	return l.patch(func(c *Chat) bool {
		if c.Peer.ID != userID {
			return false
		}
		c.Peer.Online = online
		c.Peer.LastSeen = lastSeen
		return true
	})
}

// setUsername patches the display name wherever userID appears as the
// other participant.
func (l *chatList) setUsername(userID, username string) bool {
	return l.patch(func(c *Chat) bool {
		if c.Peer.ID != userID {
			return false
		}
		c.Peer.Username = username
		return true
	})
}

// patch applies fn to each summary on a fresh slice; reports whether
// anything changed.
func (l *chatList) patch(fn func(*Chat) bool) bool {
	next := make([]Chat, len(l.chats))
	copy(next, l.chats)
	changed := false
	for i := range next {
		if fn(&next[i]) {
			changed = true
		}
	}
	if changed {
		l.chats = next
	}
	return changed
}

// sortByRecency orders descending by the most recent of last message,
// last activity and creation time, falling back to id for determinism.
func sortByRecency(chats []Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := recency(chats[i]), recency(chats[j])
		if a != b {
			return a > b
		}
		return chats[i].ID < chats[j].ID
	})
}

func recency(c Chat) int64 {
	ts := c.CreatedAt
	if c.LastActivityAt > ts {
		ts = c.LastActivityAt
	}
	if c.LastAt > ts {
		ts = c.LastAt
	}
	return ts
}
