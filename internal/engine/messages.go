package engine

// messageStore holds the visible message sequence per chat. Every
// mutation builds a fresh slice, so a snapshot handed out earlier is
// never affected by later updates (copy-on-write).
type messageStore struct {
	byChat map[string][]Message
}

func newMessageStore() *messageStore {
	return &messageStore{byChat: make(map[string][]Message)}
}

// snapshot returns the current visible sequence for a chat. Callers must
// treat the slice as immutable.
func (s *messageStore) snapshot(chatID string) []Message {
	return s.byChat[chatID]
}

// replace swaps in a freshly loaded sequence for a chat.
func (s *messageStore) replace(chatID string, msgs []Message) {
	s.byChat[chatID] = msgs
}

// contains reports whether a message id is already present in a chat.
func (s *messageStore) contains(chatID, msgID string) bool {
	for _, m := range s.byChat[chatID] {
		if m.ID == msgID {
			return true
		}
	}
	return false
}

// append adds a message to the end of a chat's sequence.
func (s *messageStore) append(chatID string, m Message) {
	cur := s.byChat[chatID]
	next := make([]Message, len(cur), len(cur)+1)
	copy(next, cur)
	s.byChat[chatID] = append(next, m)
}

// appendIfAbsent adds a message unless its id is already present.
// Returns false on a duplicate. Guards against duplicate socket delivery.
func (s *messageStore) appendIfAbsent(chatID string, m Message) bool {
	if s.contains(chatID, m.ID) {
		return false
	}
	s.append(chatID, m)
	return true
}

// remove deletes one message by id and returns it. Both timer-driven
// expiry and user-driven deletion funnel through here so a message is
// never double-removed or left behind in an inconsistent sequence.
func (s *messageStore) remove(chatID, msgID string) (Message, bool) {
	cur := s.byChat[chatID]
	for i, m := range cur {
		if m.ID == msgID {
			next := make([]Message, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			s.byChat[chatID] = next
			return m, true
		}
	}
	return Message{}, false
}

// reconcile patches a placeholder in place: same slot, same id. Used when
// an upload completes and the placeholder's content becomes the stored
// resource locator.
func (s *messageStore) reconcile(chatID, msgID string, patch func(*Message)) bool {
	cur := s.byChat[chatID]
	for i := range cur {
		if cur[i].ID == msgID {
			next := make([]Message, len(cur))
			copy(next, cur)
			patch(&next[i])
			s.byChat[chatID] = next
			return true
		}
	}
	return false
}

// drop discards a chat's whole sequence, returning what was visible so
// the caller can cancel the matching expiry timers.
func (s *messageStore) drop(chatID string) []Message {
	dropped := s.byChat[chatID]
	delete(s.byChat, chatID)
	return dropped
}
