package engine

// unreadCounter maps chat ids to unread message counts. Counts only grow
// from inbound events; server-reported counts are merged with max so a
// refresh never erases activity the server has not seen yet.
type unreadCounter struct {
	counts map[string]int
}

func newUnreadCounter() *unreadCounter {
	return &unreadCounter{counts: make(map[string]int)}
}

func (u *unreadCounter) get(chatID string) int {
	return u.counts[chatID]
}

// increment is called by the dispatcher for messages landing in a chat
// that is not currently open.
func (u *unreadCounter) increment(chatID string) int {
	u.counts[chatID]++
	return u.counts[chatID]
}

// clear resets a chat to zero: the chat was opened or a mark-read
// acknowledgement arrived.
func (u *unreadCounter) clear(chatID string) {
	delete(u.counts, chatID)
}

// mergeFromServer applies local = max(local, server) per chat. Chats
// absent from the server response are left untouched.
func (u *unreadCounter) mergeFromServer(counts map[string]int) {
	for chatID, server := range counts {
		if server > u.counts[chatID] {
			u.counts[chatID] = server
		}
	}
}
