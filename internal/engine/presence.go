package engine

import "time"

// presenceTracker maps remote user ids to online flags. Entries are
// ephemeral: rebuilt from socket events, wiped to offline on disconnect.
type presenceTracker struct {
	online   map[string]bool
	lastSeen map[string]int64
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{
		online:   make(map[string]bool),
		lastSeen: make(map[string]int64),
	}
}

// apply records a presence transition, stamping last-seen on the way to
// offline. Returns false when the flag did not change.
func (p *presenceTracker) apply(userID string, online bool) bool {
	if p.online[userID] == online {
		// Record the entry even when the flag matches the default, so a
		// later resetAll reports it.
		p.online[userID] = online
		return false
	}
	p.online[userID] = online
	if !online {
		p.lastSeen[userID] = time.Now().UnixMilli()
	}
	return true
}

// isOnline reports a user's flag, defaulting to offline when unknown.
func (p *presenceTracker) isOnline(userID string) bool {
	return p.online[userID]
}

func (p *presenceTracker) lastSeenAt(userID string) int64 {
	return p.lastSeen[userID]
}

// resetAll flips every known participant to offline and returns the ids
// that transitioned. Called when the transport drops: stale presence
// cannot be trusted while disconnected.
func (p *presenceTracker) resetAll() []string {
	now := time.Now().UnixMilli()
	var flipped []string
	for id, on := range p.online {
		if on {
			p.online[id] = false
			p.lastSeen[id] = now
			flipped = append(flipped, id)
		}
	}
	return flipped
}
