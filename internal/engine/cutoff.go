package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/emberchat/ember/internal/store"
)

// cutoffStore tracks the per-chat "deleted before" timestamp for the
// active user. A message is hidden when created at or before the cutoff.
// Set only on local delete; persisted in full on every mutation; never
// sent to or trusted from the server.
type cutoffStore struct {
	userID  string
	db      *store.DB
	cutoffs map[string]int64
	logger  *zap.Logger
}

// newCutoffStore loads the persisted map once. Absent or corrupt data
// degrades to an empty map.
func newCutoffStore(userID string, db *store.DB, logger *zap.Logger) (*cutoffStore, error) {
	cutoffs, err := db.LoadCutoffs(userID)
	if err != nil {
		return nil, err
	}
	return &cutoffStore{
		userID:  userID,
		db:      db,
		cutoffs: cutoffs,
		logger:  logger,
	}, nil
}

// get returns the cutoff for a chat, zero when none is set.
func (c *cutoffStore) get(chatID string) (int64, bool) {
	ts, ok := c.cutoffs[chatID]
	return ts, ok
}

// setNow records the current time as the chat's cutoff and persists the
// full map. Cutoffs are monotonic: a second delete never moves the cutoff
// backwards, so previously hidden messages cannot resurface.
func (c *cutoffStore) setNow(chatID string) int64 {
	now := time.Now().UnixMilli()
	if prev, ok := c.cutoffs[chatID]; ok && prev > now {
		now = prev
	}
	c.cutoffs[chatID] = now
	if err := c.db.SaveCutoffs(c.userID, c.cutoffs); err != nil {
		// The in-memory cutoff still applies for this session.
		c.logger.Warn("failed to persist cutoffs", zap.Error(err))
	}
	return now
}

// hides reports whether a creation timestamp falls at or before the
// chat's cutoff.
func (c *cutoffStore) hides(chatID string, createdAt int64) bool {
	ts, ok := c.cutoffs[chatID]
	return ok && createdAt <= ts
}

// filter keeps only messages created strictly after the chat's cutoff.
func (c *cutoffStore) filter(chatID string, msgs []Message) []Message {
	ts, ok := c.cutoffs[chatID]
	if !ok {
		return msgs
	}
	kept := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.CreatedAt > ts {
			kept = append(kept, m)
		}
	}
	return kept
}
