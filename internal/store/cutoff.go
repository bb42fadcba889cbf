package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// LoadCutoffs reads the persisted cutoff map for a user. The map is stored
// as a single serialized row; an absent row or unparseable data degrades to
// an empty map, never an error surfaced to the caller's user.
func (db *DB) LoadCutoffs(userID string) (map[string]int64, error) {
	var data string
	err := db.QueryRow(`SELECT data FROM cutoffs WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, err
	}

	cutoffs := map[string]int64{}
	if err := json.Unmarshal([]byte(data), &cutoffs); err != nil {
		// Corrupt persisted state is non-fatal: start over.
		return map[string]int64{}, nil
	}
	return cutoffs, nil
}

// SaveCutoffs rewrites the full cutoff map for a user. Last writer wins;
// only one engine instance runs per device per user so no merge is needed.
func (db *DB) SaveCutoffs(userID string, cutoffs map[string]int64) error {
	data, err := json.Marshal(cutoffs)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO cutoffs (user_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UnixMilli())
	return err
}
