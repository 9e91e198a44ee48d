package memory

import (
	"context"
	"fmt"
	"time"
)

// Statistics summarises what's stored for one user.
type Statistics struct {
	Total              int          `json:"total_memories"`
	ByKind             map[Kind]int `json:"by_type"`
	KnowledgeDiversity int          `json:"knowledge_diversity"`
}

// Statistics aggregates per-kind counts at read time. Total always equals
// the sum over ByKind, and expired working memories are excluded, matching
// what every other read path would return.
func (s *Store) Statistics(ctx context.Context, userID string) (Statistics, error) {
	now := time.Now().UTC().Format(TimestampLayout)
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM memories
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		GROUP BY kind`,
		userID, now,
	)
	if err != nil {
		return Statistics{}, fmt.Errorf("store: statistics: %w", err)
	}
	defer rows.Close()

	stats := Statistics{ByKind: make(map[Kind]int, 6)}
	for _, k := range AllKinds() {
		stats.ByKind[k] = 0
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return Statistics{}, err
		}
		stats.ByKind[Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}

	var messages int
	err = s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE user_id = ?`, userID,
	).Scan(&messages)
	if err != nil {
		return Statistics{}, fmt.Errorf("store: count messages: %w", err)
	}
	stats.ByKind[KindSession] = messages

	for _, n := range stats.ByKind {
		stats.Total += n
		if n > 0 {
			stats.KnowledgeDiversity++
		}
	}
	return stats, nil
}
