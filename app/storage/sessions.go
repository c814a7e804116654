package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/focusbot/app/timer"
	"github.com/m3rciful/focusbot/core/logger"
)

const component = "service.sessions"

// Store persists finished study sessions and serves statistics queries.
type Store struct {
	db *sqlx.DB
}

// New wraps the shared database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SaveSession durably records one finished session and returns its id.
// It implements timer.SessionStore.
func (s *Store) SaveSession(ctx context.Context, sess timer.Session) (string, error) {
	id := uuid.New()
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, chat_id, username, label, duration_seconds, completed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, sess.Owner, sess.Chat, sess.Username, sess.Label,
		int64(sess.Elapsed/time.Second), sess.Completed, sess.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	logger.Debug(ctx, component, "session.saved",
		slog.String("session_id", id.String()),
		slog.Int64("user_id", sess.Owner),
		slog.Int64("chat_id", sess.Chat),
		slog.Int64("elapsed_s", int64(sess.Elapsed/time.Second)),
		slog.Duration("duration", logger.Took(start)),
	)
	return id.String(), nil
}

// UserStats aggregates one user's sessions within a chat.
type UserStats struct {
	Sessions     int64 `db:"sessions"`
	TotalSeconds int64 `db:"total_seconds"`
	TodaySeconds int64 `db:"today_seconds"`
}

// StatsForUser returns lifetime and same-day totals for (user, chat).
func (s *Store) StatsForUser(ctx context.Context, userID, chatID int64) (UserStats, error) {
	var out UserStats
	err := s.db.GetContext(ctx, &out, `
		SELECT
			COUNT(*)                                   AS sessions,
			COALESCE(SUM(duration_seconds), 0)         AS total_seconds,
			COALESCE(SUM(duration_seconds) FILTER (
				WHERE created_at >= date_trunc('day', now())
			), 0)                                      AS today_seconds
		FROM sessions
		WHERE user_id = $1 AND chat_id = $2`,
		userID, chatID,
	)
	if err != nil {
		return UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return out, nil
}

// LeaderboardRow is one line of the per-chat leaderboard.
type LeaderboardRow struct {
	UserID       int64  `db:"user_id"`
	Username     string `db:"username"`
	Sessions     int64  `db:"sessions"`
	TotalSeconds int64  `db:"total_seconds"`
}

// Leaderboard ranks users of a chat by studied time since the given moment.
func (s *Store) Leaderboard(ctx context.Context, chatID int64, since time.Time, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []LeaderboardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT
			user_id,
			MAX(username)                      AS username,
			COUNT(*)                           AS sessions,
			COALESCE(SUM(duration_seconds), 0) AS total_seconds
		FROM sessions
		WHERE chat_id = $1 AND created_at >= $2
		GROUP BY user_id
		ORDER BY total_seconds DESC
		LIMIT $3`,
		chatID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return rows, nil
}
