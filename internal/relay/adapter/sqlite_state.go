package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/aelexs/chat-relay/internal/relay/app"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS admin_bans (
	stable_id    TEXT PRIMARY KEY,
	until        INTEGER NOT NULL,
	banned_by    TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	by_moderator INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const chatLockKey = "chat_locked"

// StateStore persists the moderation state that must survive a restart: the
// staff-issued ban set and the global chat lock.
type StateStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewStateStore creates the state store and ensures its schema exists.
func NewStateStore(db *sql.DB) (*StateStore, error) {
	if _, err := db.Exec(stateSchema); err != nil {
		return nil, fmt.Errorf("create state schema: %w", err)
	}
	return &StateStore{db: db}, nil
}

// LoadBans returns every persisted ban, expired ones included; the caller
// filters on load.
func (s *StateStore) LoadBans(ctx context.Context) ([]app.AdminBan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stable_id, until, banned_by, reason, by_moderator FROM admin_bans`)
	if err != nil {
		return nil, fmt.Errorf("query admin bans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []app.AdminBan
	for rows.Next() {
		var ban app.AdminBan
		var byModerator int
		if err := rows.Scan(&ban.StableID, &ban.Until, &ban.By, &ban.Reason, &byModerator); err != nil {
			return nil, fmt.Errorf("scan admin ban: %w", err)
		}
		ban.ByModerator = byModerator != 0
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin bans: %w", err)
	}
	return bans, nil
}

// SaveBan upserts one ban keyed by stable id.
func (s *StateStore) SaveBan(ctx context.Context, ban app.AdminBan) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	byModerator := 0
	if ban.ByModerator {
		byModerator = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_bans (stable_id, until, banned_by, reason, by_moderator)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stable_id) DO UPDATE SET
			until = excluded.until,
			banned_by = excluded.banned_by,
			reason = excluded.reason,
			by_moderator = excluded.by_moderator`,
		ban.StableID, ban.Until, ban.By, ban.Reason, byModerator,
	)
	if err != nil {
		return fmt.Errorf("upsert admin ban: %w", err)
	}
	return nil
}

// DeleteBan removes a ban. Deleting an absent ban is not an error.
func (s *StateStore) DeleteBan(ctx context.Context, stableID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM admin_bans WHERE stable_id = ?`, stableID); err != nil {
		return fmt.Errorf("delete admin ban: %w", err)
	}
	return nil
}

// LoadChatLock reads the persisted chat lock; absent means unlocked.
func (s *StateStore) LoadChatLock(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, chatLockKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load chat lock: %w", err)
	}
	return value == "1", nil
}

// SaveChatLock persists the chat lock flag.
func (s *StateStore) SaveChatLock(ctx context.Context, locked bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	value := "0"
	if locked {
		value = "1"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		chatLockKey, value,
	)
	if err != nil {
		return fmt.Errorf("save chat lock: %w", err)
	}
	return nil
}

// Ensure StateStore implements the app port at compile time.
var _ app.StateStore = (*StateStore)(nil)
