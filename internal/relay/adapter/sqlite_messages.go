package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/relay/app"
)

const messagesSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	sender_sid      TEXT NOT NULL DEFAULT '',
	nickname        TEXT NOT NULL DEFAULT '',
	timestamp       INTEGER NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	html            TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	filename        TEXT NOT NULL DEFAULT '',
	mime            TEXT NOT NULL DEFAULT '',
	size            INTEGER NOT NULL DEFAULT 0,
	caption         TEXT NOT NULL DEFAULT '',
	is_admin        INTEGER NOT NULL DEFAULT 0,
	admin_meta      TEXT NOT NULL DEFAULT '',
	stored_filename TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
`

// MessageStore persists chat messages in SQLite and owns the upload
// directory cleanup: an attachment file is removed once no surviving
// message references it.
type MessageStore struct {
	db        *sql.DB
	writeMu   sync.Mutex
	uploadDir string
	logger    *slog.Logger
}

// NewMessageStore creates the message store and ensures its schema exists.
func NewMessageStore(db *sql.DB, uploadDir string, logger *slog.Logger) (*MessageStore, error) {
	if _, err := db.Exec(messagesSchema); err != nil {
		return nil, fmt.Errorf("create messages schema: %w", err)
	}
	return &MessageStore{db: db, uploadDir: uploadDir, logger: logger}, nil
}

// Save inserts one message. The attachment name is denormalized into its own
// column so prune and delete can clean files without parsing URLs.
func (s *MessageStore) Save(ctx context.Context, msg domain.ChatMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, kind, sender_id, sender_sid, nickname, timestamp,
			text, html, url, filename, mime, size, caption, is_admin, admin_meta, stored_filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Kind), msg.SenderID, msg.SenderSID, msg.Nickname, msg.Timestamp,
		msg.Text, msg.HTML, msg.URL, msg.Filename, msg.Mime, msg.Size, msg.Caption,
		boolToInt(msg.IsAdmin), string(msg.AdminMeta), msg.AttachmentName(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Recent returns the newest `limit` messages in chronological order
// (oldest first), ready for a history replay.
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, sender_id, sender_sid, nickname, timestamp,
			text, html, url, filename, mime, size, caption, is_admin, admin_meta
		FROM messages
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// GetByID fetches one message, mapping a missing row to domain.ErrNotFound.
func (s *MessageStore) GetByID(ctx context.Context, id domain.MessageID) (*domain.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, sender_id, sender_sid, nickname, timestamp,
			text, html, url, filename, mime, size, caption, is_admin, admin_meta
		FROM messages WHERE id = ?`, id.String())

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id.String(), domain.ErrNotFound)
		}
		return nil, err
	}
	return &msg, nil
}

// DeleteByID removes one message and, when its attachment is no longer
// referenced by any surviving row, the attachment file as well.
func (s *MessageStore) DeleteByID(ctx context.Context, id domain.MessageID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT stored_filename FROM messages WHERE id = ?`, id.String()).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id.String(), domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup message for delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.removeIfUnreferenced(ctx, []string{stored})
	return nil
}

// PruneToLimit deletes the oldest rows beyond the history cap and cleans up
// any attachment files those rows were the last reference to.
func (s *MessageStore) PruneToLimit(ctx context.Context, limit int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stored_filename FROM messages
		ORDER BY timestamp DESC, rowid DESC
		LIMIT -1 OFFSET ?`, limit)
	if err != nil {
		return fmt.Errorf("query prune candidates: %w", err)
	}

	var ids []any
	var stored []string
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan prune candidate: %w", err)
		}
		ids = append(ids, id)
		stored = append(stored, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate prune candidates: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM messages WHERE id IN (?` + repeatPlaceholder(len(ids)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, ids...); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}

	s.removeIfUnreferenced(ctx, stored)
	return nil
}

// WipeAll deletes every message and its attachments, returning the number of
// rows removed.
func (s *MessageStore) WipeAll(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT stored_filename FROM messages WHERE stored_filename != ''`)
	if err != nil {
		return 0, fmt.Errorf("query attachments for wipe: %w", err)
	}
	var stored []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan attachment name: %w", err)
		}
		stored = append(stored, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate attachment names: %w", err)
	}
	_ = rows.Close()

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("wipe messages: %w", err)
	}
	count, _ := res.RowsAffected()

	for _, name := range stored {
		s.removeFile(name)
	}
	return count, nil
}

// removeIfUnreferenced deletes attachment files that no surviving message
// row references anymore. Best-effort: filesystem failures are logged, not
// surfaced, since the rows are already gone.
func (s *MessageStore) removeIfUnreferenced(ctx context.Context, names []string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE stored_filename = ?`, name).Scan(&n)
		if err != nil {
			s.logger.Warn("attachment reference check failed", "file", name, "error", err)
			continue
		}
		if n == 0 {
			s.removeFile(name)
		}
	}
}

func (s *MessageStore) removeFile(name string) {
	if s.uploadDir == "" || name == "" {
		return
	}
	// Base strips any path components a hostile URL may have smuggled in.
	target := filepath.Join(s.uploadDir, filepath.Base(name))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("attachment cleanup failed", "file", name, "error", err)
	}
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	var kind, adminMeta string
	var isAdmin int

	err := row.Scan(
		&msg.ID, &kind, &msg.SenderID, &msg.SenderSID, &msg.Nickname, &msg.Timestamp,
		&msg.Text, &msg.HTML, &msg.URL, &msg.Filename, &msg.Mime, &msg.Size,
		&msg.Caption, &isAdmin, &adminMeta,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChatMessage{}, err
		}
		return domain.ChatMessage{}, fmt.Errorf("scan message row: %w", err)
	}

	msg.Kind = domain.MessageKind(kind)
	msg.IsAdmin = isAdmin != 0
	if adminMeta != "" {
		msg.AdminMeta = json.RawMessage(adminMeta)
	}
	return msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func repeatPlaceholder(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, ',', '?')
	}
	return string(out)
}

// Ensure MessageStore implements the app port at compile time.
var _ app.MessageStore = (*MessageStore)(nil)
