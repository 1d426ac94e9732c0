// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/termline/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAmbiguousID          = errors.New("conversation id prefix is ambiguous")
)

// =============================================================================
// TYPES
// =============================================================================

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string
	Model        string
	StartedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // First user message
}

// StoredMessage is a journaled message.
type StoredMessage struct {
	Seq       int
	Role      model.Role
	Content   string
	CreatedAt time.Time
}

// StoredConversation is a conversation with all of its messages.
type StoredConversation struct {
	ID        string
	Model     string
	StartedAt time.Time
	Messages  []StoredMessage
}

// =============================================================================
// JOURNAL
// =============================================================================

// Journal is the SQLite transcript store. It is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// startConversation inserts a conversation row and returns its ID.
func (j *Journal) startConversation(ctx context.Context, modelName string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO conversations (id, model, started_at) VALUES (?, ?, ?)",
		id, modelName, at.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert conversation: %w", err)
	}
	return id, nil
}

// appendMessage inserts one message.
func (j *Journal) appendMessage(ctx context.Context, conversationID string, seq int, msg model.Message) error {
	created := msg.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		conversationID, seq, msg.Role.String(), msg.Content, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// List returns up to limit conversations that contain at least one user
// message, most recently active first.
func (j *Journal) List(ctx context.Context, limit int) ([]ConversationMeta, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT c.id, c.model, c.started_at,
       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
       COALESCE((SELECT MAX(m.created_at) FROM messages m WHERE m.conversation_id = c.id), c.started_at) AS updated_at,
       COALESCE((SELECT m.content FROM messages m
                 WHERE m.conversation_id = c.id AND m.role = 'user'
                 ORDER BY m.seq LIMIT 1), '')
FROM conversations c
WHERE EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.role = 'user')
ORDER BY updated_at DESC, c.started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var (
			meta             ConversationMeta
			started, updated int64
		)
		if err := rows.Scan(&meta.ID, &meta.Model, &started, &meta.MessageCount, &updated, &meta.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		meta.StartedAt = time.UnixMilli(started)
		meta.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Load returns the conversation whose ID is id or starts with id.
func (j *Journal) Load(ctx context.Context, id string) (*StoredConversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrConversationNotFound
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, model, started_at FROM conversations WHERE id = ? OR id LIKE ? ESCAPE '\\' ORDER BY id = ? DESC LIMIT 2",
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	var matches []StoredConversation
	for rows.Next() {
		var (
			conv    StoredConversation
			started int64
		)
		if err := rows.Scan(&conv.ID, &conv.Model, &started); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.StartedAt = time.UnixMilli(started)
		matches = append(matches, conv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var conv StoredConversation
	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	case len(matches) == 1:
		conv = matches[0]
	default:
		// An exact match wins over prefix matches.
		found := false
		for _, m := range matches {
			if m.ID == id {
				conv, found = m, true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
		}
	}

	msgRows, err := j.db.QueryContext(ctx,
		"SELECT seq, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq",
		conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var (
			msg     StoredMessage
			role    string
			created int64
		)
		if err := msgRows.Scan(&msg.Seq, &role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = time.UnixMilli(created)
		conv.Messages = append(conv.Messages, msg)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}
	return &conv, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// SESSION
// =============================================================================

// Session journals the messages of one running conversation. The
// conversation row is created with the first recorded message.
type Session struct {
	journal *Journal
	model   string
	id      string
	nextSeq int
}

// NewSession returns a session for a conversation using modelName.
func (j *Journal) NewSession(modelName string) *Session {
	return &Session{journal: j, model: modelName}
}

// ID returns the conversation ID, or "" before the first Record.
func (s *Session) ID() string {
	return s.id
}

// Record appends msg as the next message of the conversation.
func (s *Session) Record(ctx context.Context, msg model.Message) error {
	if s.id == "" {
		at := msg.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		id, err := s.journal.startConversation(ctx, s.model, at)
		if err != nil {
			return err
		}
		s.id = id
	}

	// The sequence advances even on failure so that seq keeps matching the
	// message's position in the conversation.
	seq := s.nextSeq
	s.nextSeq++
	return s.journal.appendMessage(ctx, s.id, seq, msg)
}

// Preview returns the content of the first user message, or "".
func (c *StoredConversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == model.RoleUser {
			return msg.Content
		}
	}
	return ""
}
