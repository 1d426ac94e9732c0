// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termline/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func recordAll(t *testing.T, sess *Session, msgs ...model.Message) {
	t.Helper()
	for _, msg := range msgs {
		require.NoError(t, sess.Record(context.Background(), msg))
	}
}

func TestSession_RecordAndLoad(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	conv := model.NewConversation("system")
	conv.AppendUser("hello")
	conv.AppendAssistant("Hi there")

	sess := j.NewSession("gpt-5")
	assert.Empty(t, sess.ID())
	recordAll(t, sess, conv.Messages()...)
	require.NotEmpty(t, sess.ID())

	loaded, err := j.Load(ctx, sess.ID())
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", loaded.Model)
	require.Len(t, loaded.Messages, 3)
	for i, msg := range conv.Messages() {
		assert.Equal(t, i, loaded.Messages[i].Seq)
		assert.Equal(t, msg.Role, loaded.Messages[i].Role)
		assert.Equal(t, msg.Content, loaded.Messages[i].Content)
	}
	assert.Equal(t, "hello", loaded.Preview())
}

func TestLoad_ByPrefix(t *testing.T) {
	j := openTestJournal(t)
	sess := j.NewSession("m")
	recordAll(t, sess, model.NewMessage(model.RoleUser, "q"))

	loaded, err := j.Load(context.Background(), sess.ID()[:8])
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), loaded.ID)
}

func TestLoad_NotFound(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = j.Load(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// LIKE wildcards are matched literally.
	sess := j.NewSession("m")
	recordAll(t, sess, model.NewMessage(model.RoleUser, "q"))
	_, err = j.Load(context.Background(), "%")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestList_OrderAndFilter(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// Only a system message: never listed.
	empty := j.NewSession("m")
	recordAll(t, empty, model.Message{Role: model.RoleSystem, Content: "sys", Timestamp: base})

	older := j.NewSession("m")
	recordAll(t, older,
		model.Message{Role: model.RoleSystem, Content: "sys", Timestamp: base},
		model.Message{Role: model.RoleUser, Content: "first question", Timestamp: base.Add(time.Minute)},
	)

	newer := j.NewSession("m2")
	recordAll(t, newer,
		model.Message{Role: model.RoleSystem, Content: "sys", Timestamp: base.Add(2 * time.Minute)},
		model.Message{Role: model.RoleUser, Content: "second question", Timestamp: base.Add(3 * time.Minute)},
		model.Message{Role: model.RoleAssistant, Content: "answer", Timestamp: base.Add(4 * time.Minute)},
	)

	metas, err := j.List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, newer.ID(), metas[0].ID)
	assert.Equal(t, "second question", metas[0].Preview)
	assert.Equal(t, 3, metas[0].MessageCount)
	assert.Equal(t, "m2", metas[0].Model)

	assert.Equal(t, older.ID(), metas[1].ID)
	assert.Equal(t, "first question", metas[1].Preview)

	limited, err := j.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	j, err := Open(ctx, path)
	require.NoError(t, err)
	sess := j.NewSession("m")
	recordAll(t, sess, model.NewMessage(model.RoleUser, "persist me"))
	require.NoError(t, j.Close())

	j2, err := Open(ctx, path)
	require.NoError(t, err)
	defer j2.Close()

	loaded, err := j2.Load(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "persist me", loaded.Preview())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
