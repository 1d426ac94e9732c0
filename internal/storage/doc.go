// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the transcript journal for termline.
//
// Every completed message of a chat session is appended to a SQLite
// database so that past conversations can be listed and replayed with
// `termline history`.
//
// # Key Types
//
//   - Journal: SQLite-backed store of conversations and messages
//   - Session: Appends the messages of one running conversation
//   - ConversationMeta: Lightweight metadata for listing
//   - StoredConversation: A conversation with all its messages
//
// # Usage
//
//	j, err := storage.Open(ctx, path)
//	sess := j.NewSession("gpt-5")
//	err = sess.Record(ctx, msg)
//
//	metas, err := j.List(ctx, 20)
//	conv, err := j.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// The database lives at ~/.termline/history.db unless configured otherwise.
package storage
