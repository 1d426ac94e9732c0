// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming chat-completion client.
//
// The client speaks the OpenAI chat-completions wire format: a JSON request
// with stream enabled, answered by a server-sent event stream of delta
// frames terminated by a "[DONE]" sentinel.
//
// # Key Types
//
//   - Client: HTTP client holding the credential, model and request policy
//   - ChatRequest: Immutable request body built from a history snapshot
//   - StreamEvent: Tagged Delta / End / Error value delivered on a channel
//   - Error: Classified failure (transport, auth, protocol, cancelled)
//   - SSEReader: Frame reader with a per-frame size limit
//
// # Usage
//
//	client := cloud.NewClient(apiKey).WithBaseURL(baseURL)
//	req := cloud.NewChatRequest(client.Model(), conv.Messages())
//	for ev := range client.Send(ctx, req) {
//	    switch ev.Type {
//	    case cloud.EventDelta:
//	        fmt.Print(ev.Text)
//	    case cloud.EventError:
//	        return ev.Err
//	    }
//	}
//
// # Security
//
// API keys are never logged; a SHA-256 fingerprint is used instead. All
// requests use TLS 1.2 or newer.
package cloud
