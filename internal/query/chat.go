// SPDX-License-Identifier: MIT

package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/types"
)

// systemPrompt frames the assistant. Snippets are injected separately so
// the model can tell memory from conversation.
const systemPrompt = "You are the assistant of a personal screen-history tool. " +
	"The user records their own screen; excerpts of that history relevant to the " +
	"question are provided below. Answer from the excerpts when they apply, say so " +
	"when they do not, and never invent history."

// titleLimit bounds auto-generated thread titles.
const titleLimit = 48

// appendTimeout bounds the assistant-message write after a stream ends;
// the request context may already be gone by then.
const appendTimeout = 5 * time.Second

// Chat answers one user message in a thread, blocking until the full
// reply is available. The user message is persisted first; the assistant
// message only after the model answered. An empty threadID means the
// active thread, creating one when none exists.
func (e *Engine) Chat(ctx context.Context, threadID, message string) (string, string, error) {
	thread, err := e.resolveThread(ctx, threadID, message)
	if err != nil {
		return "", "", err
	}

	messages, err := e.prepareTurn(ctx, thread.ID, message)
	if err != nil {
		return "", thread.ID, err
	}

	reply, err := e.runtime.Chat(ctx, e.cfg.ChatModel(), messages)
	if err != nil {
		return "", thread.ID, err
	}

	if _, err := e.store.AppendMessage(ctx, thread.ID, types.RoleAssistant, reply); err != nil {
		return "", thread.ID, fmt.Errorf("persist assistant reply: %w", err)
	}
	return reply, thread.ID, nil
}

// ChatStream is Chat with a streamed reply. Chunks mirror the runtime's
// contract: deltas, then one terminal chunk carrying the full text.
// Cancelling ctx aborts the model call; the assistant message is only
// appended after a complete reply, so an aborted stream leaves the
// thread without one.
func (e *Engine) ChatStream(ctx context.Context, threadID, message string) (<-chan runtime.Chunk, string, error) {
	thread, err := e.resolveThread(ctx, threadID, message)
	if err != nil {
		return nil, "", err
	}

	messages, err := e.prepareTurn(ctx, thread.ID, message)
	if err != nil {
		return nil, thread.ID, err
	}

	upstream, err := e.runtime.ChatStream(ctx, e.cfg.ChatModel(), messages)
	if err != nil {
		return nil, thread.ID, err
	}

	out := make(chan runtime.Chunk)
	go func() {
		defer close(out)
		for chunk := range upstream {
			if chunk.Done && chunk.Err == nil {
				e.appendAssistant(thread.ID, chunk.Content)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Consumer is gone; drain upstream so the runtime request
				// unwinds.
				for range upstream {
				}
				return
			}
		}
	}()
	return out, thread.ID, nil
}

// resolveThread picks the thread a message lands in: the named one, the
// active one, or a fresh one titled after the message.
func (e *Engine) resolveThread(ctx context.Context, threadID, message string) (*types.ChatThread, error) {
	if threadID != "" {
		return e.store.GetThread(ctx, threadID)
	}
	if thread, err := e.store.ActiveThread(ctx); err == nil {
		return thread, nil
	}
	return e.store.CreateThread(ctx, truncate(strings.TrimSpace(message), titleLimit))
}

// prepareTurn persists the user message and assembles the model context:
// system prompt with retrieval snippets, then the recent history
// including the new message.
func (e *Engine) prepareTurn(ctx context.Context, threadID, message string) ([]runtime.Message, error) {
	if _, err := e.store.AppendMessage(ctx, threadID, types.RoleUser, message); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	system := systemPrompt
	if snippets := e.contextSnippets(ctx, message); snippets != "" {
		system += "\n\nScreen history excerpts:\n" + snippets
	}

	history, err := e.store.RecentMessages(ctx, threadID, e.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]runtime.Message, 0, len(history)+1)
	messages = append(messages, runtime.Message{Role: "system", Content: system})
	for _, m := range history {
		messages = append(messages, runtime.Message{Role: m.Role.String(), Content: m.Content})
	}
	return messages, nil
}

// contextSnippets renders the top retrieval hits for the user message.
// Retrieval failures degrade to a memory-less conversation.
func (e *Engine) contextSnippets(ctx context.Context, message string) string {
	hits, err := e.Retrieve(ctx, message, e.cfg.ContextSnippets)
	if err != nil {
		e.logger.Warn().Err(err).Msg("chat retrieval failed, answering without history")
		return ""
	}

	var sb strings.Builder
	for _, h := range hits {
		when := h.Recording.StartTime.Local().Format("2006-01-02 15:04")
		fmt.Fprintf(&sb, "- [%s] %s\n", when, h.Snippet)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (e *Engine) appendAssistant(threadID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if _, err := e.store.AppendMessage(ctx, threadID, types.RoleAssistant, content); err != nil {
		e.logger.Error().Err(err).Str("thread_id", threadID).Msg("assistant message lost")
	}
}
