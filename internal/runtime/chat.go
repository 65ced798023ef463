// SPDX-License-Identifier: MIT

package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memscreen/memscreen/internal/metrics"
)

// Message is one turn of a chat conversation. Images carry base64
// encoded attachments for multimodal models.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Chunk is one increment of a streamed chat response. The terminal
// chunk has Done set and Content holding the full concatenation. A
// chunk with Err set is always the last one.
type Chunk struct {
	Delta   string
	Content string
	Done    bool
	Err     error
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Chat sends a conversation and returns the complete assistant reply.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	return c.chat(ctx, "chat", model, messages)
}

func (c *Client) chat(ctx context.Context, op, model string, messages []Message) (string, error) {
	start := time.Now()
	reply, err := c.chatOnce(ctx, model, messages)
	metrics.RecordRuntimeRequest(op, err, time.Since(start).Seconds())
	return reply, err
}

func (c *Client) chatOnce(ctx context.Context, model string, messages []Message) (string, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	resp, err := c.postJSON(ctx, "/api/chat", chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.responseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != "" {
		return "", &StatusError{Code: resp.StatusCode, Message: out.Error}
	}
	return out.Message.Content, nil
}

// ChatStream sends a conversation and streams the reply. The channel
// is closed after the terminal chunk. Cancelling ctx aborts the
// underlying request; the final chunk then carries ctx.Err().
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message) (<-chan Chunk, error) {
	resp, err := c.postJSON(ctx, "/api/chat", chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		metrics.RecordRuntimeRequest("chat", err, 0)
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := c.responseError(resp)
		metrics.RecordRuntimeRequest("chat", err, 0)
		return nil, err
	}

	out := make(chan Chunk)
	go c.streamChat(ctx, resp.Body, out)
	return out, nil
}

// streamChat decodes the runtime's newline-delimited JSON stream.
func (c *Client) streamChat(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer func() { _ = body.Close() }()

	start := time.Now()
	var streamErr error
	defer func() {
		metrics.RecordRuntimeRequest("chat", streamErr, time.Since(start).Seconds())
	}()

	var accumulated strings.Builder
	sawDone := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var piece chatResponse
		if err := json.Unmarshal(line, &piece); err != nil {
			continue
		}
		if piece.Error != "" {
			streamErr = &StatusError{Code: http.StatusOK, Message: piece.Error}
			c.emit(ctx, out, Chunk{Content: accumulated.String(), Err: streamErr})
			return
		}
		if piece.Message.Content != "" {
			accumulated.WriteString(piece.Message.Content)
			if !c.emit(ctx, out, Chunk{Delta: piece.Message.Content, Content: accumulated.String()}) {
				streamErr = ctx.Err()
				return
			}
		}
		if piece.Done {
			sawDone = true
			c.emit(ctx, out, Chunk{Content: accumulated.String(), Done: true})
			return
		}
	}

	switch {
	case ctx.Err() != nil:
		streamErr = ctx.Err()
	case scanner.Err() != nil:
		streamErr = unavailable(scanner.Err())
	case !sawDone:
		streamErr = unavailable(fmt.Errorf("stream ended early: %w", io.ErrUnexpectedEOF))
	}
	if streamErr != nil {
		c.emit(ctx, out, Chunk{Content: accumulated.String(), Err: streamErr})
	}
}

// emit delivers a chunk unless the consumer is gone.
func (c *Client) emit(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
