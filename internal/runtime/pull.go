// SPDX-License-Identifier: MIT

package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/memscreen/memscreen/internal/metrics"
)

const pullHeartbeat = 30 * time.Second

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EnsureModel pulls a model if it is missing. There is no overall
// deadline; a watchdog aborts the pull when the runtime reports no
// progress for pullHeartbeat. Concurrent calls for the same name share
// a single in-flight pull.
func (c *Client) EnsureModel(ctx context.Context, name string) error {
	_, err, _ := c.group.Do("pull:"+name, func() (any, error) {
		return nil, c.pull(ctx, name)
	})
	return err
}

func (c *Client) pull(ctx context.Context, name string) error {
	start := time.Now()
	err := c.pullOnce(ctx, name)
	metrics.RecordRuntimeRequest("pull", err, time.Since(start).Seconds())
	return err
}

func (c *Client) pullOnce(ctx context.Context, name string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeat := c.heartbeat
	if heartbeat <= 0 {
		heartbeat = pullHeartbeat
	}

	// The watchdog cancels the request when the progress stream goes
	// quiet; starved distinguishes that from caller cancellation.
	var starved atomic.Bool
	watchdog := time.AfterFunc(heartbeat, func() {
		starved.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	resp, err := c.postJSON(ctx, "/api/pull", pullRequest{Model: name, Stream: true})
	if err != nil {
		if starved.Load() {
			return unavailable(errors.New("no pull progress within heartbeat"))
		}
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return c.responseError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	logger := c.logger.With().Str("model", name).Logger()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	for scanner.Scan() {
		watchdog.Reset(heartbeat)

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var progress pullProgress
		if err := json.Unmarshal(line, &progress); err != nil {
			continue
		}
		if progress.Error != "" {
			return &StatusError{Code: http.StatusOK, Message: progress.Error}
		}
		if progress.Total > 0 {
			logger.Debug().
				Str("status", progress.Status).
				Int64("completed", progress.Completed).
				Int64("total", progress.Total).
				Msg("model pull progress")
		} else if progress.Status != "" {
			logger.Debug().Str("status", progress.Status).Msg("model pull progress")
		}
		if progress.Status == "success" {
			logger.Info().Msg("model pull complete")
			return nil
		}
	}

	if starved.Load() {
		return unavailable(errors.New("no pull progress within heartbeat"))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return unavailable(err)
	}
	return unavailable(errors.New("pull stream ended without success"))
}
