// SPDX-License-Identifier: MIT

package ingest

import "errors"

var (
	// ErrNoUsableFrames is returned when every sampled frame failed both
	// OCR and vision description, leaving nothing to index.
	ErrNoUsableFrames = errors.New("ingest: no usable frames")

	// ErrQueueFull is returned by TryEnqueue when the analysis backlog is
	// at capacity.
	ErrQueueFull = errors.New("ingest: analysis queue full")

	// ErrClosed is returned once the pipeline has shut down.
	ErrClosed = errors.New("ingest: pipeline closed")
)
