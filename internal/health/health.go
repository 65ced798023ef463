// SPDX-License-Identifier: MIT

// Package health rolls the daemon's dependency probes into the report
// the /health endpoint serves: the metadata database, the model runtime
// and the encoder binary. The database is load-bearing, so a failing
// probe there degrades the daemon; the runtime and encoder are optional
// capabilities whose absence only limits features.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the daemon-level rollup.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Probe is one dependency's state.
type Probe string

const (
	ProbeOK          Probe = "ok"
	ProbeUnavailable Probe = "unavailable"
	ProbeError       Probe = "error"
)

// Report is the /health response body.
type Report struct {
	Status    Status    `json:"status"`
	Runtime   Probe     `json:"runtime"`
	DB        Probe     `json:"db"`
	Encoder   Probe     `json:"encoder"`
	Version   string    `json:"version,omitempty"`
	CheckedAt time.Time `json:"checked_at"`

	RuntimeDetail string `json:"runtime_detail,omitempty"`
	DBDetail      string `json:"db_detail,omitempty"`
}

// DBPinger verifies the metadata store answers queries.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// RuntimePinger verifies the model runtime answers HTTP.
type RuntimePinger interface {
	Ping(ctx context.Context) error
}

// EncoderProbe reports whether an ffmpeg binary was resolved.
type EncoderProbe interface {
	Available() bool
}

// probeTimeout bounds each dependency probe so a wedged dependency
// cannot stall the health endpoint.
const probeTimeout = 3 * time.Second

// Checker probes dependencies and caches the latest report.
type Checker struct {
	version string
	db      DBPinger
	runtime RuntimePinger
	encoder EncoderProbe

	mu   sync.RWMutex
	last Report
}

// New wires a checker. Any dependency may be nil; a nil probe reports
// unavailable without being called.
func New(version string, db DBPinger, rt RuntimePinger, enc EncoderProbe) *Checker {
	c := &Checker{version: version, db: db, runtime: rt, encoder: enc}
	c.last = Report{
		Status:    StatusDegraded,
		Runtime:   ProbeUnavailable,
		DB:        ProbeError,
		Encoder:   ProbeUnavailable,
		Version:   version,
		CheckedAt: time.Now().UTC(),
	}
	return c
}

// Check probes every dependency, stores the result and returns it.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{
		Status:    StatusOK,
		Runtime:   ProbeOK,
		DB:        ProbeOK,
		Encoder:   ProbeOK,
		Version:   c.version,
		CheckedAt: time.Now().UTC(),
	}

	if c.db == nil {
		r.DB = ProbeError
		r.DBDetail = "not configured"
	} else if err := c.probe(ctx, c.db.Ping); err != nil {
		r.DB = ProbeError
		r.DBDetail = err.Error()
	}

	if c.runtime == nil {
		r.Runtime = ProbeUnavailable
		r.RuntimeDetail = "not configured"
	} else if err := c.probe(ctx, c.runtime.Ping); err != nil {
		r.Runtime = ProbeUnavailable
		r.RuntimeDetail = err.Error()
	}

	if c.encoder == nil || !c.encoder.Available() {
		r.Encoder = ProbeUnavailable
	}

	// The database is the only hard dependency; a missing runtime or
	// encoder leaves recording or analysis limited but the daemon usable.
	if r.DB != ProbeOK || r.Runtime != ProbeOK || r.Encoder != ProbeOK {
		r.Status = StatusDegraded
	}

	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
	return r
}

// Last returns the most recent report without probing.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run re-probes on the given interval until ctx ends. It keeps Last
// fresh for callers that must not block on probes.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) probe(ctx context.Context, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return ping(ctx)
}
