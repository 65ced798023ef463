// SPDX-License-Identifier: MIT

package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "req-123", want: "req-123"},
		{name: "background", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty id", ctx: context.Background(), requestID: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestRequestIDFromContextMissing(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(nil))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestContextWithJobID(t *testing.T) {
	ctx := ContextWithJobID(context.Background(), "job-9")
	assert.Equal(t, "job-9", JobIDFromContext(ctx))
	assert.Equal(t, "", JobIDFromContext(context.Background()))
}

func TestWithContextEnrichment(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithJobID(ctx, "job-1")

	// No fields set: logger must be returned unchanged.
	plain := WithContext(context.Background(), Base())
	assert.Equal(t, Base(), plain)

	enriched := WithContext(ctx, Base())
	assert.NotEqual(t, Base(), enriched)
}
