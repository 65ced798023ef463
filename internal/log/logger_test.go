// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBuf bytes.Buffer

func TestMain(m *testing.M) {
	Configure(Config{Level: "debug", Output: &testBuf, Service: "memscreen-test"})
	os.Exit(m.Run())
}

func TestConfigureOnce(t *testing.T) {
	// A second call must not replace the writer or the service name.
	Configure(Config{Service: "other"})

	l := WithComponent("capture")
	l.Info().Str(FieldEvent, "capture.open").Msg("opened")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lastLine(testBuf.Bytes()), &entry))
	assert.Equal(t, "memscreen-test", entry["service"])
	assert.Equal(t, "capture", entry["component"])
	assert.Equal(t, "capture.open", entry["event"])
	assert.Equal(t, "opened", entry["message"])
}

func TestDeriveAttachesFields(t *testing.T) {
	l := Derive(func(c *zerolog.Context) {
		*c = c.Str(FieldRecordingID, "rec-1")
	})
	l.Info().Msg("derived")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lastLine(testBuf.Bytes()), &entry))
	assert.Equal(t, "rec-1", entry["recording_id"])
}

func lastLine(b []byte) []byte {
	b = bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[i+1:]
	}
	return b
}
