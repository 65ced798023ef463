// SPDX-License-Identifier: MIT

package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain localhost", in: "http://localhost:11434", want: "http://localhost:11434"},
		{name: "loopback ip", in: "http://127.0.0.1:11434", want: "http://127.0.0.1:11434"},
		{name: "trailing slash dropped", in: "http://localhost:11434/", want: "http://localhost:11434"},
		{name: "uppercase scheme and host", in: "HTTP://LocalHost:11434", want: "http://localhost:11434"},
		{name: "unicode host", in: "http://straße.example:8080", want: "http://xn--strae-oqa.example:8080"},
		{name: "ipv6 no port", in: "http://[::1]", want: "http://[::1]"},
		{name: "https", in: "https://localhost", want: "https://localhost"},
		{name: "empty", in: "", wantErr: true},
		{name: "ftp scheme", in: "ftp://localhost", wantErr: true},
		{name: "userinfo", in: "http://user:pw@localhost", wantErr: true},
		{name: "query", in: "http://localhost?x=1", wantErr: true},
		{name: "no host", in: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	got, err := NormalizeHost("Example.COM.")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)

	_, err = NormalizeHost("host/path")
	assert.Error(t, err)
	_, err = NormalizeHost("user@host")
	assert.Error(t, err)
}
