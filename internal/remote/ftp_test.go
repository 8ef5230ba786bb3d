package remote

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rtmksync/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("FTP_HOST", "127.0.0.1")
	t.Setenv("FTP_USER", "user")
	t.Setenv("FTP_PASS", "pass")
	t.Setenv("FTP_PORT", "1")
	t.Setenv("FTP_CONNECT_TIMEOUT", "1")
	t.Setenv("FTP_CONNECT_RETRIES", "2")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewFTPMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"no host", "FTP_HOST"},
		{"no user", "FTP_USER"},
		{"no pass", "FTP_PASS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			switch tt.unset {
			case "FTP_HOST":
				cfg.Host = ""
			case "FTP_USER":
				cfg.User = ""
			case "FTP_PASS":
				cfg.Pass = ""
			}

			_, err := NewFTP(cfg, zap.NewNop())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
}

func TestConnectExhaustsRetries(t *testing.T) {
	// Port 1 on loopback refuses immediately; no server is ever involved.
	cfg := testConfig(t)

	src, err := NewFTP(cfg, zap.NewNop())
	require.NoError(t, err)

	var slept []time.Duration
	src.sleep = func(d time.Duration) { slept = append(slept, d) }

	err = src.Connect()
	require.Error(t, err)

	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Attempts)
	assert.Error(t, ce.Err)
	assert.Len(t, slept, 2, "fixed sleep after every failed attempt")
	assert.Equal(t, cfg.RetrySleep(), slept[0])
}

func TestConnectErrorMessage(t *testing.T) {
	ce := &ConnectError{Attempts: 3, Err: errors.New("connection refused")}
	assert.Contains(t, ce.Error(), "3 attempts")
	assert.Contains(t, ce.Error(), "connection refused")
	assert.ErrorContains(t, ce.Unwrap(), "refused")
}

func TestCloseWithoutConnect(t *testing.T) {
	cfg := testConfig(t)
	src, err := NewFTP(cfg, zap.NewNop())
	require.NoError(t, err)
	src.Close() // must not panic
}
