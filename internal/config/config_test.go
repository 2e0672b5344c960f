package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	d, err := cfg.PollInterval()
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, d)

	d, err = cfg.ChallengeTimeout()
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, d)

	d, err = cfg.KillGracePeriod()
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, d)

	require.Equal(t, 3, cfg.Monitor.MaxAttempts)
	require.Equal(t, 6, cfg.Monitor.ResolverWindowCycles)
	require.True(t, cfg.APIEnabled(), "api defaults on")
	require.True(t, cfg.AuditJSONLEnabled(), "audit jsonl defaults on")
	require.Equal(t, "127.0.0.1:7832", cfg.API.Addr)
	require.Equal(t, "auto", cfg.Prompt.Mode)
	require.Equal(t, cfg.Store.SQLitePath, cfg.Audit.SQLitePath,
		"audit sqlite defaults to the store path")
}

func TestLoadFromBytes(t *testing.T) {
	raw := `
monitor:
  poll_interval: 250ms
  challenge_timeout: 30s
  max_attempts: 5
api:
  enabled: false
audit:
  enabled: false
  webhook:
    url: https://hooks.example.test/audit
logging:
  level: debug
  format: json
`
	cfg, err := LoadFromBytes([]byte(raw))
	require.NoError(t, err)

	d, err := cfg.PollInterval()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)

	d, err = cfg.ChallengeTimeout()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	require.Equal(t, 5, cfg.Monitor.MaxAttempts)
	require.False(t, cfg.APIEnabled(), "explicit api.enabled=false must stick")
	require.False(t, cfg.AuditJSONLEnabled(), "explicit audit.enabled=false must stick")
	require.Equal(t, "https://hooks.example.test/audit", cfg.Audit.Webhook.URL)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestChallengeTimeoutBounds(t *testing.T) {
	for _, tc := range []struct {
		timeout string
		wantErr string
	}{
		{"4s", "between 5s and 60s"},
		{"61s", "between 5s and 60s"},
		{"5s", ""},
		{"60s", ""},
		{"not-a-duration", "invalid duration"},
	} {
		_, err := LoadFromBytes([]byte("monitor:\n  challenge_timeout: " + tc.timeout + "\n"))
		if tc.wantErr == "" {
			require.NoError(t, err, "timeout %s", tc.timeout)
			continue
		}
		require.ErrorContains(t, err, tc.wantErr, "timeout %s", tc.timeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		"monitor:\n  poll_interval: -1s\n",
		"logging:\n  level: loud\n",
		"logging:\n  format: xml\n",
		"prompt:\n  mode: sometimes\n",
	}
	for _, raw := range cases {
		_, err := LoadFromBytes([]byte(raw))
		require.Error(t, err, "config %q should fail validation", raw)
	}
}

func TestLoadRejectsUnparsableYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("monitor: [not a map"))
	require.Error(t, err)
}
