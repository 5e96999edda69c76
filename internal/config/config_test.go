package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tonctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "https://ton.org/global.config.json", cfg.Network.GlobalConfigURL)
	assert.Equal(t, 60, cfg.Message.Lifetime)
	assert.Equal(t, TraceNone, cfg.Debug.FailMode)
	assert.Equal(t, "./trace.log", cfg.Debug.TracePath)
	assert.False(t, cfg.Debug.FailMode.Enabled())
	assert.Equal(t, "-1:5555555555555555555555555555555555555555555555555555555555555555",
		cfg.Governance.ConfigAddress)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
message:
  lifetime: 120
call:
  asyncCall: true
  isJson: true
debug:
  failMode: full
  tracePath: /tmp/replay.log
`))
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Message.Lifetime)
	assert.True(t, cfg.Call.AsyncCall)
	assert.True(t, cfg.Call.IsJSON)
	assert.Equal(t, TraceFull, cfg.Debug.FailMode)
	assert.True(t, cfg.Debug.FailMode.Enabled())
	assert.Equal(t, "/tmp/replay.log", cfg.Debug.TracePath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad fail mode":   "debug:\n  failMode: verbose\n",
		"bad timeout":     "network:\n  timeout: soon\n",
		"negative limit":  "network:\n  rateLimit: -1\n",
		"zero lifetime":   "message:\n  lifetime: -5\n",
		"bad emu timeout": "emulator:\n  timeout: never\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
