package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8000", cfg.WSURL)
	assert.Equal(t, BackendFile, cfg.SessionBackend)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, 50, cfg.NotifyQueueSize)
}

func TestEnvAndDotEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GRIEVANCE_API_URL", "https://portal.example.edu/")
	t.Setenv("GRIEVANCE_SESSION_BACKEND", "Memory")
	require.NoError(t, os.WriteFile(".env", []byte("GRIEVANCE_NOTIFY_QUEUE_SIZE=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GRIEVANCE_NOTIFY_QUEUE_SIZE") })

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.edu", cfg.APIURL)
	assert.Equal(t, "wss://portal.example.edu", cfg.WSURL)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.Equal(t, 7, cfg.NotifyQueueSize)
}

func TestConfigFileAndFlags(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	dir := filepath.Join(home, ".config", "grievance-chat")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("api_url = \"http://file:9000\"\nws_url = \"ws://sockets:9001\"\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://file:9000", cfg.APIURL)
	assert.Equal(t, "ws://sockets:9001", cfg.WSURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestRejectsUnknownBackend(t *testing.T) {
	isolate(t)
	t.Setenv("GRIEVANCE_SESSION_BACKEND", "sqlite")

	_, err := Load(New())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestWebSocketURL(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8000", want: "ws://localhost:8000"},
		{in: "https://portal.example.edu/base/", want: "wss://portal.example.edu/base"},
		{in: "ws://already:1", want: "ws://already:1"},
		{in: "ftp://x", wantErr: true},
		{in: "http://", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := WebSocketURL(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
