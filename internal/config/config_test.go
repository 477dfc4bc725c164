// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.ServerTokenTTL)
	assert.Equal(t, 100, cfg.HistorianBatchSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HISTORIAN_FLUSH_INTERVAL", "250ms")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.HistorianFlushInterval)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")
	t.Setenv("PRIVATE_KEY_PATH", "/keys/private")
	t.Setenv("HISTORIAN_BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "PUBLIC_KEY_PATH")
	assert.Contains(t, err.Error(), "HISTORIAN_BATCH_SIZE")
}

const validPools = `{
  "root": "global",
  "agents": [{"id": "a1", "baseUrl": "http://10.0.0.5:9100", "secretHash": "x"}],
  "leaves": [
    {"id": "local", "maxServers": 2, "readyThreshold": 1, "provisioner": "dev", "endpoints": ["127.0.0.1:7777"]},
    {"id": "eu", "maxServers": 8, "provisioner": "agent", "image": "game:1"}
  ],
  "composites": [
    {"id": "global", "children": ["eu", "local"]}
  ]
}`

func TestParsePools(t *testing.T) {
	f, err := ParsePools([]byte(validPools))
	require.NoError(t, err)
	assert.Equal(t, "global", f.Root)
	require.Len(t, f.Leaves, 2)
	assert.Equal(t, ProvisionerAgent, f.Leaves[1].Provisioner)
	assert.Equal(t, []string{"eu", "local"}, f.Composites[0].Children)
}

func TestParsePoolsRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "unknown field",
			json: `{"root": "a", "leaves": [{"id": "a", "maxServers": 1, "provisioner": "dev", "endpoints": ["x"], "size": 3}]}`,
			want: "unknown field",
		},
		{
			name: "duplicate id",
			json: `{"root": "a", "leaves": [{"id": "a", "maxServers": 1, "provisioner": "dev", "endpoints": ["x"]}],
				"composites": [{"id": "a", "children": []}]}`,
			want: "duplicate pool id",
		},
		{
			name: "unknown child",
			json: `{"root": "c", "composites": [{"id": "c", "children": ["missing"]}]}`,
			want: `unknown child "missing"`,
		},
		{
			name: "threshold above max",
			json: `{"root": "a", "leaves": [{"id": "a", "maxServers": 1, "readyThreshold": 2, "provisioner": "dev", "endpoints": ["x"]}]}`,
			want: "readyThreshold",
		},
		{
			name: "agent provisioner without agents",
			json: `{"root": "a", "leaves": [{"id": "a", "maxServers": 1, "provisioner": "agent", "image": "img"}]}`,
			want: "at least one agent",
		},
		{
			name: "missing root",
			json: `{"root": "nope", "leaves": [{"id": "a", "maxServers": 1, "provisioner": "dev", "endpoints": ["x"]}]}`,
			want: "root pool",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePools([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	require.NoError(t, os.WriteFile(path, []byte(validPools), 0o600))

	f, err := LoadPools(path)
	require.NoError(t, err)
	assert.Len(t, f.Composites, 1)

	_, err = LoadPools(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
