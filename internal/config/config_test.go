package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/rules"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/home/tester/.local/share/glrules/glrules.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, rules.DefaultThresholds(), cfg.Rules.Thresholds())
	assert.Equal(t, 30*time.Second, cfg.Rules.CacheTTL)
	assert.False(t, cfg.Suggester.Enabled)
	assert.Equal(t, 3, cfg.Suggester.MaxRetries)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: `+filepath.Join(dir, "rules.db")+`
logging:
  level: debug
  format: json
server:
  addr: 127.0.0.1:9090
  shutdown_timeout: 2s
rate_limit:
  requests_per_second: 5
  burst: 10
rules:
  suggest_min_confidence: 0.4
  auto_apply_min_confidence: 0.9
  cache_ttl: 1m
suggester:
  enabled: true
  api_key: sk-test
  base_url: http://localhost:1234/v1
`), 0600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "rules.db"), cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	assert.InDelta(t, 5.0, cfg.RateLimit.RequestsPerSecond, 1e-9)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, rules.Thresholds{SuggestMinConfidence: 0.4, AutoApplyMinConfidence: 0.9}, cfg.Rules.Thresholds())
	assert.Equal(t, time.Minute, cfg.Rules.CacheTTL)
	assert.True(t, cfg.Suggester.Enabled)
	assert.Equal(t, "sk-test", cfg.Suggester.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Suggester.Model)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		values  map[string]any
		wantErr error
		name    string
	}{
		{name: "bad log level", values: map[string]any{"logging.level": "loud"}, wantErr: common.ErrInvalidConfig},
		{name: "bad log format", values: map[string]any{"logging.format": "xml"}, wantErr: common.ErrInvalidConfig},
		{name: "threshold above one", values: map[string]any{"rules.auto_apply_min_confidence": 1.2}, wantErr: common.ErrInvalidConfig},
		{name: "suggest above auto apply", values: map[string]any{"rules.suggest_min_confidence": 0.9, "rules.auto_apply_min_confidence": 0.8}, wantErr: common.ErrInvalidConfig},
		{name: "negative burst", values: map[string]any{"rate_limit.burst": -1}, wantErr: common.ErrInvalidConfig},
		{name: "suggester without key", values: map[string]any{"suggester.enabled": true}, wantErr: common.ErrMissingConfig},
		{name: "blank database path", values: map[string]any{"database.path": " "}, wantErr: common.ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}
			_, err := Load(v)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("GLRULES_TEST_DIR", "/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: "/home/tester"},
		{in: "~/rules.db", want: "/home/tester/rules.db"},
		{in: "$GLRULES_TEST_DIR/rules.db", want: "/data/rules.db"},
		{in: "/abs/rules.db", want: "/abs/rules.db"},
		{in: "  ~/rules.db ", want: "/home/tester/rules.db"},
		{in: MemoryDatabase, want: ":memory:"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandPath(tt.in), tt.in)
	}
}
