package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpersParseAndFallBack(t *testing.T) {
	t.Setenv("XB_TEST_INT", "42")
	t.Setenv("XB_TEST_FLOAT", "0.25")
	t.Setenv("XB_TEST_BOOL", "true")
	t.Setenv("XB_TEST_DUR", "90s")
	t.Setenv("XB_TEST_STR", "  padded  ")

	n, err := envInt("XB_TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	f, err := envFloat("XB_TEST_FLOAT", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, f, 1e-9)

	b, err := envBool("XB_TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	d, err := envDuration("XB_TEST_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	assert.Equal(t, "padded", envStr("XB_TEST_STR", "x"))
	assert.Equal(t, "fallback", envStr("XB_TEST_UNSET", "fallback"))

	n, err = envInt("XB_TEST_UNSET", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, n)
}

func TestEnvHelpersRejectMalformed(t *testing.T) {
	tests := []struct {
		value string
		parse func(string) error
		want  string
	}{
		{"abc", func(k string) error { _, err := envInt(k, 0); return err }, `="abc" is not a valid integer`},
		{"warm", func(k string) error { _, err := envFloat(k, 0); return err }, `="warm" is not a valid number`},
		{"maybe", func(k string) error { _, err := envBool(k, false); return err }, `="maybe" is not a valid boolean`},
		{"five-seconds", func(k string) error { _, err := envDuration(k, 0); return err }, `="five-seconds" is not a valid duration`},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("XB_TEST_BAD", tt.value)
			err := tt.parse("XB_TEST_BAD")
			require.Error(t, err)
			assert.Equal(t, "XB_TEST_BAD"+tt.want, err.Error())
		})
	}
}

func TestLoadReportsEveryMalformedVariable(t *testing.T) {
	t.Setenv("XIAOBAN_PORT", "abc")
	t.Setenv("XIAOBAN_PROACTIVE_INTERVAL", "xyz")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `XIAOBAN_PORT="abc"`)
	assert.Contains(t, err.Error(), `XIAOBAN_PROACTIVE_INTERVAL="xyz"`)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "data/conversations.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.ProactiveInterval)
	assert.Equal(t, "data/trigger_history.json", cfg.CooldownFile)
	assert.Equal(t, "小伴", cfg.PersonaName)
	assert.InDelta(t, 1.0, cfg.OTELSampleRatio, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.OTELMetricInterval)
	assert.False(t, cfg.PushEnabled(), "push needs both VAPID keys")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{"postgres without dsn", map[string]string{"XIAOBAN_STORE": "postgres"}, "DATABASE_URL"},
		{"unknown store", map[string]string{"XIAOBAN_STORE": "mongo"}, "XIAOBAN_STORE"},
		{"openai without key", map[string]string{"XIAOBAN_LLM_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"unknown provider", map[string]string{"XIAOBAN_LLM_PROVIDER": "claude"}, "XIAOBAN_LLM_PROVIDER"},
		{"half vapid pair", map[string]string{"VAPID_PUBLIC_KEY": "abc"}, "VAPID_PRIVATE_KEY"},
		{"bad cooldown backend", map[string]string{"XIAOBAN_COOLDOWN_BACKEND": "redis"}, "XIAOBAN_COOLDOWN_BACKEND"},
		{"zero interval", map[string]string{"XIAOBAN_PROACTIVE_INTERVAL": "0s"}, "XIAOBAN_PROACTIVE_INTERVAL"},
		{"bad timezone", map[string]string{"XIAOBAN_TIMEZONE": "Mars/Olympus"}, "XIAOBAN_TIMEZONE"},
		{"temperature range", map[string]string{"XIAOBAN_TEMPERATURE": "3"}, "XIAOBAN_TEMPERATURE"},
		{"sample ratio range", map[string]string{"XIAOBAN_OTEL_SAMPLE_RATIO": "1.5"}, "XIAOBAN_OTEL_SAMPLE_RATIO"},
		{"port range", map[string]string{"XIAOBAN_PORT": "70000"}, "XIAOBAN_PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestLoadPostgresWithTimezone(t *testing.T) {
	t.Setenv("XIAOBAN_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://x@localhost/x")
	t.Setenv("XIAOBAN_TIMEZONE", "Asia/Shanghai")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.PushEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}
