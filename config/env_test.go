package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 8000, env.Port)
	assert.Equal(t, ":8000", env.Addr())
	assert.Equal(t, "configs/usecases.yaml", env.UseCases)
	assert.Equal(t, []string{"*"}, env.CORSOrigins)
	assert.Equal(t, "none", env.CacheBackend)
	assert.Equal(t, 15*time.Second, env.ShutdownTimeout)
	assert.True(t, env.MetricsEnabled)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("INFERKIT_PORT", "9090")
	t.Setenv("INFERKIT_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("INFERKIT_CACHE_BACKEND", "redis")
	t.Setenv("INFERKIT_RATE_LIMIT", "12.5")
	t.Setenv("INFERKIT_FEAST_HOST", "feast")
	t.Setenv("INFERKIT_FEAST_PROJECT", "routine")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, env.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, env.CORSOrigins)
	assert.Equal(t, "redis", env.CacheBackend)
	assert.Equal(t, 12.5, env.RateLimit)
	assert.Equal(t, "feast", env.FeastHost)
}

func TestEnvValidate(t *testing.T) {
	valid := func() Env {
		return Env{
			Port:           8000,
			UseCases:       "usecases.yaml",
			RateBurst:      1,
			MaxUploadBytes: 1,
			CacheBackend:   "none",
			LogLevel:       "info",
		}
	}
	tests := []struct {
		name    string
		mutate  func(e *Env)
		wantErr bool
	}{
		{name: "valid", mutate: func(e *Env) {}},
		{name: "bad port", mutate: func(e *Env) { e.Port = 70000 }, wantErr: true},
		{name: "no usecases", mutate: func(e *Env) { e.UseCases = "" }, wantErr: true},
		{name: "negative rate", mutate: func(e *Env) { e.RateLimit = -1 }, wantErr: true},
		{name: "rate without burst", mutate: func(e *Env) { e.RateLimit = 5; e.RateBurst = 0 }, wantErr: true},
		{name: "bad cache", mutate: func(e *Env) { e.CacheBackend = "memcached" }, wantErr: true},
		{name: "bad log level", mutate: func(e *Env) { e.LogLevel = "trace" }, wantErr: true},
		{name: "feast without project", mutate: func(e *Env) { e.FeastHost = "feast" }, wantErr: true},
		{name: "zero upload limit", mutate: func(e *Env) { e.MaxUploadBytes = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
