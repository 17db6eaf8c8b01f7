package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "simple", cfg.Gradebook.AverageMode)
	assert.Equal(t, 5*time.Minute, cfg.Gradebook.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Gradebook.FetchTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Exports.SignedURLTTL)
	assert.Equal(t, 2, cfg.Refresh.Workers)
	assert.Equal(t, 3, cfg.Refresh.Retries)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("GRADEBOOK_AVERAGE_MODE", " Weighted ")
	v.Set("GRADEBOOK_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("REFRESH_WORKERS", 0)

	cfg := fromViper(v)

	assert.Equal(t, "weighted", cfg.Gradebook.AverageMode)
	assert.Equal(t, 5*time.Minute, cfg.Gradebook.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 1, cfg.Refresh.Workers)
}

func TestFromViperUnknownModeFallsBackToSimple(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("GRADEBOOK_AVERAGE_MODE", "median")

	assert.Equal(t, "simple", fromViper(v).Gradebook.AverageMode)
}
