package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "SEGMENTA_PROFILES", "SEGMENTA_PRIMARY_FEATURES",
		"SEGMENTA_SECONDARY_FEATURES", "SEGMENTA_K_MIN", "SEGMENTA_K_MAX",
		"SEGMENTA_SEED", "SEGMENTA_MIN_CLIENTS", "SEGMENTA_MAX_EXCLUSION_RATE",
		"SEGMENTA_WORKERS", "SEGMENTA_PROFILE_TIMEOUT", "SEGMENTA_OUTPUT_DIR",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "SEGMENTA_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{ProfilesAll}, cfg.Profiles)
	assert.True(t, cfg.AllProfiles())
	assert.Equal(t, []string{"risco_inicial", "cob_garantia", "atraso"}, cfg.PrimaryFeatures)
	assert.Equal(t, []string{"valor_contrato", "saldo_atual"}, cfg.SecondaryFeatures)
	assert.Equal(t, 2, cfg.KMin)
	assert.Equal(t, 6, cfg.KMax)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 25, cfg.MinClientsPerProfile)
	assert.Equal(t, 0.5, cfg.MaxExclusionRate)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.ProfileTimeout)
	assert.Equal(t, "analysis/output", cfg.OutputDir)
	assert.Empty(t, cfg.OTELEndpoint)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user:pw@db:5432/clusters")
	t.Setenv("SEGMENTA_PROFILES", "varejo, agro ,empresas")
	t.Setenv("SEGMENTA_K_MIN", "3")
	t.Setenv("SEGMENTA_K_MAX", "8")
	t.Setenv("SEGMENTA_SEED", "7")
	t.Setenv("SEGMENTA_MAX_EXCLUSION_RATE", "0.25")
	t.Setenv("SEGMENTA_WORKERS", "2")
	t.Setenv("SEGMENTA_PROFILE_TIMEOUT", "90s")
	t.Setenv("SEGMENTA_OUTPUT_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://user:pw@db:5432/clusters", cfg.DatabaseURL)
	assert.Equal(t, []string{"varejo", "agro", "empresas"}, cfg.Profiles)
	assert.False(t, cfg.AllProfiles())
	assert.Equal(t, 3, cfg.KMin)
	assert.Equal(t, 8, cfg.KMax)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 0.25, cfg.MaxExclusionRate)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.ProfileTimeout)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SEGMENTA_K_MAX", "six")
	t.Setenv("SEGMENTA_PROFILE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.KMax)
	assert.Equal(t, 5*time.Minute, cfg.ProfileTimeout)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{LogLevel: tt.in}.SlogLevel(), "level %q", tt.in)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL:          "postgres://localhost/segmenta",
			Profiles:             []string{ProfilesAll},
			PrimaryFeatures:      []string{"risco_inicial"},
			KMin:                 2,
			KMax:                 6,
			MinClientsPerProfile: 25,
			MaxExclusionRate:     0.5,
			Workers:              1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing dsn", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"no profiles", func(c *Config) { c.Profiles = nil }, "SEGMENTA_PROFILES"},
		{"no primary features", func(c *Config) { c.PrimaryFeatures = nil }, "SEGMENTA_PRIMARY_FEATURES"},
		{"k_min too small", func(c *Config) { c.KMin = 1 }, "SEGMENTA_K_MIN"},
		{"k_max below k_min", func(c *Config) { c.KMax = 1 }, "SEGMENTA_K_MAX"},
		{"min clients zero", func(c *Config) { c.MinClientsPerProfile = 0 }, "SEGMENTA_MIN_CLIENTS"},
		{"exclusion rate above one", func(c *Config) { c.MaxExclusionRate = 1.5 }, "SEGMENTA_MAX_EXCLUSION_RATE"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "SEGMENTA_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
