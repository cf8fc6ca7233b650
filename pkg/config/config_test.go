package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-site/pkg/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"BUCKET_NAME", "ASSET_ORIGIN", "PORT", "PUBLIC_DIR", "VIEWS_DIR", "PRELOAD_CONFIG"} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresOrigin(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.ErrorIs(t, err, ErrAssetOriginNotSet)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ASSET_ORIGIN", "https://cdn.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com", cfg.AssetOrigin)
	assert.False(t, cfg.UsesBucket())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.ServerAddress())
	assert.Equal(t, "./public", cfg.PublicDir)
	assert.Equal(t, "./views", cfg.ViewsDir)
	assert.Equal(t, DefaultPreload(), cfg.Preload)

	assert.True(t, cfg.Preload.EnforceMaxWait)
	assert.True(t, cfg.Preload.RevealAfterImagesOnly)
	assert.Equal(t, 5*time.Second, cfg.Preload.MaxWait())
	assert.Equal(t, models.ReadinessCanPlay, cfg.Preload.Readiness())
	assert.Zero(t, cfg.Preload.AssetTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Preload.CacheTTL())
}

func TestLoadBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("BUCKET_NAME", "contest-media")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UsesBucket())
	assert.Equal(t, ":9000", cfg.ServerAddress())
}

func TestLoadPreloadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "preload.toml")
	content := `
[preload]
enforce_max_wait = false
readiness_level = "metadata"
asset_timeout_ms = 1500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("ASSET_ORIGIN", "http://localhost:3000")
	t.Setenv("PRELOAD_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Preload.EnforceMaxWait)
	assert.Equal(t, models.ReadinessMetadata, cfg.Preload.Readiness())
	assert.Equal(t, 1500*time.Millisecond, cfg.Preload.AssetTimeout())
	// untouched keys keep their defaults
	assert.Equal(t, 5000, cfg.Preload.MaxWaitMs)
	assert.Equal(t, int64(1<<20), cfg.Preload.CanPlayBytes)
}

func TestLoadPreloadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPreload(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[preload]\nretries = 3\n"), 0644))
	_, err = LoadPreload(unknown)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[preload\n"), 0644))
	_, err = LoadPreload(broken)
	assert.Error(t, err)
}

func TestPreloadValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Preload)
		want   error
	}{
		{"defaults", func(p *Preload) {}, nil},
		{"strict mode ignores max wait", func(p *Preload) { p.EnforceMaxWait = false; p.MaxWaitMs = 0 }, nil},
		{"bounded without wait", func(p *Preload) { p.MaxWaitMs = 0 }, ErrInvalidMaxWait},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPreload()
			tt.modify(&p)
			err := p.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	invalid := []func(p *Preload){
		func(p *Preload) { p.ReadinessLevel = "full" },
		func(p *Preload) { p.AssetTimeoutMs = -1 },
		func(p *Preload) { p.CanPlayBytes = 0 },
		func(p *Preload) { p.MaxImageBytes = 0 },
		func(p *Preload) { p.CacheTTLMinutes = 0 },
	}
	for i, modify := range invalid {
		p := DefaultPreload()
		modify(&p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
}
