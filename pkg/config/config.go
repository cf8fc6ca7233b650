package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"contest-site/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	BucketName  string
	AssetOrigin string
	Port        string
	PublicDir   string
	ViewsDir    string
	Preload     Preload
}

// Preload holds the preloading policy. It can be tuned with the [preload] table
// of the file named by PRELOAD_CONFIG.
type Preload struct {
	EnforceMaxWait        bool   `toml:"enforce_max_wait"`
	MaxWaitMs             int    `toml:"max_wait_ms"`
	RevealAfterImagesOnly bool   `toml:"reveal_after_images_only"`
	ReadinessLevel        string `toml:"readiness_level"`
	AssetTimeoutMs        int    `toml:"asset_timeout_ms"`
	CanPlayBytes          int64  `toml:"can_play_bytes"`
	MaxImageBytes         int64  `toml:"max_image_bytes"`
	CacheTTLMinutes       int    `toml:"cache_ttl_minutes"`
}

type fileConfig struct {
	Preload Preload `toml:"preload"`
}

// ErrAssetOriginNotSet is returned when neither BUCKET_NAME nor ASSET_ORIGIN is set
var ErrAssetOriginNotSet = errors.New("BUCKET_NAME or ASSET_ORIGIN environment variable must be set")

// ErrInvalidMaxWait is returned when bounded mode is enabled without a positive wait
var ErrInvalidMaxWait = errors.New("max_wait_ms must be positive when enforce_max_wait is enabled")

// DefaultPreload returns the policy used when no file overrides it
func DefaultPreload() Preload {
	return Preload{
		EnforceMaxWait:        true,
		MaxWaitMs:             5000,
		RevealAfterImagesOnly: true,
		ReadinessLevel:        string(models.ReadinessCanPlay),
		AssetTimeoutMs:        0,
		CanPlayBytes:          1 << 20,
		MaxImageBytes:         20 << 20,
		CacheTTLMinutes:       30,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	bucketName := os.Getenv("BUCKET_NAME")
	assetOrigin := strings.TrimRight(os.Getenv("ASSET_ORIGIN"), "/")
	if bucketName == "" && assetOrigin == "" {
		return nil, ErrAssetOriginNotSet
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	publicDir := os.Getenv("PUBLIC_DIR")
	if publicDir == "" {
		publicDir = "./public"
	}

	viewsDir := os.Getenv("VIEWS_DIR")
	if viewsDir == "" {
		viewsDir = "./views"
	}

	policy := DefaultPreload()
	if path := os.Getenv("PRELOAD_CONFIG"); path != "" {
		var err error
		policy, err = LoadPreload(path)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		BucketName:  bucketName,
		AssetOrigin: assetOrigin,
		Port:        port,
		PublicDir:   publicDir,
		ViewsDir:    viewsDir,
		Preload:     policy,
	}
	if err := cfg.Preload.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPreload reads the [preload] table of a TOML file on top of the defaults
func LoadPreload(path string) (Preload, error) {
	file, err := os.Open(path)
	if err != nil {
		return Preload{}, fmt.Errorf("open preload config: %w", err)
	}
	defer file.Close()

	fc := fileConfig{Preload: DefaultPreload()}
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return Preload{}, fmt.Errorf("parse preload config: %w", err)
	}
	return fc.Preload, nil
}

// Validate checks the policy for values the preloader cannot work with
func (p Preload) Validate() error {
	if p.EnforceMaxWait && p.MaxWaitMs <= 0 {
		return ErrInvalidMaxWait
	}
	if _, err := models.ParseReadinessLevel(p.ReadinessLevel); err != nil {
		return err
	}
	if p.AssetTimeoutMs < 0 {
		return fmt.Errorf("asset_timeout_ms must not be negative, got %d", p.AssetTimeoutMs)
	}
	if p.CanPlayBytes <= 0 {
		return fmt.Errorf("can_play_bytes must be positive, got %d", p.CanPlayBytes)
	}
	if p.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", p.MaxImageBytes)
	}
	if p.CacheTTLMinutes <= 0 {
		return fmt.Errorf("cache_ttl_minutes must be positive, got %d", p.CacheTTLMinutes)
	}
	return nil
}

// Readiness returns the parsed readiness level; Validate has already rejected bad values
func (p Preload) Readiness() models.ReadinessLevel {
	level, err := models.ParseReadinessLevel(p.ReadinessLevel)
	if err != nil {
		return models.ReadinessCanPlay
	}
	return level
}

// MaxWait returns the bounded-mode countdown
func (p Preload) MaxWait() time.Duration {
	return time.Duration(p.MaxWaitMs) * time.Millisecond
}

// AssetTimeout returns the per-asset ceiling, zero when disabled
func (p Preload) AssetTimeout() time.Duration {
	return time.Duration(p.AssetTimeoutMs) * time.Millisecond
}

// CacheTTL returns how long warmed assets stay in memory
func (p Preload) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLMinutes) * time.Minute
}

// UsesBucket reports whether assets come from a storage bucket rather than an HTTP origin
func (c *Config) UsesBucket() bool {
	return c.BucketName != ""
}

// ServerAddress returns the server address with port
func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// PrintServerStartMessage prints a message when the server starts
func (c *Config) PrintServerStartMessage() {
	fmt.Printf("Starting server at port %s\n", c.Port)
	fmt.Printf("Site URL: http://localhost:%s/\n", c.Port)
	fmt.Printf("Preload status URL: http://localhost:%s/preload/status\n", c.Port)
	if c.UsesBucket() {
		fmt.Printf("Assets from bucket: %s\n", c.BucketName)
	} else {
		fmt.Printf("Assets from origin: %s\n", c.AssetOrigin)
	}
}
