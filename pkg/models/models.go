package models

import (
	"fmt"
	"strings"
	"time"
)

// Manifest lists the media the site preloads before it reveals the page
type Manifest struct {
	Images []string     `json:"images"`
	Videos []VideoAsset `json:"videos"`
}

// VideoAsset is a video URL with its load priority. Higher priorities load sooner.
type VideoAsset struct {
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// Total returns the number of assets a preload run completes
func (m Manifest) Total() int {
	return len(m.Images) + len(m.Videos)
}

// AssetKind tells images and videos apart
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// ReadinessLevel is the point at which a video load counts as ready
type ReadinessLevel string

const (
	// ReadinessCanPlay waits until enough data is buffered to start playback
	ReadinessCanPlay ReadinessLevel = "can-play"
	// ReadinessMetadata waits only until the container metadata is available
	ReadinessMetadata ReadinessLevel = "metadata"
)

// ParseReadinessLevel converts a configuration value into a ReadinessLevel.
// An empty value selects ReadinessCanPlay.
func ParseReadinessLevel(value string) (ReadinessLevel, error) {
	switch ReadinessLevel(strings.ToLower(strings.TrimSpace(value))) {
	case "", ReadinessCanPlay:
		return ReadinessCanPlay, nil
	case ReadinessMetadata:
		return ReadinessMetadata, nil
	default:
		return "", fmt.Errorf("readiness level: unsupported value %q", value)
	}
}

// LoadProgress counts completed assets during one preload run
type LoadProgress struct {
	Loaded int `json:"loaded"`
	Total  int `json:"total"`
}

// Percent returns Loaded/Total*100, or 0 for an empty run
func (p LoadProgress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Loaded) / float64(p.Total) * 100
}

// AssetResult describes one completed asset load
type AssetResult struct {
	URL      string        `json:"url"`
	Kind     AssetKind     `json:"kind"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the load ended in a recorded failure
func (r AssetResult) Failed() bool {
	return r.Err != nil
}

// SessionState is what the presentation layer reads while the page loads
type SessionState struct {
	IsLoading bool    `json:"isLoading"`
	Progress  float64 `json:"progress"`
}

// CachedAsset is a warmed asset held in memory by the media service
type CachedAsset struct {
	URL         string
	Kind        AssetKind
	ContentType string
	Data        []byte
	Size        int
	// Complete is false when Data holds only a buffered prefix of a video
	Complete bool
}

// Page represents the index page data
type Page struct {
	State    SessionState
	Manifest Manifest
}
