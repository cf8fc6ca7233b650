package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"contest-site/pkg/models"
)

// ErrEmptyURL is returned when a manifest entry has no URL
var ErrEmptyURL = errors.New("manifest entry has an empty URL")

// Default returns the assets the landing page needs before it is revealed.
// Theme videos are not listed; they load in the background after the page is shown.
func Default() models.Manifest {
	images := []string{
		"/logo.png",
		"/10217-poster.jpg",
		"/10219-poster.jpg",
		"/102110-poster.jpg",
		"/102111-poster.jpg",
		"/way-i-see-it-poster.jpg",
		"/fernweh-poster.jpg",
		"/2085-poster.jpg",
	}

	// Hero videos, left to right
	videos := []models.VideoAsset{
		{URL: "/10217.mp4", Priority: 4},
		{URL: "/10219.mp4", Priority: 3},
		{URL: "/102110.mp4", Priority: 2},
		{URL: "/102111.mp4", Priority: 1},
	}

	return models.Manifest{Images: images, Videos: videos}
}

// Load reads a manifest from a JSON file
func Load(path string) (models.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	if err := Validate(m); err != nil {
		return models.Manifest{}, err
	}
	return m, nil
}

// Validate checks that every entry carries a URL
func Validate(m models.Manifest) error {
	for i, img := range m.Images {
		if strings.TrimSpace(img) == "" {
			return fmt.Errorf("images[%d]: %w", i, ErrEmptyURL)
		}
	}
	for i, v := range m.Videos {
		if strings.TrimSpace(v.URL) == "" {
			return fmt.Errorf("videos[%d]: %w", i, ErrEmptyURL)
		}
	}
	return nil
}
