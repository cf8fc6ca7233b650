package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReadinessLevel(t *testing.T) {
	tests := []struct {
		input string
		want  ReadinessLevel
	}{
		{"", ReadinessCanPlay},
		{"can-play", ReadinessCanPlay},
		{" Metadata ", ReadinessMetadata},
	}
	for _, tt := range tests {
		got, err := ParseReadinessLevel(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := ParseReadinessLevel("full")
	assert.Error(t, err)
}

func TestLoadProgressPercent(t *testing.T) {
	assert.Equal(t, 0.0, LoadProgress{}.Percent())
	assert.Equal(t, 40.0, LoadProgress{Loaded: 2, Total: 5}.Percent())
	assert.Equal(t, 100.0, LoadProgress{Loaded: 5, Total: 5}.Percent())
}

func TestManifestTotal(t *testing.T) {
	m := Manifest{
		Images: []string{"a.png", "a.png"},
		Videos: []VideoAsset{{URL: "x.mp4", Priority: 1}},
	}
	assert.Equal(t, 3, m.Total())
}
