package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-site/pkg/models"
)

func TestDefault(t *testing.T) {
	m := Default()

	assert.Len(t, m.Images, 8)
	assert.Contains(t, m.Images, "/logo.png")
	require.Len(t, m.Videos, 4)
	assert.Equal(t, models.VideoAsset{URL: "/10217.mp4", Priority: 4}, m.Videos[0])
	assert.NoError(t, Validate(m))
}

func TestDefaultReturnsFreshCopy(t *testing.T) {
	m := Default()
	m.Images[0] = "/changed.png"

	assert.Equal(t, "/logo.png", Default().Images[0])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	content := `{"images":["a.png","b.png"],"videos":[{"url":"x.mp4","priority":1},{"url":"y.mp4","priority":3}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, m.Images)
	assert.Equal(t, []models.VideoAsset{{URL: "x.mp4", Priority: 1}, {URL: "y.mp4", Priority: 3}}, m.Videos)
}

func TestLoadRejectsEmptyURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"images":[],"videos":[{"url":" ","priority":1}]}`), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"images":`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
