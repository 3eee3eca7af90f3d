package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"q1_r1_a1_raw", "q1_r1_a1_raw"},
		{"AB12/34 5", "AB12_34_5"},
		{"../etc/passwd", "etc_passwd"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), tt.in)
	}
}

func TestStore_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, true, logger.Discard())
	require.NoError(t, err)

	path, err := store.SaveImage("q1_r1_a1_solved_aB3dE9", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "captcha", "q1_r1_a1_solved_aB3dE9.png"), path)

	snap, err := store.SaveSnapshot("q1_final", browser.PageCapture{
		URL:        "https://example.test/page",
		HTML:       "<html></html>",
		Screenshot: []byte("shot"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/page", snap.URL)
	assert.FileExists(t, snap.HTMLPath)
	assert.FileExists(t, snap.ScreenshotPath)

	docPath, err := store.SaveDocument("AB1234567", browser.Document{Data: []byte("%PDF-1.4 body")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "documents", "AB1234567.pdf"), docPath)

	data, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))
	assert.Equal(t, int64(4), store.Health()["saved"])
}

func TestStore_DisabledWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	store, err := NewStore(dir, false, logger.Discard())
	require.NoError(t, err)

	path, err := store.SaveImage("x", []byte("png"))
	require.NoError(t, err)
	assert.Empty(t, path)

	snap, err := store.SaveSnapshot("x", browser.PageCapture{URL: "u", HTML: "h"})
	require.NoError(t, err)
	assert.Equal(t, "u", snap.URL)
	assert.Empty(t, snap.HTMLPath)

	assert.NoDirExists(t, dir)
}
