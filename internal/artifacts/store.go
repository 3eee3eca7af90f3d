// Package artifacts persists audit material produced while running queries:
// challenge images, final-state snapshots and retrieved documents.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	captchaDir   = "captcha"
	snapshotDir  = "snapshots"
	documentsDir = "documents"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store writes artifacts below a root directory. A disabled store accepts
// every call and writes nothing.
type Store struct {
	root    string
	enabled bool
	logger  *logrus.Logger

	mu    sync.Mutex
	saved int64
}

// NewStore creates a store rooted at dir
func NewStore(dir string, enabled bool, logger *logrus.Logger) (*Store, error) {
	s := &Store{root: dir, enabled: enabled, logger: logger}
	if !enabled {
		return s, nil
	}
	for _, sub := range []string{captchaDir, snapshotDir, documentsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create artifacts dir %s: %w", sub, err)
		}
	}
	return s, nil
}

// SanitizeName makes name safe to use as a file name
func SanitizeName(name string) string {
	clean := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_.")
	if clean == "" {
		return "unnamed"
	}
	return clean
}

// SaveImage stores a challenge image as <name>.png
func (s *Store) SaveImage(name string, data []byte) (string, error) {
	return s.write(captchaDir, SanitizeName(name)+".png", data)
}

// SaveSnapshot stores the HTML and screenshot of a page under name
func (s *Store) SaveSnapshot(name string, pc browser.PageCapture) (*models.Snapshot, error) {
	snap := &models.Snapshot{URL: pc.URL, CapturedAt: time.Now()}
	if !s.enabled {
		return snap, nil
	}

	base := SanitizeName(name)
	if pc.HTML != "" {
		path, err := s.write(snapshotDir, base+".html", []byte(pc.HTML))
		if err != nil {
			return nil, err
		}
		snap.HTMLPath = path
	}
	if len(pc.Screenshot) > 0 {
		path, err := s.write(snapshotDir, base+".png", pc.Screenshot)
		if err != nil {
			return nil, err
		}
		snap.ScreenshotPath = path
	}
	return snap, nil
}

// SaveDocument stores a retrieved document keyed by its row key
func (s *Store) SaveDocument(rowKey string, doc browser.Document) (string, error) {
	return s.write(documentsDir, SanitizeName(rowKey)+doc.Extension(), doc.Data)
}

func (s *Store) write(sub, name string, data []byte) (string, error) {
	if !s.enabled {
		return "", nil
	}

	path := filepath.Join(s.root, sub, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}

	s.mu.Lock()
	s.saved++
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(data),
	}).Debug("Artifact saved")
	return path, nil
}

// Health reports where artifacts go and how many were written
func (s *Store) Health() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"status":  "healthy",
		"enabled": s.enabled,
		"root":    s.root,
		"saved":   s.saved,
	}
}
