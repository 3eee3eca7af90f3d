package services

import (
	"context"
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/captcha"
	"github.com/nexconsult/mca-verify/internal/models"
)

// Surface is the UI automation session a query run drives. Elements are
// addressed through references returned by FindVisible.
type Surface interface {
	// Navigate loads url in the session's tab
	Navigate(ctx context.Context, url string) error

	// FindVisible returns the first visible match of selector inside scope
	FindVisible(ctx context.Context, scope browser.Element, selector string) (browser.Element, bool, error)

	// Capture screenshots an element as PNG
	Capture(ctx context.Context, el browser.Element) ([]byte, error)

	// Fill clears an input and sends text
	Fill(ctx context.Context, el browser.Element, text string) error

	// TypeSlowly sends text one character at a time
	TypeSlowly(ctx context.Context, el browser.Element, text string, delay time.Duration) error

	// Click clicks an element
	Click(ctx context.Context, el browser.Element) error

	// PressEnter sends the Enter key to an element
	PressEnter(ctx context.Context, el browser.Element) error

	// OuterHTML returns an element's markup
	OuterHTML(ctx context.Context, el browser.Element) (string, error)

	// ReadField returns an input's value or an element's text
	ReadField(ctx context.Context, el browser.Element) (string, error)

	// Snapshot captures the page HTML and a full screenshot
	Snapshot(ctx context.Context) (browser.PageCapture, error)

	// Retrieve activates a document control and waits for the new tab or download
	Retrieve(ctx context.Context, el browser.Element, timeout time.Duration) (browser.Document, error)

	// Close releases the session
	Close() error
}

// SurfaceLauncher opens one Surface per query run
type SurfaceLauncher interface {
	Open(ctx context.Context) (Surface, error)
	Health() map[string]interface{}
}

// Solver is the external image-to-text solving service
type Solver interface {
	Solve(ctx context.Context, image []byte, cons captcha.Constraints) (string, error)
}

// CaptchaServiceInterface defines the interface for challenge solving
type CaptchaServiceInterface interface {
	// Solve normalises, solves and validates one challenge
	Solve(ctx context.Context, ch models.CaptchaChallenge) (models.SolveResult, error)

	// Health returns captcha service health status
	Health() map[string]interface{}
}

// DocumentParser extracts plain text from a retrieved document
type DocumentParser interface {
	ExtractText(data []byte) (string, error)
}

// ArtifactStore persists audit material
type ArtifactStore interface {
	SaveImage(name string, data []byte) (string, error)
	SaveSnapshot(name string, pc browser.PageCapture) (*models.Snapshot, error)
	SaveDocument(rowKey string, doc browser.Document) (string, error)
}

// CacheServiceInterface defines the interface for cache service
type CacheServiceInterface interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value in cache with the default TTL
	Set(ctx context.Context, key string, value string) error

	// SetWithTTL stores a value in cache with an explicit TTL
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// GetStats returns cache statistics
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Health returns cache service health status
	Health() map[string]interface{}
}

// EngineInterface runs queries against the portal
type EngineInterface interface {
	// Run executes one query end to end
	Run(ctx context.Context, q models.Query) (*models.QueryResult, error)

	// Targets lists the supported portal targets
	Targets() []models.TargetInfo

	// Resolve normalises and validates a query before it is run
	Resolve(q *models.Query) (*Target, error)

	// Invalidate drops the cached result of a query
	Invalidate(ctx context.Context, target, identifier string) error

	// Health returns engine health status
	Health() map[string]interface{}
}
