package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

// fakeClock advances only when something sleeps on it
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.mu.Unlock()
	return nil
}

// fakeSurface is a scripted page. Elements are addressed by selector text;
// scopes are ignored.
type fakeSurface struct {
	clock *fakeClock

	visible   map[string]bool
	showAt    map[string]time.Time
	findErr   map[string]error
	onClick   map[string]func(f *fakeSurface)
	html      map[string]string
	fields    map[string]string
	docs      map[string]browser.Document
	captureOK bool

	generation int
	lookups    []string
	clicks     []string
	fills      []string
	typed      string
	enters     int
	navigated  string
	snapshots  int
	closed     bool
}

func newFakeSurface(clock *fakeClock) *fakeSurface {
	return &fakeSurface{
		clock:     clock,
		visible:   make(map[string]bool),
		showAt:    make(map[string]time.Time),
		findErr:   make(map[string]error),
		onClick:   make(map[string]func(f *fakeSurface)),
		html:      make(map[string]string),
		fields:    make(map[string]string),
		docs:      make(map[string]browser.Document),
		captureOK: true,
	}
}

func (f *fakeSurface) show(selectors ...string) {
	for _, s := range selectors {
		f.visible[s] = true
		delete(f.showAt, s)
	}
}

func (f *fakeSurface) hide(selectors ...string) {
	for _, s := range selectors {
		delete(f.visible, s)
		delete(f.showAt, s)
	}
}

// showIn makes selector visible once the fake clock has advanced by d
func (f *fakeSurface) showIn(selector string, d time.Duration) {
	f.showAt[selector] = f.clock.Now().Add(d)
}

func (f *fakeSurface) isVisible(selector string) bool {
	if f.visible[selector] {
		return true
	}
	at, ok := f.showAt[selector]
	return ok && !f.clock.Now().Before(at)
}

func (f *fakeSurface) Navigate(_ context.Context, url string) error {
	f.navigated = url
	return nil
}

func (f *fakeSurface) FindVisible(_ context.Context, _ browser.Element, selector string) (browser.Element, bool, error) {
	f.lookups = append(f.lookups, selector)
	if err := f.findErr[selector]; err != nil {
		return browser.Element{}, false, err
	}
	if !f.isVisible(selector) {
		return browser.Element{}, false, nil
	}
	return browser.Element{Ref: "ref-" + selector, Selector: selector}, true, nil
}

func (f *fakeSurface) Capture(_ context.Context, el browser.Element) ([]byte, error) {
	if !f.captureOK {
		return nil, errors.New("element detached")
	}
	return []byte(fmt.Sprintf("%s#%d", el.Selector, f.generation)), nil
}

func (f *fakeSurface) Fill(_ context.Context, _ browser.Element, text string) error {
	f.fills = append(f.fills, text)
	return nil
}

func (f *fakeSurface) TypeSlowly(_ context.Context, _ browser.Element, text string, _ time.Duration) error {
	f.typed = text
	return nil
}

func (f *fakeSurface) Click(_ context.Context, el browser.Element) error {
	f.clicks = append(f.clicks, el.Selector)
	if hook := f.onClick[el.Selector]; hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeSurface) PressEnter(context.Context, browser.Element) error {
	f.enters++
	return nil
}

func (f *fakeSurface) OuterHTML(_ context.Context, el browser.Element) (string, error) {
	html, ok := f.html[el.Selector]
	if !ok {
		return "", errors.New("no markup")
	}
	return html, nil
}

func (f *fakeSurface) ReadField(_ context.Context, el browser.Element) (string, error) {
	v, ok := f.fields[el.Selector]
	if !ok {
		return "", errors.New("no value")
	}
	return v, nil
}

func (f *fakeSurface) Snapshot(context.Context) (browser.PageCapture, error) {
	f.snapshots++
	return browser.PageCapture{URL: f.navigated, HTML: "<html></html>"}, nil
}

func (f *fakeSurface) Retrieve(_ context.Context, el browser.Element, _ time.Duration) (browser.Document, error) {
	doc, ok := f.docs[el.Selector]
	if !ok {
		return browser.Document{}, errors.New("no document opened")
	}
	return doc, nil
}

func (f *fakeSurface) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSurface) countClicks(selector string) int {
	n := 0
	for _, c := range f.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// fakeLauncher hands out surfaces built by build
type fakeLauncher struct {
	build func() *fakeSurface
	err   error
	opens int
	last  *fakeSurface
}

func (l *fakeLauncher) Open(context.Context) (Surface, error) {
	l.opens++
	if l.err != nil {
		return nil, l.err
	}
	l.last = l.build()
	return l.last, nil
}

func (l *fakeLauncher) Health() map[string]interface{} {
	return map[string]interface{}{"status": "healthy", "opened": l.opens}
}

// fakeCaptcha answers challenges from a script; the last entry repeats
type fakeCaptcha struct {
	answers []fakeAnswer
	calls   int
}

type fakeAnswer struct {
	text string
	err  error
}

func (c *fakeCaptcha) Solve(_ context.Context, ch models.CaptchaChallenge) (models.SolveResult, error) {
	a := fakeAnswer{text: "AB12CD"}
	if len(c.answers) > 0 {
		a = c.answers[min(c.calls, len(c.answers)-1)]
	}
	c.calls++
	if a.err != nil {
		return models.SolveResult{Attempt: ch.Attempt, Reason: a.err.Error()}, a.err
	}
	return models.SolveResult{Text: a.text, Valid: true, Attempt: ch.Attempt, ServiceAttempts: 1}, nil
}

func (c *fakeCaptcha) Health() map[string]interface{} {
	return map[string]interface{}{"status": "healthy"}
}

// fakeStore keeps artifacts in memory
type fakeStore struct {
	mu        sync.Mutex
	images    []string
	snapshots []string
	documents []string
}

func (s *fakeStore) SaveImage(name string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, name)
	return "captcha/" + name + ".png", nil
}

func (s *fakeStore) SaveSnapshot(name string, pc browser.PageCapture) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, name)
	return &models.Snapshot{URL: pc.URL, HTMLPath: "snapshots/" + name + ".html"}, nil
}

func (s *fakeStore) SaveDocument(rowKey string, doc browser.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, rowKey)
	return "documents/" + rowKey + doc.Extension(), nil
}

// textParser treats documents as plain text
type textParser struct{}

func (textParser) ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty document")
	}
	return string(data), nil
}

// recordingSink remembers what was exported
type recordingSink struct {
	name    string
	columns []string
	records []models.FinalRecord
}

func (s *recordingSink) Write(_ context.Context, name string, columns []string, records []models.FinalRecord) (string, error) {
	s.name, s.columns, s.records = name, columns, records
	return "exports/" + name + ".xlsx", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Captcha: config.CaptchaConfig{
			ExactLength:   6,
			CaseSensitive: true,
			MaxRetries:    3,
			RetryDelay:    5 * time.Second,
			UpscaleFactor: 1,
			JPEGQuality:   90,
		},
		Verification: config.VerificationConfig{
			MaxAttempts:        3,
			PollInterval:       500 * time.Millisecond,
			ClassifyTimeout:    10 * time.Second,
			RefreshTimeout:     5 * time.Second,
			ModalTimeout:       10 * time.Second,
			ModalHideTimeout:   3 * time.Second,
			SecondRoundTimeout: 10 * time.Second,
			RenderDelay:        3 * time.Second,
			FinalCheckTimeout:  10 * time.Second,
			ResolverTimeout:    5 * time.Second,
			ResolverPoll:       250 * time.Millisecond,
			TypingDelay:        100 * time.Millisecond,
		},
		Extraction: config.ExtractionConfig{
			ResultsTimeout:  30 * time.Second,
			DocumentTimeout: 30 * time.Second,
			SettleDelay:     3 * time.Second,
		},
	}
}

func testEntry() *logrus.Entry {
	return logrus.NewEntry(logger.Discard())
}

func expand(selector, identifier string) string {
	return strings.ReplaceAll(selector, "{identifier}", identifier)
}
