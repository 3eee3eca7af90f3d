package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	defaultActionTimeout = 15 * time.Second
	startTimeout         = 30 * time.Second
	tabPollInterval      = 250 * time.Millisecond
)

// Launcher opens one browser per query run
type Launcher struct {
	config config.BrowserConfig
	logger *logrus.Logger

	opened int64
	active int64
	failed int64
}

// NewLauncher creates a new launcher
func NewLauncher(cfg config.BrowserConfig, logger *logrus.Logger) *Launcher {
	return &Launcher{
		config: cfg,
		logger: logger,
	}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.WindowSize(l.config.WindowWidth, l.config.WindowHeight),
		chromedp.UserAgent(l.config.UserAgent),
		chromedp.WSURLReadTimeout(startTimeout),
	}

	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}
	if l.config.Headless {
		opts = append(opts, chromedp.Headless)
	}

	return opts
}

// Open starts a browser and returns a session that owns it until Close
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	downloadDir, err := os.MkdirTemp(l.config.DownloadDir, "mca-dl-*")
	if err != nil {
		atomic.AddInt64(&l.failed, 1)
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:          uuid.NewString(),
		ctx:         tabCtx,
		cancel:      func() { tabCancel(); allocCancel() },
		downloadDir: downloadDir,
		navTimeout:  l.config.NavigateTimeout,
		logger:      l.logger,
	}

	// first Run allocates the browser; it must not carry a timeout of its own
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		atomic.AddInt64(&l.failed, 1)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	startCtx, cancel := s.actionCtx(ctx, startTimeout)
	defer cancel()

	err = chromedp.Run(startCtx,
		chromedp.Navigate("about:blank"),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		atomic.AddInt64(&l.failed, 1)
		return nil, fmt.Errorf("browser health check failed: %w", err)
	}

	s.launcher = l
	atomic.AddInt64(&l.opened, 1)
	atomic.AddInt64(&l.active, 1)
	l.logger.WithField("session_id", s.id).Debug("Browser session opened")
	return s, nil
}

// Health returns launcher statistics
func (l *Launcher) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":          "healthy",
		"sessions_opened": atomic.LoadInt64(&l.opened),
		"sessions_active": atomic.LoadInt64(&l.active),
		"launch_failures": atomic.LoadInt64(&l.failed),
		"headless":        l.config.Headless,
	}
}

// Session is one browser tab driven for a single query
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	downloadDir string
	navTimeout  time.Duration
	launcher    *Launcher
	logger      *logrus.Logger
	closeOnce   sync.Once
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// actionCtx derives a context from the tab bounded by both limit and ctx's deadline.
// Cancelling ctx cancels the derived context.
func (s *Session) actionCtx(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < limit {
			limit = rem
		}
	}
	actx, cancel := context.WithTimeout(s.ctx, limit)
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := s.actionCtx(ctx, defaultActionTimeout)
	defer cancel()
	return chromedp.Run(actx, actions...)
}

// Navigate loads url and waits for the document body
func (s *Session) Navigate(ctx context.Context, url string) error {
	actx, cancel := s.actionCtx(ctx, s.navTimeout)
	defer cancel()

	if err := chromedp.Run(actx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// FindVisible resolves selector inside scope. It reports false when nothing visible matches.
func (s *Session) FindVisible(ctx context.Context, scope Element, selector string) (Element, bool, error) {
	ref := uuid.NewString()
	var got string

	script := fmt.Sprintf(findScript, scope.Ref, selector, ref)
	if err := s.run(ctx, chromedp.Evaluate(script, &got)); err != nil {
		return Element{}, false, fmt.Errorf("find %q: %w", selector, err)
	}
	if got == "" {
		return Element{}, false, nil
	}
	return Element{Ref: got, Selector: selector}, true, nil
}

// Capture takes a PNG screenshot of the element
func (s *Session) Capture(ctx context.Context, el Element) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(el.CSS(), &buf, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture %s: %w", el, err)
	}
	return buf, nil
}

// Fill replaces the element's value with text
func (s *Session) Fill(ctx context.Context, el Element, text string) error {
	err := s.run(ctx,
		chromedp.Clear(el.CSS(), chromedp.ByQuery),
		chromedp.SendKeys(el.CSS(), text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", el, err)
	}
	return nil
}

// TypeSlowly types text one character at a time
func (s *Session) TypeSlowly(ctx context.Context, el Element, text string, delay time.Duration) error {
	actions := []chromedp.Action{
		chromedp.Clear(el.CSS(), chromedp.ByQuery),
		chromedp.Focus(el.CSS(), chromedp.ByQuery),
	}
	for _, r := range text {
		actions = append(actions, chromedp.SendKeys(el.CSS(), string(r), chromedp.ByQuery), chromedp.Sleep(delay))
	}

	limit := defaultActionTimeout + time.Duration(len(text))*delay
	actx, cancel := s.actionCtx(ctx, limit)
	defer cancel()

	if err := chromedp.Run(actx, actions...); err != nil {
		return fmt.Errorf("type into %s: %w", el, err)
	}
	return nil
}

// Click clicks the element
func (s *Session) Click(ctx context.Context, el Element) error {
	if err := s.run(ctx, chromedp.Click(el.CSS(), chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", el, err)
	}
	return nil
}

// PressEnter sends the Enter key to the element
func (s *Session) PressEnter(ctx context.Context, el Element) error {
	if err := s.run(ctx, chromedp.SendKeys(el.CSS(), kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press enter on %s: %w", el, err)
	}
	return nil
}

// OuterHTML returns the element markup
func (s *Session) OuterHTML(ctx context.Context, el Element) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML(el.CSS(), &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", el, err)
	}
	return html, nil
}

// ReadField returns the element's value or text
func (s *Session) ReadField(ctx context.Context, el Element) (string, error) {
	var v string
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(readFieldScript, el.Ref), &v)); err != nil {
		return "", fmt.Errorf("read %s: %w", el, err)
	}
	return v, nil
}

// Snapshot captures the current URL, document HTML and a viewport screenshot
func (s *Session) Snapshot(ctx context.Context) (PageCapture, error) {
	var pc PageCapture
	err := s.run(ctx,
		chromedp.Location(&pc.URL),
		chromedp.OuterHTML("html", &pc.HTML, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&pc.Screenshot),
	)
	if err != nil {
		return pc, fmt.Errorf("snapshot: %w", err)
	}
	return pc, nil
}

type downloadMeta struct {
	url  string
	name string
}

// Retrieve clicks a document control and waits for the new tab or download it
// triggers, whichever comes first. A tab opened for the document is closed before
// Retrieve returns.
func (s *Session) Retrieve(ctx context.Context, el Element, timeout time.Duration) (Document, error) {
	rctx, cancel := s.actionCtx(ctx, timeout)
	defer cancel()

	tabs := chromedp.WaitNewTarget(rctx, func(info *target.Info) bool {
		return info.Type == "page"
	})

	var mu sync.Mutex
	begun := make(map[string]downloadMeta)
	completed := make(chan string, 1)

	chromedp.ListenTarget(rctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			mu.Lock()
			begun[e.GUID] = downloadMeta{url: e.URL, name: e.SuggestedFilename}
			mu.Unlock()
		case *cdpbrowser.EventDownloadProgress:
			if e.State == cdpbrowser.DownloadProgressStateCompleted {
				select {
				case completed <- e.GUID:
				default:
				}
			}
		}
	})

	if err := chromedp.Run(rctx, chromedp.Click(el.CSS(), chromedp.ByQuery)); err != nil {
		return Document{}, fmt.Errorf("click document control: %w", err)
	}

	select {
	case id := <-tabs:
		return s.readTab(rctx, id)
	case guid := <-completed:
		mu.Lock()
		meta := begun[guid]
		mu.Unlock()
		return s.readDownload(guid, meta)
	case <-rctx.Done():
		return Document{}, fmt.Errorf("no tab or download within %s: %w", timeout, rctx.Err())
	}
}

func (s *Session) readTab(ctx context.Context, id target.ID) (Document, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	defer cancelTab()
	defer func() {
		closeCtx, cancel := context.WithTimeout(tabCtx, 5*time.Second)
		defer cancel()
		if err := chromedp.Run(closeCtx, page.Close()); err != nil {
			s.logger.WithError(err).Debug("Failed to close document tab")
		}
	}()

	limit := defaultActionTimeout
	if dl, ok := ctx.Deadline(); ok {
		limit = time.Until(dl)
	}
	rctx, cancel := context.WithTimeout(tabCtx, limit)
	defer cancel()

	var url string
	for {
		if err := chromedp.Run(rctx, chromedp.Location(&url)); err != nil {
			return Document{}, fmt.Errorf("document tab location: %w", err)
		}
		if url != "" && url != "about:blank" {
			break
		}
		if err := chromedp.Run(rctx, chromedp.Sleep(tabPollInterval)); err != nil {
			return Document{}, fmt.Errorf("document tab never navigated: %w", err)
		}
	}

	var contentType, encoded string
	err := chromedp.Run(rctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`document.contentType`, &contentType),
		chromedp.Evaluate(fetchSelfScript, &encoded, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return Document{}, fmt.Errorf("read document tab %s: %w", url, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Document{}, fmt.Errorf("decode document tab payload: %w", err)
	}

	return Document{
		Data:        data,
		URL:         url,
		Filename:    filepath.Base(url),
		ContentType: contentType,
		Via:         ViaTab,
	}, nil
}

func (s *Session) readDownload(guid string, meta downloadMeta) (Document, error) {
	path := filepath.Join(s.downloadDir, guid)
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read download %s: %w", meta.name, err)
	}
	if err := os.Remove(path); err != nil {
		s.logger.WithError(err).Debug("Failed to remove downloaded file")
	}

	return Document{
		Data:     data,
		URL:      meta.url,
		Filename: meta.name,
		Via:      ViaDownload,
	}, nil
}

// Close shuts the browser down and removes the session's download directory
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if err := os.RemoveAll(s.downloadDir); err != nil {
			s.logger.WithError(err).Debug("Failed to remove download dir")
		}
		if s.launcher != nil {
			atomic.AddInt64(&s.launcher.active, -1)
		}
	})
	return nil
}
