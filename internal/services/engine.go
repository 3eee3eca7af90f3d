package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/export"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

// EngineDeps are the collaborators of an Engine. Sink and Cache may be nil.
type EngineDeps struct {
	Launcher SurfaceLauncher
	Captcha  CaptchaServiceInterface
	Parser   DocumentParser
	Store    ArtifactStore
	Sink     export.Sink
	Cache    CacheServiceInterface
	Clock    Clock
	Registry *Registry
}

// Engine runs verification-and-extraction queries against the portal
type Engine struct {
	config *config.Config
	deps   EngineDeps
	logger *logrus.Logger

	mu       sync.RWMutex
	runs     int64
	cacheHit int64
	outcomes map[models.SessionStatus]int64
}

// NewEngine creates a new engine
func NewEngine(cfg *config.Config, deps EngineDeps, logger *logrus.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	return &Engine{
		config:   cfg,
		deps:     deps,
		logger:   logger,
		outcomes: make(map[models.SessionStatus]int64),
	}
}

// CacheKey is the cache key of a query result
func CacheKey(target, identifier string) string {
	return fmt.Sprintf("mca:%s:%s", target, identifier)
}

// Targets lists the supported portal targets
func (e *Engine) Targets() []models.TargetInfo {
	var out []models.TargetInfo
	for _, t := range e.deps.Registry.List() {
		out = append(out, t.Info())
	}
	return out
}

// Resolve validates a query's target and identifier and returns its target
func (e *Engine) Resolve(q *models.Query) (*Target, error) {
	t, err := e.deps.Registry.Lookup(q.Target)
	if err != nil {
		return nil, err
	}
	q.Target = t.Name
	q.Identifier = NormalizeIdentifier(q.Identifier)
	if err := t.ValidateIdentifier(q.Identifier); err != nil {
		return nil, err
	}
	return t, nil
}

// Run executes one query. Every UI problem ends up as the result's status;
// an error is returned only for invalid queries or when no browsing session
// can be opened.
func (e *Engine) Run(ctx context.Context, q models.Query) (*models.QueryResult, error) {
	t, err := e.Resolve(&q)
	if err != nil {
		return nil, err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.RequestedAt.IsZero() {
		q.RequestedAt = e.deps.Clock.Now()
	}

	start := e.deps.Clock.Now()
	log := logger.ForQuery(e.logger, q.ID, t.Name, q.Identifier)
	log.Info("Starting query")

	cacheKey := CacheKey(t.Name, q.Identifier)
	if !q.NoCache {
		if cached := e.cached(ctx, cacheKey, log); cached != nil {
			cached.Cached = true
			cached.DurationMs = e.deps.Clock.Now().Sub(start).Milliseconds()
			e.count(cached.Status, true)
			log.WithField("duration", e.deps.Clock.Now().Sub(start)).Info("Query result found in cache")
			return cached, nil
		}
	}

	surface, err := e.deps.Launcher.Open(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to open browsing session")
		return nil, fmt.Errorf("open browsing session: %w", err)
	}
	defer func() {
		if err := surface.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browsing session")
		}
	}()

	r := e.newRun(q, t, surface, log)
	result := r.execute(ctx)
	result.StartedAt = start
	result.FinishedAt = e.deps.Clock.Now()
	result.DurationMs = result.FinishedAt.Sub(start).Milliseconds()

	if r.cacheable {
		e.store(ctx, cacheKey, result, log)
	}
	e.count(result.Status, false)

	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"records":  len(result.Records),
		"retries":  result.Retries,
		"duration": time.Duration(result.DurationMs) * time.Millisecond,
	}).Info("Query completed")
	return result, nil
}

// Invalidate drops the cached result of a query
func (e *Engine) Invalidate(ctx context.Context, target, identifier string) error {
	if e.deps.Cache == nil {
		return nil
	}
	t, err := e.deps.Registry.Lookup(target)
	if err != nil {
		return err
	}
	return e.deps.Cache.Delete(ctx, CacheKey(t.Name, NormalizeIdentifier(identifier)))
}

func (e *Engine) cached(ctx context.Context, key string, log *logrus.Entry) *models.QueryResult {
	if e.deps.Cache == nil {
		return nil
	}
	raw, err := e.deps.Cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var result models.QueryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		log.WithError(err).Warn("Failed to unmarshal cached result")
		return nil
	}
	return &result
}

func (e *Engine) store(ctx context.Context, key string, result *models.QueryResult, log *logrus.Entry) {
	if e.deps.Cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal result for cache")
		return
	}
	if err := e.deps.Cache.Set(ctx, key, string(data)); err != nil {
		log.WithError(err).Warn("Failed to cache result")
	}
}

func (e *Engine) count(status models.SessionStatus, cacheHit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs++
	if cacheHit {
		e.cacheHit++
	}
	e.outcomes[status]++
}

// Health returns engine health status
func (e *Engine) Health() map[string]interface{} {
	e.mu.RLock()
	outcomes := make(map[string]int64, len(e.outcomes))
	for k, v := range e.outcomes {
		outcomes[string(k)] = v
	}
	health := map[string]interface{}{
		"status":     "healthy",
		"runs":       e.runs,
		"cache_hits": e.cacheHit,
		"outcomes":   outcomes,
	}
	e.mu.RUnlock()

	if e.deps.Launcher != nil {
		health["browser"] = e.deps.Launcher.Health()
	}
	if e.deps.Captcha != nil {
		health["captcha"] = e.deps.Captcha.Health()
	}
	return health
}

// run is the state of one query execution on its own browsing session
type run struct {
	engine    *Engine
	query     models.Query
	target    *Target
	surface   Surface
	resolver  *Resolver
	verifier  *Verifier
	extractor *ExtractorService
	log       *logrus.Entry

	// set once records were extracted from a succeeded session
	cacheable bool
}

func (e *Engine) newRun(q models.Query, t *Target, surface Surface, log *logrus.Entry) *run {
	vcfg := e.config.Verification
	resolver := NewResolver(surface, e.deps.Clock, vcfg.ResolverPoll, q.Identifier, log)
	return &run{
		engine:    e,
		query:     q,
		target:    t,
		surface:   surface,
		resolver:  resolver,
		verifier:  NewVerifier(vcfg, surface, resolver, e.deps.Captcha, e.deps.Store, e.deps.Clock, log),
		extractor: NewExtractorService(e.config.Extraction, surface, resolver, e.deps.Parser, e.deps.Store, e.deps.Clock, log),
		log:       log,
	}
}

func (r *run) execute(ctx context.Context) *models.QueryResult {
	q, t := r.query, r.target
	result := &models.QueryResult{
		ID:         q.ID,
		Target:     t.Name,
		Identifier: q.Identifier,
		Status:     models.StatusPending,
		Columns:    t.Columns(),
		Records:    []models.FinalRecord{},
	}

	session := models.NewVerificationSession(q)
	if err := r.submitQuery(ctx); err != nil {
		session.Status = models.StatusFailed
		result.Reason = err.Error()
		r.log.WithError(err).Error("Failed to submit identifier")
	} else {
		r.verify(ctx, session)
	}

	result.Status = session.Status
	result.Rounds = session.Rounds
	result.Retries = session.Retries
	result.Refreshes = session.Refreshes
	if result.Reason == "" && len(session.Rounds) > 0 {
		result.Reason = session.Rounds[len(session.Rounds)-1].Reason
	}

	switch session.Status {
	case models.StatusSucceeded:
		r.extract(ctx, result)
	default:
		result.Snapshot = takeSnapshot(ctx, r.surface, r.engine.deps.Store, q.ID+"_final", r.log)
		if result.Snapshot == nil {
			result.Snapshot = session.LastSnapshot
		}
	}
	return result
}

// submitQuery loads the target page and submits the identifier
func (r *run) submitQuery(ctx context.Context) error {
	vcfg := r.engine.config.Verification
	if err := r.surface.Navigate(ctx, r.target.URL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	input, ok := r.resolver.Locate(ctx, browser.Element{}, r.target.Entry.Input, vcfg.ResolverTimeout)
	if !ok {
		return fmt.Errorf("identifier input not found")
	}
	if err := r.surface.TypeSlowly(ctx, input, r.query.Identifier, vcfg.TypingDelay); err != nil {
		return fmt.Errorf("type identifier: %w", err)
	}

	if submit, ok := r.resolver.Locate(ctx, browser.Element{}, r.target.Entry.Submit, 0); ok {
		if err := r.surface.Click(ctx, submit); err != nil {
			return fmt.Errorf("submit identifier: %w", err)
		}
		return nil
	}
	if err := r.surface.PressEnter(ctx, input); err != nil {
		return fmt.Errorf("submit identifier: %w", err)
	}
	return nil
}

// verify drives the challenge rounds and always leaves the session terminal
func (r *run) verify(ctx context.Context, session *models.VerificationSession) {
	vcfg := r.engine.config.Verification
	first := r.target.FirstRound

	if _, ok := r.resolver.Locate(ctx, browser.Element{}, first.Modal, vcfg.ResolverTimeout); !ok {
		r.log.Info("No challenge appeared, checking round outcome")
		if !r.roundPassed(ctx, first) {
			r.finalCheck(ctx, session)
			return
		}
	} else {
		report := r.verifier.RunRound(ctx, session, 1, first)
		session.Record(report)
		switch report.Outcome {
		case models.StateFailed:
			session.Status = models.StatusFailed
			return
		case models.StateIndeterminate:
			if !r.roundPassed(ctx, first) {
				r.finalCheck(ctx, session)
				return
			}
		}
	}

	if len(r.target.Selection) == 0 {
		session.Status = models.StatusSucceeded
		return
	}

	link, ok := r.resolver.Locate(ctx, browser.Element{}, r.target.Selection, vcfg.ResolverTimeout)
	if !ok {
		r.log.Warn("Selection link not found after first round")
		r.finalCheck(ctx, session)
		return
	}
	if err := r.surface.Click(ctx, link); err != nil {
		r.log.WithError(err).Warn("Failed to click selection link")
	}

	if r.target.SecondRound == nil {
		r.finalCheck(ctx, session)
		return
	}
	second := *r.target.SecondRound

	r.resolver.WaitHidden(ctx, browser.Element{}, first.Modal, vcfg.ModalHideTimeout)
	if _, ok := r.resolver.Locate(ctx, browser.Element{}, second.Modal, vcfg.SecondRoundTimeout); !ok {
		r.log.Info("No second challenge appeared, checking final state")
		r.finalCheck(ctx, session)
		return
	}
	if err := r.engine.deps.Clock.Sleep(ctx, vcfg.RenderDelay); err != nil {
		r.finalCheck(ctx, session)
		return
	}

	report := r.verifier.RunRound(ctx, session, 2, second)
	session.Record(report)
	switch report.Outcome {
	case models.StateFailed:
		session.Status = models.StatusFailed
	case models.StateSucceeded:
		session.Status = models.StatusSucceeded
	default:
		r.finalCheck(ctx, session)
	}
}

// roundPassed looks again for the first round's success indicator when that
// round ended without a verdict. It only applies to targets with a selection
// step, whose results stay hidden until the second round.
func (r *run) roundPassed(ctx context.Context, first ChallengeSpec) bool {
	if len(r.target.Selection) == 0 {
		return false
	}
	selectors := append(append([]string{}, first.Success...), r.target.Selection...)
	if _, ok := r.resolver.Locate(ctx, browser.Element{}, selectors, r.engine.config.Verification.FinalCheckTimeout); ok {
		r.log.Info("First round outcome visible late, continuing to selection")
		return true
	}
	return false
}

// finalCheck resolves an ambiguous session by looking for the results container
func (r *run) finalCheck(ctx context.Context, session *models.VerificationSession) {
	timeout := r.engine.config.Verification.FinalCheckTimeout
	if _, ok := r.resolver.Locate(ctx, browser.Element{}, r.target.Results, timeout); ok {
		r.log.Info("Results visible, session succeeded")
		session.Status = models.StatusSucceeded
		return
	}
	r.log.Warn("Results not visible, session indeterminate")
	session.Status = models.StatusIndeterminate
}

// extract harvests the records and hands them to the export sink
func (r *run) extract(ctx context.Context, result *models.QueryResult) {
	records, err := r.extractor.Extract(ctx, r.target, r.query.Identifier)
	if err != nil {
		r.log.WithError(err).Error("Extraction failed")
		result.Reason = "extraction: " + err.Error()
		result.Snapshot = takeSnapshot(ctx, r.surface, r.engine.deps.Store, r.query.ID+"_extraction", r.log)
		return
	}
	result.Records = records
	r.cacheable = true

	sink := r.engine.deps.Sink
	if sink == nil || len(records) == 0 {
		return
	}
	path, err := sink.Write(ctx, exportName(r.target.Name, r.query.Identifier), result.Columns, records)
	if err != nil {
		r.log.WithError(err).Error("Failed to export records")
		result.Reason = "export: " + err.Error()
		return
	}
	result.ExportPath = path
}

func exportName(target, identifier string) string {
	return fmt.Sprintf("%s_%s", target, identifier)
}
