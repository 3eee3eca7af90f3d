package services

import (
	"context"
	"fmt"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/imaging"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

// Verifier runs challenge rounds: capture, solve, submit, classify, and
// refresh on rejection, within a fixed attempt budget per round.
type Verifier struct {
	config   config.VerificationConfig
	surface  Surface
	resolver *Resolver
	captcha  CaptchaServiceInterface
	store    ArtifactStore
	clock    Clock
	logger   *logrus.Entry
}

// NewVerifier creates a verifier for one query run
func NewVerifier(cfg config.VerificationConfig, surface Surface, resolver *Resolver, solver CaptchaServiceInterface, store ArtifactStore, clock Clock, logger *logrus.Entry) *Verifier {
	return &Verifier{
		config:   cfg,
		surface:  surface,
		resolver: resolver,
		captcha:  solver,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// attempt outcome used internally before it is folded into the round report
type attemptResult struct {
	state  models.ChallengeState
	reason string
	// solveFailed marks a rejection that happened before anything was submitted
	solveFailed bool
}

// RunRound drives one round to SUCCEEDED, INDETERMINATE or FAILED. The modal
// is re-resolved on every attempt since the portal may replace it in place.
func (v *Verifier) RunRound(ctx context.Context, session *models.VerificationSession, round int, spec ChallengeSpec) models.RoundReport {
	report := models.RoundReport{Round: round}
	log := v.logger.WithField("round", round)

	session.Round = round
	session.Attempt = 0

	maxAttempts := max(v.config.MaxAttempts, 1)
	snapAttempt := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		session.Attempt = attempt
		report.Attempts = attempt

		res := v.attempt(ctx, session, round, attempt, spec)
		alog := log.WithField("attempt", attempt)

		switch res.state {
		case models.StateSucceeded:
			alog.Info("Challenge accepted")
			report.Outcome = models.StateSucceeded
			session.State = models.StateSucceeded
			return report

		case models.StateIndeterminate:
			alog.WithField("reason", res.reason).Warn("Challenge outcome indeterminate")
			report.Outcome = models.StateIndeterminate
			report.Reason = res.reason
			session.State = models.StateIndeterminate
			return report
		}

		session.State = models.StateRejected
		report.Reason = res.reason
		if res.solveFailed {
			report.SolveFailures++
			alog.WithField("reason", res.reason).Warn("Challenge not solved")
		} else {
			alog.WithField("reason", res.reason).Warn("Challenge rejected")
			report.Snapshot = v.snapshot(ctx, fmt.Sprintf("%s_r%d_a%d_rejected", session.QueryID, round, attempt))
			snapAttempt = attempt
		}

		if ctx.Err() != nil {
			report.Reason = ctx.Err().Error()
			break
		}
		if attempt < maxAttempts && v.refresh(ctx, spec) {
			report.Refreshes++
		}
	}

	if snapAttempt != report.Attempts || report.Snapshot == nil {
		report.Snapshot = v.snapshot(ctx, fmt.Sprintf("%s_r%d_failed", session.QueryID, round))
	}
	report.Outcome = models.StateFailed
	report.Reason = fmt.Sprintf("attempt bound exhausted after %d attempts: %s", report.Attempts, report.Reason)
	session.State = models.StateFailed
	log.WithField("attempts", report.Attempts).Error("Challenge round failed")
	return report
}

// attempt performs one capture-solve-submit-classify cycle
func (v *Verifier) attempt(ctx context.Context, session *models.VerificationSession, round, attempt int, spec ChallengeSpec) attemptResult {
	session.State = models.StateAwaitingChallenge

	modal, ok := v.resolver.Locate(ctx, browser.Element{}, spec.Modal, v.config.ModalTimeout)
	if !ok {
		return attemptResult{state: models.StateIndeterminate, reason: "challenge modal not visible"}
	}
	canvas, ok := v.resolver.Locate(ctx, modal, spec.Canvas, v.config.ResolverTimeout)
	if !ok {
		return attemptResult{state: models.StateIndeterminate, reason: "challenge image not found in modal"}
	}

	image, err := v.surface.Capture(ctx, canvas)
	if err != nil {
		return attemptResult{state: models.StateRejected, reason: "capture challenge: " + err.Error(), solveFailed: true}
	}

	session.State = models.StateSolving
	solved, err := v.captcha.Solve(ctx, models.CaptchaChallenge{
		QueryID:    session.QueryID,
		Round:      round,
		Attempt:    attempt,
		Image:      image,
		CapturedAt: v.clock.Now(),
	})
	if err != nil || !solved.Valid {
		reason := solved.Reason
		if err != nil {
			reason = err.Error()
		}
		return attemptResult{state: models.StateRejected, reason: reason, solveFailed: true}
	}

	input, ok := v.resolver.Locate(ctx, modal, spec.Input, v.config.ResolverTimeout)
	if !ok {
		return attemptResult{state: models.StateIndeterminate, reason: "challenge input not found in modal"}
	}
	if err := v.surface.Fill(ctx, input, solved.Text); err != nil {
		return attemptResult{state: models.StateRejected, reason: "fill challenge input: " + err.Error(), solveFailed: true}
	}

	if submit, ok := v.resolver.Locate(ctx, modal, spec.Submit, 0); ok {
		err = v.surface.Click(ctx, submit)
	} else {
		err = v.surface.PressEnter(ctx, input)
	}
	session.State = models.StateSubmitted
	if err != nil {
		// the submission may still have gone through
		v.logger.WithError(err).Warn("Submit action reported an error")
	}

	state := v.classify(ctx, spec)
	switch state {
	case models.StateRejected:
		return attemptResult{state: state, reason: "portal rejected the solution"}
	case models.StateIndeterminate:
		return attemptResult{state: state, reason: "no error or success indicator within the classification window"}
	}
	return attemptResult{state: state}
}

// classify polls the error and success indicators until one shows up or the
// classification window closes
func (v *Verifier) classify(ctx context.Context, spec ChallengeSpec) models.ChallengeState {
	deadline := v.clock.Now().Add(v.config.ClassifyTimeout)
	for {
		if _, ok := v.resolver.Visible(ctx, browser.Element{}, spec.Errors); ok {
			return models.StateRejected
		}
		if _, ok := v.resolver.Visible(ctx, browser.Element{}, spec.Success); ok {
			return models.StateSucceeded
		}

		remaining := deadline.Sub(v.clock.Now())
		if remaining <= 0 || ctx.Err() != nil {
			return models.StateIndeterminate
		}
		if err := v.clock.Sleep(ctx, min(v.config.PollInterval, remaining)); err != nil {
			return models.StateIndeterminate
		}
	}
}

// refresh requests a new challenge image and waits until the image actually
// changed or the refresh window closes. It reports whether a refresh was triggered.
func (v *Verifier) refresh(ctx context.Context, spec ChallengeSpec) bool {
	before := v.fingerprint(ctx, spec)

	modal, _ := v.resolver.Locate(ctx, browser.Element{}, spec.Modal, 0)
	button, ok := v.resolver.Locate(ctx, modal, spec.Refresh, v.config.ResolverTimeout)
	if !ok {
		v.logger.Warn("Challenge refresh control not found")
		return false
	}
	if err := v.surface.Click(ctx, button); err != nil {
		v.logger.WithError(err).Warn("Failed to refresh challenge")
		return false
	}

	deadline := v.clock.Now().Add(v.config.RefreshTimeout)
	for {
		if after := v.fingerprint(ctx, spec); after != "" && after != before {
			return true
		}
		remaining := deadline.Sub(v.clock.Now())
		if remaining <= 0 || ctx.Err() != nil {
			v.logger.Debug("Challenge image unchanged after refresh")
			return true
		}
		if err := v.clock.Sleep(ctx, min(v.config.PollInterval, remaining)); err != nil {
			return true
		}
	}
}

// fingerprint identifies the challenge image currently shown, "" when none is visible
func (v *Verifier) fingerprint(ctx context.Context, spec ChallengeSpec) string {
	modal, ok := v.resolver.Locate(ctx, browser.Element{}, spec.Modal, 0)
	if !ok {
		return ""
	}
	canvas, ok := v.resolver.Locate(ctx, modal, spec.Canvas, 0)
	if !ok {
		return ""
	}
	image, err := v.surface.Capture(ctx, canvas)
	if err != nil {
		return ""
	}
	return imaging.Fingerprint(image)
}

func (v *Verifier) snapshot(ctx context.Context, name string) *models.Snapshot {
	return takeSnapshot(ctx, v.surface, v.store, name, v.logger)
}

// takeSnapshot captures and persists the current UI state; failures only log
func takeSnapshot(ctx context.Context, surface Surface, store ArtifactStore, name string, logger *logrus.Entry) *models.Snapshot {
	pc, err := surface.Snapshot(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to capture snapshot")
		return nil
	}
	snap, err := store.SaveSnapshot(name, pc)
	if err != nil {
		logger.WithError(err).Warn("Failed to save snapshot")
		return nil
	}
	return snap
}
