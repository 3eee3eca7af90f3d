package services

import (
	"context"
	"strings"
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/sirupsen/logrus"
)

// DefaultResolverPoll is the interval between lookups of a ranked selector list
const DefaultResolverPoll = 250 * time.Millisecond

// Resolver finds UI elements from ranked lists of alternative selectors.
// It never fails: an element that does not show up in time is simply not found.
type Resolver struct {
	surface    Surface
	clock      Clock
	poll       time.Duration
	identifier string
	logger     *logrus.Entry
}

// NewResolver creates a resolver bound to one surface and query identifier
func NewResolver(surface Surface, clock Clock, poll time.Duration, identifier string, logger *logrus.Entry) *Resolver {
	if poll <= 0 {
		poll = DefaultResolverPoll
	}
	return &Resolver{
		surface:    surface,
		clock:      clock,
		poll:       poll,
		identifier: identifier,
		logger:     logger,
	}
}

// Expand substitutes {identifier} in a selector
func (r *Resolver) Expand(selector string) string {
	return strings.ReplaceAll(selector, "{identifier}", r.identifier)
}

// Visible tries every selector once, in rank order, and returns the first visible match
func (r *Resolver) Visible(ctx context.Context, scope browser.Element, selectors []string) (browser.Element, bool) {
	for _, sel := range selectors {
		el, ok, err := r.surface.FindVisible(ctx, scope, r.Expand(sel))
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"selector": sel,
				"error":    err.Error(),
			}).Debug("Selector lookup failed")
			continue
		}
		if ok {
			return el, true
		}
	}
	return browser.Element{}, false
}

// Locate polls selectors until one is visible or timeout elapses. A zero
// timeout makes a single pass.
func (r *Resolver) Locate(ctx context.Context, scope browser.Element, selectors []string, timeout time.Duration) (browser.Element, bool) {
	if len(selectors) == 0 {
		return browser.Element{}, false
	}

	deadline := r.clock.Now().Add(timeout)
	for {
		if el, ok := r.Visible(ctx, scope, selectors); ok {
			return el, true
		}
		if !r.wait(ctx, deadline) {
			return browser.Element{}, false
		}
	}
}

// WaitHidden polls until none of selectors is visible. It reports false when
// something is still visible at the deadline.
func (r *Resolver) WaitHidden(ctx context.Context, scope browser.Element, selectors []string, timeout time.Duration) bool {
	deadline := r.clock.Now().Add(timeout)
	for {
		if _, ok := r.Visible(ctx, scope, selectors); !ok {
			return true
		}
		if !r.wait(ctx, deadline) {
			return false
		}
	}
}

// wait sleeps one poll interval, capped at the deadline. It reports false once
// the deadline has passed or ctx is done.
func (r *Resolver) wait(ctx context.Context, deadline time.Time) bool {
	remaining := deadline.Sub(r.clock.Now())
	if remaining <= 0 || ctx.Err() != nil {
		return false
	}
	return r.clock.Sleep(ctx, min(r.poll, remaining)) == nil
}
