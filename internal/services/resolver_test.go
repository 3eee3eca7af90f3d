package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_PrefersHigherRankedSelector(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	s.show("#primary", "#fallback")
	r := NewResolver(s, clock, 0, "X", testEntry())

	el, ok := r.Locate(context.Background(), browser.Element{}, []string{"#primary", "#fallback"}, time.Second)
	require.True(t, ok)
	assert.Equal(t, "#primary", el.Selector)
}

func TestResolver_FallsBackInRankOrder(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	s.show("#fallback")
	s.findErr["#broken"] = errors.New("invalid selector")
	r := NewResolver(s, clock, 0, "X", testEntry())

	el, ok := r.Visible(context.Background(), browser.Element{}, []string{"#broken", "#primary", "#fallback"})
	require.True(t, ok)
	assert.Equal(t, "#fallback", el.Selector)
	assert.Equal(t, []string{"#broken", "#primary", "#fallback"}, s.lookups)
}

func TestResolver_WaitsForLateElement(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	s.showIn("#late", 2*time.Second)
	r := NewResolver(s, clock, 250*time.Millisecond, "X", testEntry())

	start := clock.Now()
	el, ok := r.Locate(context.Background(), browser.Element{}, []string{"#late"}, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "#late", el.Selector)
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))
}

func TestResolver_TimeoutIsBounded(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	r := NewResolver(s, clock, 300*time.Millisecond, "X", testEntry())

	start := clock.Now()
	_, ok := r.Locate(context.Background(), browser.Element{}, []string{"#never"}, time.Second)
	assert.False(t, ok)
	assert.Equal(t, time.Second, clock.Now().Sub(start))
}

func TestResolver_ZeroTimeoutIsSinglePass(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	r := NewResolver(s, clock, 0, "X", testEntry())

	_, ok := r.Locate(context.Background(), browser.Element{}, []string{"#a", "#b"}, 0)
	assert.False(t, ok)
	assert.Len(t, s.lookups, 2)
	assert.Zero(t, clock.slept)
}

func TestResolver_EmptySelectorList(t *testing.T) {
	clock := newFakeClock()
	r := NewResolver(newFakeSurface(clock), clock, 0, "X", testEntry())

	_, ok := r.Locate(context.Background(), browser.Element{}, nil, time.Minute)
	assert.False(t, ok)
	assert.Zero(t, clock.slept)
}

func TestResolver_ExpandsIdentifier(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	s.show("xpath=//a[normalize-space()='U123']")
	r := NewResolver(s, clock, 0, "U123", testEntry())

	_, ok := r.Locate(context.Background(), browser.Element{}, []string{"xpath=//a[normalize-space()='{identifier}']"}, 0)
	assert.True(t, ok)
}

func TestResolver_WaitHidden(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSurface(clock)
	s.show("#modal")
	r := NewResolver(s, clock, 0, "X", testEntry())

	assert.False(t, r.WaitHidden(context.Background(), browser.Element{}, []string{"#modal"}, time.Second))

	s.hide("#modal")
	assert.True(t, r.WaitHidden(context.Background(), browser.Element{}, []string{"#modal"}, time.Second))
}

func TestResolver_CancelledContext(t *testing.T) {
	clock := newFakeClock()
	r := NewResolver(newFakeSurface(clock), clock, 0, "X", testEntry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := r.Locate(ctx, browser.Element{}, []string{"#never"}, time.Hour)
	assert.False(t, ok)
}
