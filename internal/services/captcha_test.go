package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/nexconsult/mca-verify/internal/captcha"
	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSolver struct {
	answers []fakeAnswer
	calls   int
	images  [][]byte
	cons    captcha.Constraints
	health  map[string]interface{}
}

func (s *scriptedSolver) Solve(_ context.Context, img []byte, cons captcha.Constraints) (string, error) {
	s.images = append(s.images, img)
	s.cons = cons
	a := s.answers[min(s.calls, len(s.answers)-1)]
	s.calls++
	return a.text, a.err
}

func (s *scriptedSolver) Health() map[string]interface{} {
	if s.health == nil {
		return map[string]interface{}{"status": "healthy"}
	}
	return s.health
}

func challengePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 16))
	for x := 0; x < 40; x++ {
		img.Set(x, 8, color.NRGBA{A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestCaptchaService(solver Solver, store ArtifactStore, clock Clock) *CaptchaService {
	return NewCaptchaService(testConfig().Captcha, solver, store, clock, logger.Discard())
}

func testChallenge(t *testing.T) models.CaptchaChallenge {
	return models.CaptchaChallenge{QueryID: "q1", Round: 1, Attempt: 2, Image: challengePNG(t)}
}

func TestCaptchaService_RetriesServiceFailures(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{
		{err: errors.New("ERROR_CAPTCHA_UNSOLVABLE")},
		{err: errors.New("timeout")},
		{text: " Ab12Cd\n"},
	}}
	store := &fakeStore{}
	clock := newFakeClock()

	res, err := newTestCaptchaService(solver, store, clock).Solve(context.Background(), testChallenge(t))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Ab12Cd", res.Text)
	assert.Equal(t, 3, res.ServiceAttempts)
	assert.Equal(t, 2, res.Attempt)
	assert.Equal(t, 10*time.Second, clock.slept)

	assert.True(t, solver.cons.CaseSensitive)
	assert.Equal(t, 6, solver.cons.ExactLength)
	// the service receives the normalised JPEG, not the raw PNG
	assert.Equal(t, []byte{0xFF, 0xD8}, solver.images[0][:2])

	assert.Equal(t, []string{"q1_r1_a2_raw", "q1_r1_a2_solved_Ab12Cd"}, store.images)
}

func TestCaptchaService_RetryBoundExhausted(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{{err: errors.New("ERROR_NO_SLOT_AVAILABLE")}}}

	res, err := newTestCaptchaService(solver, &fakeStore{}, newFakeClock()).Solve(context.Background(), testChallenge(t))
	assert.ErrorIs(t, err, ErrUnsolved)
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.ServiceAttempts)
	assert.Equal(t, 3, solver.calls)
}

func TestCaptchaService_RejectsWrongLength(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{{text: "AB12C"}}}
	store := &fakeStore{}

	res, err := newTestCaptchaService(solver, store, newFakeClock()).Solve(context.Background(), testChallenge(t))
	assert.ErrorIs(t, err, ErrUnsolved)
	assert.ErrorIs(t, err, ErrInvalidSolution)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, solver.calls)
	assert.Equal(t, []string{"q1_r1_a2_raw"}, store.images)
}

func TestCaptchaService_RejectsNonAlphanumeric(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{{text: "AB-12C"}}}

	_, err := newTestCaptchaService(solver, &fakeStore{}, newFakeClock()).Solve(context.Background(), testChallenge(t))
	assert.ErrorIs(t, err, ErrInvalidSolution)
}

func TestCaptchaService_UndecodableImage(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{{text: "AB12CD"}}}
	ch := models.CaptchaChallenge{QueryID: "q1", Round: 1, Attempt: 1, Image: []byte("not an image")}

	_, err := newTestCaptchaService(solver, &fakeStore{}, newFakeClock()).Solve(context.Background(), ch)
	assert.ErrorIs(t, err, ErrUnsolved)
	assert.Zero(t, solver.calls)
}

func TestValidateSolution(t *testing.T) {
	assert.NoError(t, ValidateSolution("aB3dE9", 6))
	assert.NoError(t, ValidateSolution("abc", 0))
	assert.ErrorIs(t, ValidateSolution("", 0), ErrInvalidSolution)
	assert.ErrorIs(t, ValidateSolution("abcdé1", 6), ErrInvalidSolution)
	assert.ErrorIs(t, ValidateSolution("abc de", 6), ErrInvalidSolution)
	assert.ErrorIs(t, ValidateSolution("abcdefg", 6), ErrInvalidSolution)
}

func TestCaptchaService_Health(t *testing.T) {
	solver := &scriptedSolver{answers: []fakeAnswer{{text: "AB12CD"}}}
	svc := newTestCaptchaService(solver, &fakeStore{}, newFakeClock())
	_, err := svc.Solve(context.Background(), testChallenge(t))
	require.NoError(t, err)

	health := svc.Health()
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 1, health["solved"])
	assert.EqualValues(t, 1, health["service_calls"])

	solver.health = map[string]interface{}{"status": "degraded", "error": "ERROR_KEY_DOES_NOT_EXIST"}
	assert.Equal(t, "degraded", svc.Health()["status"])
}
