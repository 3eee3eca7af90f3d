package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nexconsult/mca-verify/internal/captcha"
	"github.com/nexconsult/mca-verify/internal/config"
	"github.com/nexconsult/mca-verify/internal/imaging"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsolved is returned when the solving service gave no answer within the retry budget
	ErrUnsolved = errors.New("captcha unsolved")
	// ErrInvalidSolution is returned when the answer violates the length or charset constraints
	ErrInvalidSolution = errors.New("captcha solution invalid")
)

// CaptchaService turns a captured challenge into validated text
type CaptchaService struct {
	config config.CaptchaConfig
	solver Solver
	store  ArtifactStore
	clock  Clock
	logger *logrus.Logger

	mu       sync.RWMutex
	solved   int64
	unsolved int64
	invalid  int64
	calls    int64
}

// NewCaptchaService creates a new captcha service
func NewCaptchaService(cfg config.CaptchaConfig, solver Solver, store ArtifactStore, clock Clock, logger *logrus.Logger) *CaptchaService {
	return &CaptchaService{
		config: cfg,
		solver: solver,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// ChallengeName is the artifact base name of a challenge
func ChallengeName(ch models.CaptchaChallenge) string {
	return fmt.Sprintf("%s_r%d_a%d", ch.QueryID, ch.Round, ch.Attempt)
}

// Solve normalises the challenge image, asks the solver with bounded retries
// and validates the answer. Every returned error wraps ErrUnsolved; invalid
// answers also wrap ErrInvalidSolution.
func (s *CaptchaService) Solve(ctx context.Context, ch models.CaptchaChallenge) (models.SolveResult, error) {
	result := models.SolveResult{Attempt: ch.Attempt}
	name := ChallengeName(ch)
	log := s.logger.WithFields(logrus.Fields{
		"query_id": ch.QueryID,
		"round":    ch.Round,
		"attempt":  ch.Attempt,
	})

	if _, err := s.store.SaveImage(name+"_raw", ch.Image); err != nil {
		log.WithError(err).Warn("Failed to save raw challenge image")
	}

	img, err := imaging.Normalize(ch.Image, imaging.Options{
		Quality: s.config.JPEGQuality,
		Upscale: float64(s.config.UpscaleFactor),
	})
	if err != nil {
		s.count(&s.unsolved)
		result.Reason = err.Error()
		return result, fmt.Errorf("%w: %v", ErrUnsolved, err)
	}

	cons := captcha.Constraints{
		CaseSensitive: s.config.CaseSensitive,
		ExactLength:   s.config.ExactLength,
	}

	maxRetries := max(s.config.MaxRetries, 1)
	var text string
	for i := 1; i <= maxRetries; i++ {
		result.ServiceAttempts = i
		s.count(&s.calls)

		text, err = s.solver.Solve(ctx, img, cons)
		if err == nil {
			break
		}

		log.WithFields(logrus.Fields{
			"service_attempt": i,
			"error":           err.Error(),
		}).Warn("Solving service call failed")

		if i == maxRetries || ctx.Err() != nil {
			break
		}
		if sleepErr := s.clock.Sleep(ctx, s.config.RetryDelay); sleepErr != nil {
			break
		}
	}
	if err != nil {
		s.count(&s.unsolved)
		result.Reason = err.Error()
		return result, fmt.Errorf("%w after %d service attempts: %v", ErrUnsolved, result.ServiceAttempts, err)
	}

	text = strings.TrimSpace(text)
	result.Text = text
	if err := ValidateSolution(text, s.config.ExactLength); err != nil {
		s.count(&s.invalid)
		result.Reason = err.Error()
		log.WithField("text", text).Warn("Discarding invalid captcha solution")
		return result, fmt.Errorf("%w: %w", ErrUnsolved, err)
	}

	result.Valid = true
	s.count(&s.solved)
	if _, err := s.store.SaveImage(name+"_solved_"+text, ch.Image); err != nil {
		log.WithError(err).Warn("Failed to save solved challenge image")
	}

	log.WithField("service_attempts", result.ServiceAttempts).Info("Captcha solved")
	return result, nil
}

// ValidateSolution checks that text has exactly length ASCII letters or digits
func ValidateSolution(text string, length int) error {
	if n := len([]rune(text)); length > 0 && n != length {
		return fmt.Errorf("%w: got %d characters, want %d", ErrInvalidSolution, n, length)
	}
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidSolution)
	}
	for _, r := range text {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidSolution, r)
		}
	}
	return nil
}

func (s *CaptchaService) count(n *int64) {
	s.mu.Lock()
	*n++
	s.mu.Unlock()
}

// Health returns captcha service health status
func (s *CaptchaService) Health() map[string]interface{} {
	s.mu.RLock()
	health := map[string]interface{}{
		"status":        "healthy",
		"solved":        s.solved,
		"unsolved":      s.unsolved,
		"invalid":       s.invalid,
		"service_calls": s.calls,
	}
	s.mu.RUnlock()

	if h, ok := s.solver.(interface{ Health() map[string]interface{} }); ok {
		service := h.Health()
		health["service"] = service
		if service["status"] != "healthy" {
			health["status"] = "degraded"
		}
	}
	return health
}
