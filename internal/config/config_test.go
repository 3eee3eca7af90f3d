package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CAPTCHA_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Captcha.ExactLength)
	assert.True(t, cfg.Captcha.CaseSensitive)
	assert.Equal(t, 5, cfg.Captcha.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Captcha.RetryDelay)
	assert.Equal(t, 3, cfg.Verification.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Verification.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Verification.ClassifyTimeout)
	assert.Equal(t, 30*time.Second, cfg.Extraction.ResultsTimeout)
	assert.Equal(t, 1366, cfg.Browser.WindowWidth)
	assert.Equal(t, 768, cfg.Browser.WindowHeight)
	assert.Equal(t, "xlsx", cfg.Export.Format)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("CAPTCHA_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPTCHA_API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CAPTCHA_API_KEY", "k")
	t.Setenv("VERIFY_MAX_ATTEMPTS", "4")
	t.Setenv("VERIFY_POLL_INTERVAL", "250ms")
	t.Setenv("CAPTCHA_RETRY_DELAY", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Verification.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Verification.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Captcha.RetryDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORS.AllowedOrigins)
}

func TestValidate_ClampsResultsTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"below floor", 5 * time.Second, 20 * time.Second},
		{"inside range", 45 * time.Second, 45 * time.Second},
		{"above ceiling", 5 * time.Minute, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Extraction.ResultsTimeout = tt.in
			require.NoError(t, cfg.Validate())
			assert.Equal(t, tt.want, cfg.Extraction.ResultsTimeout)
		})
	}
}

func TestValidate_RejectsBadBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Verification.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Export.Format = "csv"
	assert.Error(t, cfg.Validate())
}

func validConfig() *Config {
	return &Config{
		Captcha:      CaptchaConfig{APIKey: "k", ExactLength: 6, MaxRetries: 5},
		Verification: VerificationConfig{MaxAttempts: 3},
		Extraction:   ExtractionConfig{ResultsTimeout: 30 * time.Second},
		Export:       ExportConfig{Format: "xlsx"},
		Worker:       WorkerConfig{Workers: 1},
	}
}
