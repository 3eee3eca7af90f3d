package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `json:"server"`
	Redis        RedisConfig        `json:"redis"`
	Captcha      CaptchaConfig      `json:"captcha"`
	Verification VerificationConfig `json:"verification"`
	Extraction   ExtractionConfig   `json:"extraction"`
	Browser      BrowserConfig      `json:"browser"`
	Storage      StorageConfig      `json:"storage"`
	Export       ExportConfig       `json:"export"`
	Worker       WorkerConfig       `json:"worker"`
	Log          LogConfig          `json:"log"`
	Security     SecurityConfig     `json:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	ResultTTL    time.Duration `json:"result_ttl"`
}

// CaptchaConfig holds the solving service configuration
type CaptchaConfig struct {
	APIKey         string        `json:"-"`
	BaseURL        string        `json:"base_url"`
	ExactLength    int           `json:"exact_length"`
	CaseSensitive  bool          `json:"case_sensitive"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	PollInterval   time.Duration `json:"poll_interval"`
	SolveTimeout   time.Duration `json:"solve_timeout"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	UpscaleFactor  int           `json:"upscale_factor"`
	JPEGQuality    int           `json:"jpeg_quality"`
	HTTPTimeout    time.Duration `json:"http_timeout"`
	BalanceTTL     time.Duration `json:"balance_ttl"`
}

// VerificationConfig holds the challenge state machine bounds
type VerificationConfig struct {
	MaxAttempts        int           `json:"max_attempts"`
	PollInterval       time.Duration `json:"poll_interval"`
	ClassifyTimeout    time.Duration `json:"classify_timeout"`
	RefreshTimeout     time.Duration `json:"refresh_timeout"`
	ModalTimeout       time.Duration `json:"modal_timeout"`
	ModalHideTimeout   time.Duration `json:"modal_hide_timeout"`
	SecondRoundTimeout time.Duration `json:"second_round_timeout"`
	RenderDelay        time.Duration `json:"render_delay"`
	FinalCheckTimeout  time.Duration `json:"final_check_timeout"`
	ResolverTimeout    time.Duration `json:"resolver_timeout"`
	ResolverPoll       time.Duration `json:"resolver_poll"`
	TypingDelay        time.Duration `json:"typing_delay"`
}

// ExtractionConfig holds result extraction configuration
type ExtractionConfig struct {
	ResultsTimeout  time.Duration `json:"results_timeout"`
	DocumentTimeout time.Duration `json:"document_timeout"`
	SettleDelay     time.Duration `json:"settle_delay"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless        bool          `json:"headless"`
	WindowWidth     int           `json:"window_width"`
	WindowHeight    int           `json:"window_height"`
	UserAgent       string        `json:"user_agent"`
	ExecPath        string        `json:"exec_path"`
	NavigateTimeout time.Duration `json:"navigate_timeout"`
	DownloadDir     string        `json:"download_dir"`
}

// StorageConfig holds audit artifact configuration
type StorageConfig struct {
	ArtifactsDir string `json:"artifacts_dir"`
	Enabled      bool   `json:"enabled"`
}

// ExportConfig holds export sink configuration
type ExportConfig struct {
	Dir    string `json:"dir"`
	Format string `json:"format"`
}

// WorkerConfig holds job queue configuration
type WorkerConfig struct {
	Workers    int           `json:"workers"`
	QueueSize  int           `json:"queue_size"`
	JobTimeout time.Duration `json:"job_timeout"`
	JobTTL     time.Duration `json:"job_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

const (
	minResultsTimeout = 20 * time.Second
	maxResultsTimeout = 60 * time.Second
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ResultTTL:    getEnvAsDuration("RESULT_TTL", 24*time.Hour),
		},
		Captcha: CaptchaConfig{
			APIKey:         getEnv("CAPTCHA_API_KEY", ""),
			BaseURL:        getEnv("CAPTCHA_BASE_URL", "https://2captcha.com"),
			ExactLength:    getEnvAsInt("CAPTCHA_LENGTH", 6),
			CaseSensitive:  getEnvAsBool("CAPTCHA_CASE_SENSITIVE", true),
			MaxRetries:     getEnvAsInt("CAPTCHA_MAX_RETRIES", 5),
			RetryDelay:     getEnvAsDuration("CAPTCHA_RETRY_DELAY", 5*time.Second),
			PollInterval:   getEnvAsDuration("CAPTCHA_POLL_INTERVAL", 5*time.Second),
			SolveTimeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 120*time.Second),
			RequestsPerSec: getEnvAsFloat("CAPTCHA_RPS", 2),
			UpscaleFactor:  getEnvAsInt("CAPTCHA_UPSCALE", 1),
			JPEGQuality:    getEnvAsInt("CAPTCHA_JPEG_QUALITY", 90),
			HTTPTimeout:    getEnvAsDuration("CAPTCHA_HTTP_TIMEOUT", 30*time.Second),
			BalanceTTL:     getEnvAsDuration("CAPTCHA_BALANCE_TTL", time.Minute),
		},
		Verification: VerificationConfig{
			MaxAttempts:        getEnvAsInt("VERIFY_MAX_ATTEMPTS", 3),
			PollInterval:       getEnvAsDuration("VERIFY_POLL_INTERVAL", 500*time.Millisecond),
			ClassifyTimeout:    getEnvAsDuration("VERIFY_CLASSIFY_TIMEOUT", 10*time.Second),
			RefreshTimeout:     getEnvAsDuration("VERIFY_REFRESH_TIMEOUT", 5*time.Second),
			ModalTimeout:       getEnvAsDuration("VERIFY_MODAL_TIMEOUT", 10*time.Second),
			ModalHideTimeout:   getEnvAsDuration("VERIFY_MODAL_HIDE_TIMEOUT", 3*time.Second),
			SecondRoundTimeout: getEnvAsDuration("VERIFY_SECOND_ROUND_TIMEOUT", 10*time.Second),
			RenderDelay:        getEnvAsDuration("VERIFY_RENDER_DELAY", 3*time.Second),
			FinalCheckTimeout:  getEnvAsDuration("VERIFY_FINAL_CHECK_TIMEOUT", 10*time.Second),
			ResolverTimeout:    getEnvAsDuration("RESOLVER_TIMEOUT", 5*time.Second),
			ResolverPoll:       getEnvAsDuration("RESOLVER_POLL", 250*time.Millisecond),
			TypingDelay:        getEnvAsDuration("TYPING_DELAY", 100*time.Millisecond),
		},
		Extraction: ExtractionConfig{
			ResultsTimeout:  getEnvAsDuration("RESULTS_TIMEOUT", 30*time.Second),
			DocumentTimeout: getEnvAsDuration("DOCUMENT_TIMEOUT", 30*time.Second),
			SettleDelay:     getEnvAsDuration("RESULTS_SETTLE_DELAY", 3*time.Second),
		},
		Browser: BrowserConfig{
			Headless:        getEnvAsBool("BROWSER_HEADLESS", true),
			WindowWidth:     getEnvAsInt("BROWSER_WIDTH", 1366),
			WindowHeight:    getEnvAsInt("BROWSER_HEIGHT", 768),
			UserAgent:       getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			ExecPath:        getEnv("BROWSER_EXEC_PATH", ""),
			NavigateTimeout: getEnvAsDuration("BROWSER_NAVIGATE_TIMEOUT", 60*time.Second),
			DownloadDir:     getEnv("BROWSER_DOWNLOAD_DIR", os.TempDir()),
		},
		Storage: StorageConfig{
			ArtifactsDir: getEnv("ARTIFACTS_DIR", "artifacts"),
			Enabled:      getEnvAsBool("ARTIFACTS_ENABLED", true),
		},
		Export: ExportConfig{
			Dir:    getEnv("EXPORT_DIR", "exports"),
			Format: getEnv("EXPORT_FORMAT", "xlsx"),
		},
		Worker: WorkerConfig{
			Workers:    getEnvAsInt("WORKERS", 1),
			QueueSize:  getEnvAsInt("WORKER_QUEUE_SIZE", 100),
			JobTimeout: getEnvAsDuration("JOB_TIMEOUT", 15*time.Minute),
			JobTTL:     getEnvAsDuration("JOB_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
				CleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP", time.Minute),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and normalises bounded values
func (c *Config) Validate() error {
	if c.Captcha.APIKey == "" {
		return fmt.Errorf("CAPTCHA_API_KEY is required")
	}
	if c.Captcha.ExactLength < 1 {
		return fmt.Errorf("CAPTCHA_LENGTH must be positive, got %d", c.Captcha.ExactLength)
	}
	if c.Captcha.MaxRetries < 1 {
		return fmt.Errorf("CAPTCHA_MAX_RETRIES must be at least 1, got %d", c.Captcha.MaxRetries)
	}
	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("VERIFY_MAX_ATTEMPTS must be at least 1, got %d", c.Verification.MaxAttempts)
	}
	if c.Worker.Workers < 1 {
		c.Worker.Workers = 1
	}

	switch c.Export.Format {
	case "xlsx", "json", "none":
	default:
		return fmt.Errorf("unsupported EXPORT_FORMAT %q", c.Export.Format)
	}

	// the portal renders results slowly after verification; keep the wait bounded
	if c.Extraction.ResultsTimeout < minResultsTimeout {
		c.Extraction.ResultsTimeout = minResultsTimeout
	}
	if c.Extraction.ResultsTimeout > maxResultsTimeout {
		c.Extraction.ResultsTimeout = maxResultsTimeout
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("500ms", "5s") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
