package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	statusOK = 1

	notReady = "CAPCHA_NOT_READY"

	errorNoSlotAvailable   = "ERROR_NO_SLOT_AVAILABLE"
	errorCaptchaUnsolvable = "ERROR_CAPTCHA_UNSOLVABLE"
	errorZeroBalance       = "ERROR_ZERO_BALANCE"
	errorWrongUserKey      = "ERROR_WRONG_USER_KEY"
	errorKeyDoesNotExist   = "ERROR_KEY_DOES_NOT_EXIST"
)

var (
	// ErrNotReady is returned by a status check while the worker is still solving
	ErrNotReady = errors.New("captcha not ready")
	// ErrServiceRejected wraps error codes reported by the service
	ErrServiceRejected = errors.New("captcha service rejected request")
	// ErrTimeout is returned when no solution arrives within the solve timeout
	ErrTimeout = errors.New("timeout waiting for captcha solution")
)

// Constraints restricts the text the service may return
type Constraints struct {
	CaseSensitive bool
	ExactLength   int
}

// Options configures a Client
type Options struct {
	APIKey         string
	BaseURL        string
	PollInterval   time.Duration
	SolveTimeout   time.Duration
	HTTPTimeout    time.Duration
	RequestsPerSec float64
	// BalanceTTL bounds how often Health asks the service for the balance
	BalanceTTL time.Duration
}

// Stats counts requests made to the service
type Stats struct {
	TotalRequests   int64     `json:"total_requests"`
	SuccessRequests int64     `json:"success_requests"`
	FailedRequests  int64     `json:"failed_requests"`
	LastRequest     time.Time `json:"last_request"`
}

// apiResponse is the JSON envelope of in.php and res.php
type apiResponse struct {
	Status    int    `json:"status"`
	Request   string `json:"request"`
	ErrorText string `json:"error_text,omitempty"`
}

// Client talks to a 2captcha-compatible image recognition API
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	timeout      time.Duration
	logger       *logrus.Logger

	mu    sync.RWMutex
	stats Stats

	balanceTTL time.Duration
	now        func() time.Time
	balanceMu  sync.Mutex
	balance    balanceReading
}

// balanceReading is the last balance seen by Health
type balanceReading struct {
	value float64
	err   error
	at    time.Time
}

// NewClient creates a new solving service client
func NewClient(opts Options, logger *logrus.Logger) *Client {
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.SolveTimeout <= 0 {
		opts.SolveTimeout = 120 * time.Second
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.BalanceTTL <= 0 {
		opts.BalanceTTL = time.Minute
	}

	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		pollInterval: opts.PollInterval,
		timeout:      opts.SolveTimeout,
		logger:       logger,
		balanceTTL:   opts.BalanceTTL,
		now:          time.Now,
	}
}

// Solve submits image and waits for its text
func (c *Client) Solve(ctx context.Context, image []byte, cons Constraints) (string, error) {
	start := time.Now()

	c.mu.Lock()
	c.stats.TotalRequests++
	c.stats.LastRequest = start
	c.mu.Unlock()

	text, err := c.solve(ctx, image, cons)

	c.mu.Lock()
	if err != nil {
		c.stats.FailedRequests++
	} else {
		c.stats.SuccessRequests++
	}
	c.mu.Unlock()

	if err != nil {
		return "", err
	}

	c.logger.WithField("duration", time.Since(start)).Debug("Captcha solved by service")
	return text, nil
}

func (c *Client) solve(ctx context.Context, image []byte, cons Constraints) (string, error) {
	id, err := c.submit(ctx, image, cons)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	c.logger.WithField("captcha_id", id).Debug("Captcha submitted")

	text, err := c.waitForSolution(ctx, id)
	if err != nil {
		return "", fmt.Errorf("wait %s: %w", id, err)
	}
	return text, nil
}

// submit posts the image to in.php and returns the task id
func (c *Client) submit(ctx context.Context, image []byte, cons Constraints) (string, error) {
	form := url.Values{
		"key":    {c.apiKey},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(image)},
		"json":   {"1"},
	}
	if cons.CaseSensitive {
		form.Set("regsense", "1")
	}
	if cons.ExactLength > 0 {
		n := strconv.Itoa(cons.ExactLength)
		form.Set("min_len", n)
		form.Set("max_len", n)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	if resp.Status != statusOK {
		return "", mapAPIError(resp.Request)
	}
	if resp.Request == "" {
		return "", fmt.Errorf("empty task id in response")
	}
	return resp.Request, nil
}

// waitForSolution polls res.php until the task is solved or the solve timeout elapses
func (c *Client) waitForSolution(ctx context.Context, id string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeoutCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrTimeout
		case <-ticker.C:
			text, err := c.checkSolution(timeoutCtx, id)
			if errors.Is(err, ErrNotReady) {
				continue
			}
			if err != nil {
				return "", err
			}
			return text, nil
		}
	}
}

func (c *Client) checkSolution(ctx context.Context, id string) (string, error) {
	q := url.Values{
		"key":    {c.apiKey},
		"action": {"get"},
		"id":     {id},
		"json":   {"1"},
	}
	resp, err := c.get(ctx, c.limiter, q)
	if err != nil {
		return "", err
	}
	if resp.Status == statusOK {
		return resp.Request, nil
	}
	if resp.Request == notReady {
		return "", ErrNotReady
	}
	return "", mapAPIError(resp.Request)
}

// Balance returns the account balance. It shares the solve rate limit.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	return c.fetchBalance(ctx, c.limiter)
}

func (c *Client) fetchBalance(ctx context.Context, limiter *rate.Limiter) (float64, error) {
	q := url.Values{
		"key":    {c.apiKey},
		"action": {"getbalance"},
		"json":   {"1"},
	}
	resp, err := c.get(ctx, limiter, q)
	if err != nil {
		return 0, err
	}
	if resp.Status != statusOK {
		return 0, mapAPIError(resp.Request)
	}
	balance, err := strconv.ParseFloat(resp.Request, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", resp.Request, err)
	}
	return balance, nil
}

// cachedBalance returns the balance seen within the last BalanceTTL, fetching
// it otherwise. The fetch does not wait on the solve limiter.
func (c *Client) cachedBalance() (float64, error) {
	c.balanceMu.Lock()
	defer c.balanceMu.Unlock()

	if !c.balance.at.IsZero() && c.now().Sub(c.balance.at) < c.balanceTTL {
		return c.balance.value, c.balance.err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, err := c.fetchBalance(ctx, nil)
	c.balance = balanceReading{value: value, err: err, at: c.now()}
	return value, err
}

// get calls res.php, waiting on limiter first when one is given
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, q url.Values) (*apiResponse, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	req.Header.Set("User-Agent", "mca-verify/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response %q: %w", strings.TrimSpace(string(body)), err)
	}
	return &out, nil
}

func mapAPIError(code string) error {
	switch {
	case strings.Contains(code, errorNoSlotAvailable):
		return fmt.Errorf("%w: service temporarily unavailable (%s)", ErrServiceRejected, code)
	case strings.Contains(code, errorCaptchaUnsolvable):
		return fmt.Errorf("%w: captcha unsolvable (%s)", ErrServiceRejected, code)
	case strings.Contains(code, errorZeroBalance):
		return fmt.Errorf("%w: insufficient balance (%s)", ErrServiceRejected, code)
	case strings.Contains(code, errorWrongUserKey), strings.Contains(code, errorKeyDoesNotExist):
		return fmt.Errorf("%w: invalid API key (%s)", ErrServiceRejected, code)
	default:
		return fmt.Errorf("%w: %s", ErrServiceRejected, code)
	}
}

// GetStats returns a copy of the request counters
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Health reports the client's status, including the balance when reachable
func (c *Client) Health() map[string]interface{} {
	stats := c.GetStats()
	health := map[string]interface{}{
		"status": "healthy",
		"stats":  stats,
	}

	balance, err := c.cachedBalance()
	if err != nil {
		health["status"] = "degraded"
		health["error"] = err.Error()
		return health
	}
	health["balance"] = balance
	return health
}
