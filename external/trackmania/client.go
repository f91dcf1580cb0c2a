package trackmania

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/tm-alerts/internal/platform/cache"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/platform/resilience"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

const (
	defaultLiveBaseURL  = "https://live-services.trackmania.nadeo.live/api"
	defaultCoreBaseURL  = "https://prod.trackmania.core.nadeo.online"
	defaultNamesBaseURL = "https://api.trackmania.com"
	defaultGroupUID     = "Personal_Best"

	defaultPageSize      = 100
	defaultMaxPages      = 100
	defaultNameChunkSize = 50

	endpointLeaderboardTop = "leaderboard_top"
	endpointDisplayNames   = "display_names"
)

var errLeaderboardTransient = crerr.New("leaderboard api transient failure")

// Recorder receives request and cache outcomes. *metrics.Recorder satisfies it.
type Recorder interface {
	LeaderboardRequest(endpoint, outcome string)
	CacheLookup(hit bool)
}

type ClientConfig struct {
	HTTPClient        *http.Client
	LiveBaseURL       string
	CoreBaseURL       string
	NamesBaseURL      string
	Login             string
	Password          string
	Audience          string
	UserAgent         string
	OAuthClientID     string
	OAuthClientSecret string
	GroupUID          string
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestInterval   time.Duration
	PageSize          int
	MaxPages          int
	NameChunkSize     int
	Cache             *cache.Store
	CircuitBreaker    resilience.CircuitBreakerConfig
	Logger            *logging.Logger
	Metrics           Recorder

	// Overrides for tests.
	LeaderboardAuth Authenticator
	NamingAuth      Authenticator
}

// Client reads leaderboards and display names. All API calls of one Client
// share a single request spacer.
type Client struct {
	httpClient    *http.Client
	liveBaseURL   string
	namesBaseURL  string
	groupUID      string
	userAgent     string
	maxRetries    int
	retryBackoff  time.Duration
	pageSize      int
	maxPages      int
	nameChunkSize int

	liveAuth   Authenticator
	namingAuth Authenticator
	liveTokens *TokenStore
	nameTokens *TokenStore

	spacer  *resilience.RequestSpacer
	breaker *resilience.CircuitBreaker
	cache   *cache.Store
	logger  *logging.Logger
	metrics Recorder
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("trackmania")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	liveAuth := cfg.LeaderboardAuth
	if liveAuth == nil {
		liveAuth = &NadeoAuth{
			HTTPClient:   httpClient,
			BaseURL:      firstNonEmpty(cfg.CoreBaseURL, defaultCoreBaseURL),
			AccountLogin: cfg.Login,
			Password:     cfg.Password,
			Audience:     firstNonEmpty(cfg.Audience, "NadeoLiveServices"),
			UserAgent:    cfg.UserAgent,
		}
	}
	namingAuth := cfg.NamingAuth
	if namingAuth == nil {
		namingAuth = &OAuthClientCredentials{
			HTTPClient:   httpClient,
			BaseURL:      firstNonEmpty(cfg.NamesBaseURL, defaultNamesBaseURL),
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
		}
	}

	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}

	return &Client{
		httpClient:    httpClient,
		liveBaseURL:   strings.TrimRight(firstNonEmpty(cfg.LiveBaseURL, defaultLiveBaseURL), "/"),
		namesBaseURL:  strings.TrimRight(firstNonEmpty(cfg.NamesBaseURL, defaultNamesBaseURL), "/"),
		groupUID:      firstNonEmpty(cfg.GroupUID, defaultGroupUID),
		userAgent:     strings.TrimSpace(cfg.UserAgent),
		maxRetries:    max(cfg.MaxRetries, 0),
		retryBackoff:  retryBackoff,
		pageSize:      positiveOr(cfg.PageSize, defaultPageSize),
		maxPages:      positiveOr(cfg.MaxPages, defaultMaxPages),
		nameChunkSize: positiveOr(cfg.NameChunkSize, defaultNameChunkSize),
		liveAuth:      liveAuth,
		namingAuth:    namingAuth,
		liveTokens:    NewTokenStore("leaderboard", liveAuth, logger),
		nameTokens:    NewTokenStore("account_naming", namingAuth, logger),
		spacer:        resilience.NewRequestSpacer(cfg.RequestInterval),
		breaker:       resilience.NewCircuitBreakerFromConfig("trackmania", cfg.CircuitBreaker),
		cache:         cfg.Cache,
		logger:        logger,
		metrics:       cfg.Metrics,
	}
}

// Breaker exposes the circuit breaker so callers can observe transitions.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// doAuthorized sends a GET to fullURL with the token of the given domain.
// A 401 triggers a refresh and retry, a second 401 a full login and retry,
// and a third one fails with usecase.ErrUnauthorized.
func (c *Client) doAuthorized(ctx context.Context, endpoint string, tokens *TokenStore, auth Authenticator, fullURL string) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		c.record(endpoint, "circuit_open")
		c.logger.WarnContext(ctx, "trackmania circuit breaker rejected request", "endpoint", endpoint, "state", c.breaker.State())
		return nil, fmt.Errorf("%w: leaderboard api is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	token, err := tokens.Current(ctx)
	if err != nil {
		c.breaker.RecordSuccess()
		c.record(endpoint, "unauthorized")
		return nil, fmt.Errorf("%w: %s", usecase.ErrUnauthorized, sanitizeSensitiveText(err.Error()))
	}

	for authAttempt := 0; ; authAttempt++ {
		raw, status, reqErr := c.executeRequest(ctx, endpoint, fullURL, func(req *http.Request) {
			auth.Authorize(req, token.Access)
		})
		if status != http.StatusUnauthorized {
			if reqErr != nil && isTransient(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
			return raw, reqErr
		}

		c.logger.WarnContext(ctx, "leaderboard api rejected token", "endpoint", endpoint, "auth_attempt", authAttempt+1)
		switch authAttempt {
		case 0:
			token, err = tokens.Renew(ctx, token, false)
		case 1:
			token, err = tokens.Renew(ctx, token, true)
		default:
			c.breaker.RecordSuccess()
			c.record(endpoint, "unauthorized")
			return nil, fmt.Errorf("%w: %s rejected credentials after re-login", usecase.ErrUnauthorized, endpoint)
		}
		if err != nil {
			c.breaker.RecordSuccess()
			c.record(endpoint, "unauthorized")
			return nil, fmt.Errorf("%w: %s", usecase.ErrUnauthorized, sanitizeSensitiveText(err.Error()))
		}
	}
}

// executeRequest spaces and retries one GET. It returns the final HTTP status
// so the caller can react to 401 itself.
func (c *Client) executeRequest(ctx context.Context, endpoint, fullURL string, authorize func(*http.Request)) ([]byte, int, error) {
	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.spacer.Wait(ctx); err != nil {
			return nil, 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: build request: %v", usecase.ErrInvalidInput, err)
		}
		req.Header.Set("accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("user-agent", c.userAgent)
		}
		authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastStatus = 0
			lastErr = fmt.Errorf("%w: %w: send request: %s", usecase.ErrDependencyUnavailable, errLeaderboardTransient, sanitizeSensitiveText(err.Error()))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
			_ = resp.Body.Close()
			lastStatus = resp.StatusCode
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: %w: read response body: %v", usecase.ErrDependencyUnavailable, errLeaderboardTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				c.record(endpoint, "ok")
				return raw, resp.StatusCode, nil
			case resp.StatusCode == http.StatusUnauthorized:
				return nil, resp.StatusCode, fmt.Errorf("%w: provider status=401", usecase.ErrUnauthorized)
			case resp.StatusCode == http.StatusTooManyRequests:
				c.record(endpoint, "rate_limited")
				lastErr = fmt.Errorf("%w: %w: provider status=429 body=%s", usecase.ErrRateLimited, errLeaderboardTransient, abbreviateBody(raw))
			case resp.StatusCode >= http.StatusInternalServerError:
				c.record(endpoint, "transient")
				lastErr = fmt.Errorf("%w: %w: provider status=%d body=%s", usecase.ErrDependencyUnavailable, errLeaderboardTransient, resp.StatusCode, abbreviateBody(raw))
			case resp.StatusCode == http.StatusNotFound:
				c.record(endpoint, "not_found")
				return nil, resp.StatusCode, fmt.Errorf("%w: provider status=404 url=%s", usecase.ErrNotFound, redactURL(fullURL))
			default:
				c.record(endpoint, "client_error")
				return nil, resp.StatusCode, fmt.Errorf("%w: provider status=%d body=%s", usecase.ErrInvalidInput, resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * c.retryBackoff
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, 0, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: leaderboard request failed", usecase.ErrDependencyUnavailable)
	}
	c.logger.WarnContext(ctx, "leaderboard request failed", "endpoint", endpoint, "url", redactURL(fullURL), "error", lastErr)
	return nil, lastStatus, lastErr
}

func (c *Client) record(endpoint, outcome string) {
	if c.metrics != nil {
		c.metrics.LeaderboardRequest(endpoint, outcome)
	}
}

func isTransient(err error) bool {
	return err != nil && stderrors.Is(err, errLeaderboardTransient)
}

var sensitiveTokenPattern = regexp.MustCompile(`(nadeo_v1 t=|Bearer |client_secret=|accessToken":"|refreshToken":")[^\s"'&,]+`)

// sanitizeSensitiveText strips bearer and nadeo tokens from error text.
func sanitizeSensitiveText(value string) string {
	return sensitiveTokenPattern.ReplaceAllString(strings.TrimSpace(value), "${1}REDACTED")
}

func redactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.User = nil
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
