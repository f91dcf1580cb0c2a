package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/codeGROOVE-dev/retry"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
)

const defaultBrevoBaseURL = "https://api.brevo.com/v3"

type BrevoConfig struct {
	HTTPClient  *http.Client
	BaseURL     string
	APIKey      string
	FromAddress string
	FromName    string
	Attempts    uint
	RetryDelay  time.Duration
	Logger      *logging.Logger
}

// BrevoProvider sends emails through the Brevo transactional API.
type BrevoProvider struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	sender     brevoContact
	attempts   uint
	retryDelay time.Duration
	logger     *logging.Logger
}

type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func NewBrevoProvider(cfg BrevoConfig) (*BrevoProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("brevo api key is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("brevo sender address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBrevoBaseURL
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &BrevoProvider{
		client:     client,
		endpoint:   baseURL + "/smtp/email",
		apiKey:     cfg.APIKey,
		sender:     brevoContact{Email: cfg.FromAddress, Name: cfg.FromName},
		attempts:   attempts,
		retryDelay: retryDelay,
		logger:     logger,
	}, nil
}

func (b *BrevoProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := sonic.Marshal(brevoSendRequest{
		Sender:  b.sender,
		To:      []brevoContact{{Email: sanitizeHeader(to)}},
		Subject: sanitizeHeader(subject),
		HTML:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("marshal brevo request: %w", err)
	}

	return retry.Do(
		func() error {
			return b.post(ctx, to, payload)
		},
		retry.Attempts(b.attempts),
		retry.Delay(b.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(b.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("retrying brevo send", "attempt", n, "error", err)
		}),
	)
}

func (b *BrevoProvider) post(ctx context.Context, to string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create brevo request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.apiKey)

	start := time.Now()
	resp, err := b.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		b.logger.WarnContext(ctx, "brevo request failed", "to", to, "duration_ms", duration.Milliseconds(), "error", err)
		return fmt.Errorf("brevo request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("close brevo response body failed", "error", closeErr)
		}
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		b.logger.InfoContext(ctx, "brevo send completed", "to", to, "duration_ms", duration.Milliseconds())
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	statusErr := fmt.Errorf("brevo status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	b.logger.WarnContext(ctx, "brevo returned non-2xx status", "status_code", resp.StatusCode, "to", to)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Unrecoverable(statusErr)
	}
	return statusErr
}
