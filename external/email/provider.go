// Package email delivers digest emails through Brevo, the Gmail API, or a
// logging mock.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	ProviderMock  = "mock"
	ProviderBrevo = "brevo"
	ProviderGmail = "gmail"
)

// Provider sends one HTML email.
type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.EmailConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("email")

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMock:
		return NewMockProvider(logger), nil
	case ProviderBrevo:
		return NewBrevoProvider(BrevoConfig{
			BaseURL:     cfg.BrevoBaseURL,
			APIKey:      cfg.BrevoAPIKey,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
			Attempts:    uint(max(cfg.MaxAttempts, 1)),
			Logger:      logger,
		})
	case ProviderGmail:
		service, err := newGmailService(ctx, cfg.GmailCredentials)
		if err != nil {
			return nil, fmt.Errorf("init gmail service: %w", err)
		}
		return NewGmailProvider(service, uint(max(cfg.MaxAttempts, 1)), logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// newGmailService reads a credentials file when set and falls back to
// application default credentials.
func newGmailService(ctx context.Context, credentialsFile string) (*gmail.Service, error) {
	if strings.TrimSpace(credentialsFile) != "" {
		return gmail.NewService(ctx, option.WithCredentialsFile(credentialsFile), option.WithScopes(gmail.GmailSendScope))
	}
	return gmail.NewService(ctx, option.WithScopes(gmail.GmailSendScope))
}

// sanitizeHeader drops CR, LF and other control characters so a value cannot
// add header lines.
func sanitizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
