package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// GmailProvider sends emails as the authenticated account through the Gmail
// API.
type GmailProvider struct {
	service  *gmail.Service
	attempts uint
	logger   *logging.Logger
}

func NewGmailProvider(service *gmail.Service, attempts uint, logger *logging.Logger) *GmailProvider {
	if logger == nil {
		logger = logging.Default()
	}
	if attempts == 0 {
		attempts = 3
	}
	return &GmailProvider{
		service:  service,
		attempts: attempts,
		logger:   logger,
	}
}

// buildRawMessage returns the base64url encoded MIME message Gmail expects.
func buildRawMessage(to, subject, htmlBody string) string {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "To: %s\r\n", sanitizeHeader(to))
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(htmlBody)
	return base64.URLEncoding.EncodeToString([]byte(msg.String()))
}

func (g *GmailProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	raw := buildRawMessage(to, subject, htmlBody)

	return retry.Do(
		func() error {
			start := time.Now()
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
			duration := time.Since(start)
			if err != nil {
				g.logger.WarnContext(ctx, "gmail send failed",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err,
				)
				var apiErr *googleapi.Error
				if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}

			g.logger.InfoContext(ctx, "gmail send completed",
				"to", to,
				"duration_ms", duration.Milliseconds(),
			)
			return nil
		},
		retry.Attempts(g.attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("retrying gmail send", "attempt", n, "error", err)
		}),
	)
}
