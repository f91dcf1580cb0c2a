package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

const deadLetterSourceQStash = "qstash"

// qstashFailureCallback is the body QStash posts once it gives up on a
// message. Bodies are base64 encoded.
type qstashFailureCallback struct {
	Status          int    `json:"status"`
	Body            string `json:"body"`
	Retried         int    `json:"retried"`
	MaxRetries      int    `json:"maxRetries"`
	SourceMessageID string `json:"sourceMessageId"`
	URL             string `json:"url"`
	SourceBody      string `json:"sourceBody"`
}

func (h *Handler) RunDailyCycle(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunDailyCycle")
	defer span.End()

	if h.scheduler == nil {
		writeError(ctx, w, fmt.Errorf("%w: scheduler is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	result, err := h.scheduler.RunDailyCycle(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "run daily cycle failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) RunPhaseJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunPhaseJob")
	defer span.End()

	if h.consumer == nil {
		writeError(ctx, w, fmt.Errorf("%w: job consumer is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	body, err := readJobBody(r)
	if err != nil {
		writeJobError(ctx, w, err)
		return
	}

	outcome, err := h.consumer.HandlePhaseJob(ctx, body)
	if err != nil {
		h.logger.WarnContext(ctx, "phase job failed",
			"retry_count", r.Header.Get("Upstash-Retried"),
			"permanent", usecase.IsPermanent(err),
			"error", err,
		)
		writeJobError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, outcome)
}

func (h *Handler) RunComposeFlush(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunComposeFlush")
	defer span.End()

	if h.composer == nil {
		writeError(ctx, w, fmt.Errorf("%w: composer is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	result, err := h.composer.FlushExpired(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "compose flush failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) ReceiveDeadLetter(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ReceiveDeadLetter")
	defer span.End()

	if h.consumer == nil {
		writeError(ctx, w, fmt.Errorf("%w: job consumer is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	callback, err := decodeFailureCallback(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	source, err := base64.StdEncoding.DecodeString(callback.SourceBody)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: sourceBody is not base64: %v", usecase.ErrInvalidInput, err))
		return
	}

	lastErr := fmt.Errorf("delivery failed status=%d", callback.Status)
	if response, decodeErr := base64.StdEncoding.DecodeString(callback.Body); decodeErr == nil && len(response) > 0 {
		lastErr = fmt.Errorf("delivery failed status=%d body=%s", callback.Status, truncate(string(response), 512))
	}

	if err := h.consumer.HandleDeadLetter(ctx, deadLetterSourceQStash, source, callback.Retried+1, lastErr); err != nil {
		h.logger.ErrorContext(ctx, "store dead letter failed", "message_id", callback.SourceMessageID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusAccepted, map[string]string{"status": "archived"})
}

func (h *Handler) GetDailyHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetDailyHistory")
	defer span.End()

	if h.history == nil {
		writeError(ctx, w, fmt.Errorf("%w: history is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = history.DateOf(time.Now())
	}

	overview, err := h.history.DailyOverview(ctx, date)
	if err != nil {
		h.logger.WarnContext(ctx, "get daily history failed", "processing_date", date, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, overview)
}

func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListDeadLetters")
	defer span.End()

	if h.consumer == nil {
		writeError(ctx, w, fmt.Errorf("%w: job consumer is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(ctx, w, fmt.Errorf("%w: limit must be a positive integer", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	items, err := h.consumer.ListDeadLetters(ctx, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "list dead letters failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, items)
}

func readJobBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJobBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read job body: %w", err)
	}
	if len(body) > maxJobBodyBytes {
		return nil, fmt.Errorf("%w: job body exceeds %d bytes", usecase.ErrInvalidInput, maxJobBodyBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty job body", usecase.ErrInvalidInput)
	}
	return body, nil
}

func decodeFailureCallback(r *http.Request) (qstashFailureCallback, error) {
	decoder := jsoniter.NewDecoder(io.LimitReader(r.Body, 4*maxJobBodyBytes))

	var callback qstashFailureCallback
	if err := decoder.Decode(&callback); err != nil {
		if errors.Is(err, io.EOF) {
			return qstashFailureCallback{}, fmt.Errorf("%w: empty callback payload", usecase.ErrInvalidInput)
		}
		return qstashFailureCallback{}, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	if strings.TrimSpace(callback.SourceBody) == "" {
		return qstashFailureCallback{}, fmt.Errorf("%w: sourceBody is required", usecase.ErrInvalidInput)
	}
	return callback, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
