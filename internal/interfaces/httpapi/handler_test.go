package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/job"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

const testToken = "secret-token"

type fakeScheduler struct {
	result usecase.CycleResult
	err    error
	calls  int
}

func (f *fakeScheduler) RunDailyCycle(context.Context) (usecase.CycleResult, error) {
	f.calls++
	return f.result, f.err
}

type deadLetterCall struct {
	source   string
	body     []byte
	attempts int
	lastErr  error
}

type fakeConsumer struct {
	outcome    usecase.JobOutcome
	err        error
	bodies     [][]byte
	deadLetter []deadLetterCall
	listLimit  int
}

func (f *fakeConsumer) HandlePhaseJob(_ context.Context, body []byte) (usecase.JobOutcome, error) {
	f.bodies = append(f.bodies, body)
	return f.outcome, f.err
}

func (f *fakeConsumer) HandleDeadLetter(_ context.Context, source string, body []byte, attempts int, lastErr error) error {
	f.deadLetter = append(f.deadLetter, deadLetterCall{source: source, body: body, attempts: attempts, lastErr: lastErr})
	return nil
}

func (f *fakeConsumer) ListDeadLetters(_ context.Context, limit int) ([]job.DeadLetter, error) {
	f.listLimit = limit
	return []job.DeadLetter{{ID: "dl-1", Source: "local"}}, nil
}

type fakeFlusher struct{}

func (fakeFlusher) FlushExpired(context.Context) (usecase.FlushResult, error) {
	return usecase.FlushResult{Expired: 2, Sent: 1, Skipped: 1}, nil
}

type fakeHistory struct {
	date string
}

func (f *fakeHistory) DailyOverview(_ context.Context, date string) (usecase.DailyOverview, error) {
	f.date = date
	if date == "bad" {
		return usecase.DailyOverview{}, fmt.Errorf("%w: processing date", usecase.ErrInvalidInput)
	}
	return usecase.DailyOverview{ProcessingDate: date}, nil
}

type routerFixture struct {
	scheduler *fakeScheduler
	consumer  *fakeConsumer
	history   *fakeHistory
	router    http.Handler
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		scheduler: &fakeScheduler{result: usecase.CycleResult{ProcessingDate: "2026-10-17", JobsQueued: 4}},
		consumer:  &fakeConsumer{},
		history:   &fakeHistory{},
	}
	handler := NewHandler(f.scheduler, f.consumer, fakeFlusher{}, f.history, logging.NewNop())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tm_alerts_jobs_total 1\n"))
	})
	f.router = NewRouter(handler, logging.NewNop(), testToken, metrics)
	return f
}

func (f *routerFixture) do(method, target, body string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authorized {
		req.Header.Set(internalJobTokenHeader, testToken)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v body=%s", err, rec.Body.String())
	}
	return body
}

func TestRouter_HealthzAndMetricsAreOpen(t *testing.T) {
	f := newRouterFixture()

	if rec := f.do(http.MethodGet, "/healthz", "", false); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
	rec := f.do(http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tm_alerts_jobs_total") {
		t.Fatalf("unexpected metrics response code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRouter_InternalRoutesRequireToken(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/v1/internal/jobs/daily-cycle", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if f.scheduler.calls != 0 {
		t.Fatalf("scheduler must not run without a token")
	}

	rec = f.do(http.MethodPost, "/v1/internal/jobs/daily-cycle", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	if got, _ := data["jobs_queued"].(float64); got != 4 {
		t.Fatalf("expected jobs_queued=4, got %v", data["jobs_queued"])
	}
}

func TestRouter_PhaseJobForwardsBody(t *testing.T) {
	f := newRouterFixture()
	f.consumer.outcome = usecase.JobOutcome{Phase: usecase.PhaseResult{Status: history.StatusSent, RecordsFound: 3}}

	rec := f.do(http.MethodPost, "/v1/internal/jobs/phase", `{"user_id":"u1"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.consumer.bodies) != 1 || string(f.consumer.bodies[0]) != `{"user_id":"u1"}` {
		t.Fatalf("unexpected forwarded bodies: %q", f.consumer.bodies)
	}
}

func TestRouter_PhaseJobErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		nonRetryable bool
	}{
		{name: "invalid body", err: fmt.Errorf("%w: decode", usecase.ErrInvalidInput), wantStatus: statusNonRetryable, nonRetryable: true},
		{name: "in flight", err: fmt.Errorf("%w: user_id=u1", usecase.ErrPhaseInFlight), wantStatus: http.StatusConflict},
		{name: "storage", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.consumer.err = tt.err

			rec := f.do(http.MethodPost, "/v1/internal/jobs/phase", `{}`, true)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get(headerNonRetryable) == "true"; got != tt.nonRetryable {
				t.Fatalf("non-retryable header=%v want=%v", got, tt.nonRetryable)
			}
		})
	}
}

func TestRouter_PhaseJobRejectsEmptyBody(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/v1/internal/jobs/phase", "", true)
	if rec.Code != statusNonRetryable {
		t.Fatalf("expected %d, got %d", statusNonRetryable, rec.Code)
	}
	if len(f.consumer.bodies) != 0 {
		t.Fatalf("consumer must not see an empty body")
	}
}

func TestRouter_DeadLetterCallback(t *testing.T) {
	f := newRouterFixture()
	source := `{"user_id":"u1","phase":2}`
	payload := fmt.Sprintf(`{"status":500,"body":%q,"retried":3,"maxRetries":3,"sourceMessageId":"msg_1","sourceBody":%q}`,
		base64.StdEncoding.EncodeToString([]byte("boom")),
		base64.StdEncoding.EncodeToString([]byte(source)),
	)

	rec := f.do(http.MethodPost, "/v1/internal/jobs/dead-letter", payload, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.consumer.deadLetter) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(f.consumer.deadLetter))
	}
	got := f.consumer.deadLetter[0]
	if got.source != "qstash" || string(got.body) != source || got.attempts != 4 {
		t.Fatalf("unexpected dead letter call: %+v", got)
	}
	if got.lastErr == nil || !strings.Contains(got.lastErr.Error(), "status=500 body=boom") {
		t.Fatalf("unexpected last error: %v", got.lastErr)
	}
}

func TestRouter_DeadLetterCallbackRejectsMissingSource(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/v1/internal/jobs/dead-letter", `{"status":500}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRouter_HistoryAndDeadLetterReads(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodGet, "/v1/internal/history?date=2026-10-17", "", true)
	if rec.Code != http.StatusOK || f.history.date != "2026-10-17" {
		t.Fatalf("unexpected history response code=%d date=%q", rec.Code, f.history.date)
	}
	if rec := f.do(http.MethodGet, "/v1/internal/history?date=bad", "", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/internal/dead-letters?limit=5", "", true)
	if rec.Code != http.StatusOK || f.consumer.listLimit != 5 {
		t.Fatalf("unexpected dead letter list code=%d limit=%d", rec.Code, f.consumer.listLimit)
	}
	if rec := f.do(http.MethodGet, "/v1/internal/dead-letters?limit=-1", "", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRouter_ComposeFlush(t *testing.T) {
	f := newRouterFixture()

	rec := f.do(http.MethodPost, "/v1/internal/jobs/compose-flush", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	if got, _ := data["expired"].(float64); got != 2 {
		t.Fatalf("expected expired=2, got %v", data["expired"])
	}
}
