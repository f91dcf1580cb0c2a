package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metricsHandler http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/daily-cycle", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunDailyCycle)))
	mux.Handle("POST /v1/internal/jobs/phase", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunPhaseJob)))
	mux.Handle("POST /v1/internal/jobs/compose-flush", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunComposeFlush)))
	// QStash failure callback.
	mux.Handle("POST /v1/internal/jobs/dead-letter", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.ReceiveDeadLetter)))
}

func registerInternalReadRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("GET /v1/internal/history", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.GetDailyHistory)))
	mux.Handle("GET /v1/internal/dead-letters", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.ListDeadLetters)))
}
