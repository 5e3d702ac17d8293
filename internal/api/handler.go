package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relaycore/relay/internal/domain"
	"github.com/relaycore/relay/internal/engine"
	"github.com/relaycore/relay/internal/ledger"
	"github.com/relaycore/relay/internal/logindex"
	"github.com/relaycore/relay/internal/replay"
)

type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

func (h *Handler) GetRetryPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respondJSON(w, http.StatusOK, h.engine.RetryPolicy(id))
}

func (h *Handler) SetRetryPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update domain.RetryPolicyUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.engine.SetRetryPolicy(id, update)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to set retry policy", "error", err, "webhook_id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to set retry policy")
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

type recordAttemptRequest struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	AttemptNumber  int             `json:"attempt_number"`
	Outcome        string          `json:"outcome"`
	StatusCode     *int            `json:"status_code,omitempty"`
	ResponseTimeMs *int            `json:"response_time_ms,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Response       string          `json:"response,omitempty"`
}

func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req recordAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventID == "" || req.AttemptNumber < 1 {
		h.respondError(w, http.StatusBadRequest, "event_id and attempt_number >= 1 are required")
		return
	}

	outcome := domain.AttemptOutcome(req.Outcome)
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailed {
		h.respondError(w, http.StatusBadRequest, "outcome must be success or failed")
		return
	}

	attempt := h.engine.RecordAttempt(r.Context(), engine.RecordAttemptInput{
		WebhookID:      id,
		EventID:        req.EventID,
		EventType:      req.EventType,
		AttemptNumber:  req.AttemptNumber,
		Outcome:        outcome,
		StatusCode:     req.StatusCode,
		ResponseTimeMs: req.ResponseTimeMs,
		ErrorMessage:   req.ErrorMessage,
		Payload:        req.Payload,
		Response:       req.Response,
	})

	h.respondJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) GetRetryHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	eventID := r.URL.Query().Get("event_id")
	h.respondJSON(w, http.StatusOK, h.engine.RetryHistory(id, eventID))
}

func (h *Handler) GetPendingRetries(w http.ResponseWriter, r *http.Request) {
	pending := h.engine.PendingRetries()
	if pending == nil {
		pending = []*domain.Attempt{}
	}
	h.respondJSON(w, http.StatusOK, pending)
}

func (h *Handler) GetRetryStats(w http.ResponseWriter, r *http.Request) {
	webhookID := r.URL.Query().Get("webhook_id")
	h.respondJSON(w, http.StatusOK, h.engine.RetryStats(webhookID))
}

func (h *Handler) GetBackoffSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	maxAttempts := 5
	if v := r.URL.Query().Get("attempts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "attempts must be a positive integer")
			return
		}
		maxAttempts = n
	}

	delays := h.engine.BackoffSchedule(id, maxAttempts)
	delaysMs := make([]int64, len(delays))
	for i, d := range delays {
		delaysMs[i] = d.Milliseconds()
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"delays_ms": delaysMs})
}

func (h *Handler) CancelRetries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.engine.CancelRetries(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ExportRetryLogs(w http.ResponseWriter, r *http.Request) {
	webhookID := r.URL.Query().Get("webhook_id")
	format := ledger.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ledger.FormatJSON
	}

	out, err := h.engine.ExportRetryLogs(webhookID, format)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to export retry logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export retry logs")
		return
	}

	switch format {
	case ledger.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

type cleanupRequest struct {
	DaysToKeep int `json:"days_to_keep"`
}

func (h *Handler) CleanupOldAttempts(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DaysToKeep < 0 {
		h.respondError(w, http.StatusBadRequest, "days_to_keep must be >= 0")
		return
	}

	deleted := h.engine.CleanupOldAttempts(req.DaysToKeep)
	h.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type replayRequest struct {
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
}

func (h *Handler) ReplayWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Payload) == 0 {
		h.respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	log := h.engine.ReplayWebhook(r.Context(), id, req.Payload, replay.ReplayRequest{
		Headers:    req.Headers,
		MaxRetries: req.MaxRetries,
	})
	h.respondJSON(w, http.StatusOK, log)
}

type replayEditedRequest struct {
	OriginalPayload json.RawMessage `json:"original_payload"`
	EditedPayload   json.RawMessage `json:"edited_payload"`
}

func (h *Handler) ReplayWithEditedPayload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req replayEditedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	log := h.engine.ReplayWithEditedPayload(r.Context(), id, req.OriginalPayload, req.EditedPayload)
	h.respondJSON(w, http.StatusOK, log)
}

type batchReplayRequest struct {
	WebhookIDs []string `json:"webhook_ids"`
}

func (h *Handler) BatchReplay(w http.ResponseWriter, r *http.Request) {
	var req batchReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.WebhookIDs) == 0 {
		h.respondError(w, http.StatusBadRequest, "webhook_ids is required")
		return
	}

	h.respondJSON(w, http.StatusOK, h.engine.BatchReplay(r.Context(), req.WebhookIDs))
}

func (h *Handler) ValidatePayload(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		payload = nil
	}
	h.respondJSON(w, http.StatusOK, h.engine.ValidatePayload(payload))
}

func (h *Handler) GetReplayLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	log := h.engine.ReplayLog(id)
	if log == nil {
		h.respondError(w, http.StatusNotFound, "replay log not found")
		return
	}
	h.respondJSON(w, http.StatusOK, log)
}

func (h *Handler) GetReplayHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	history := h.engine.ReplayHistory(id, limit)
	if history == nil {
		history = []*domain.ReplayLog{}
	}
	h.respondJSON(w, http.StatusOK, history)
}

func (h *Handler) GetReplayStats(w http.ResponseWriter, r *http.Request) {
	webhookID := r.URL.Query().Get("webhook_id")
	h.respondJSON(w, http.StatusOK, h.engine.ReplayStats(webhookID))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) GetWebhookStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stats := h.engine.WebhookStats(id)
	if stats == nil {
		h.respondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	h.respondJSON(w, http.StatusOK, h.engine.RecentEvents(limit))
}

// filterOptionsFromQuery parses the shared filter parameters. A non-empty
// second return value is the validation error to respond with.
func filterOptionsFromQuery(q url.Values) (logindex.FilterOptions, string) {
	opts := logindex.FilterOptions{
		EventType:   q.Get("event_type"),
		Status:      q.Get("status"),
		WebhookID:   q.Get("webhook_id"),
		SearchQuery: q.Get("search"),
	}

	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, "start_date must be RFC3339"
		}
		opts.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, "end_date must be RFC3339"
		}
		opts.EndDate = &t
	}
	if v := q.Get("min_response_time_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, "min_response_time_ms must be an integer"
		}
		opts.MinResponseTimeMs = &n
	}
	if v := q.Get("max_response_time_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, "max_response_time_ms must be an integer"
		}
		opts.MaxResponseTimeMs = &n
	}
	return opts, ""
}

func (h *Handler) FilterLogs(w http.ResponseWriter, r *http.Request) {
	opts, errMsg := filterOptionsFromQuery(r.URL.Query())
	if errMsg != "" {
		h.respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	logs := h.engine.FilterLogs(opts)
	if logs == nil {
		logs = []domain.LogRecord{}
	}
	h.respondJSON(w, http.StatusOK, logs)
}

func (h *Handler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	opts, errMsg := filterOptionsFromQuery(r.URL.Query())
	if errMsg != "" {
		h.respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	format := logindex.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = logindex.FormatJSON
	}

	out, err := h.engine.ExportLogs(opts, format)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to export logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export logs")
		return
	}

	switch format {
	case logindex.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

func (h *Handler) GetEventTypeStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.EventTypeStats())
}

func (h *Handler) GetStatusStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.engine.StatusStats())
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
