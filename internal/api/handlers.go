// Package api exposes the HTTP handlers of the moodsync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/moodsync/internal/actuator"
	"example.com/moodsync/internal/analysis"
	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/persistence"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	maxBodyBytes        = 1 << 20
)

// Readings exposes the generator state.
type Readings interface {
	Current() domain.Reading
	History() []domain.Reading
}

// Runner reports whether the tick loop is active.
type Runner interface {
	Running() bool
}

// Analyzer runs classifications and manual environment updates.
type Analyzer interface {
	Analyze(ctx context.Context, annotation string) (analysis.Result, error)
	AnalyzeReading(ctx context.Context, reading domain.Reading, annotation string) (analysis.Result, error)
	ApplyState(ctx context.Context, in analysis.ManualInput) (domain.ActuationSettings, error)
}

// Environment returns the settings currently in force.
type Environment interface {
	Latest() domain.ActuationSettings
}

// ActuatorStatus lists downstream device sinks.
type ActuatorStatus interface {
	Status() []actuator.SinkStatus
}

// Stats reports subscriber counts per channel.
type Stats interface {
	Stats() map[string]int
}

// Dependencies groups the collaborators of Handler. Journal, Actuators and Runner
// may be nil.
type Dependencies struct {
	Readings    Readings
	Runner      Runner
	Analyzer    Analyzer
	Environment Environment
	Journal     persistence.Journal
	Actuators   ActuatorStatus
	Hub         Stats
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Handler coordinates HTTP requests with the analysis pipeline.
type Handler struct {
	deps Dependencies
}

// NewHandler builds a Handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{deps: deps}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/watch-data", h.watchData)
	mux.HandleFunc("/api/watch-data/history", h.watchHistory)
	mux.HandleFunc("/api/analyze", h.analyze)
	mux.HandleFunc("/api/environment", h.environment)
	mux.HandleFunc("/api/environment/history", h.environmentHistory)
	mux.HandleFunc("/api/hue/status", h.actuatorStatus)
	mux.HandleFunc("/api/status", h.status)
	mux.HandleFunc("/health/watch", h.watchHealth)
	mux.HandleFunc("/health/environment", h.environmentHealth)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) watchData(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Readings.Current())
}

func (h *Handler) watchHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	history := h.deps.Readings.History()
	if history == nil {
		history = []domain.Reading{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Readings: history})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req AnalyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	var (
		result analysis.Result
		err    error
	)
	if req.Reading != nil {
		result, err = h.deps.Analyzer.AnalyzeReading(r.Context(), *req.Reading, req.Text())
	} else {
		result, err = h.deps.Analyzer.Analyze(r.Context(), req.Text())
	}
	if err != nil {
		if errors.Is(err, domain.ErrClassifierUnavailable) {
			h.deps.Logger.Warn("analysis failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, AnalyzeFailure{
				Type:    "classifier_unavailable",
				Detail:  err.Error(),
				Reading: result.Reading,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) environment(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.updateEnvironment(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Environment.Latest())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) updateEnvironment(w http.ResponseWriter, r *http.Request) {
	var req EnvironmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	settings, err := h.deps.Analyzer.ApplyState(r.Context(), analysis.ManualInput{
		State:            req.MentalState,
		Confidence:       req.Confidence,
		Reasoning:        req.Analysis.Reasoning,
		SuggestedActions: req.Analysis.SuggestedActions,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMissingState) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, EnvironmentResponse{Status: "success", Settings: settings})
}

func (h *Handler) environmentHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxHistoryLimit {
				parsed = maxHistoryLimit
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	resp := JournalResponse{Items: []persistence.Entry{}}
	if h.deps.Journal == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	entries, next, err := h.deps.Journal.Recent(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp.Items = append(resp.Items, entries...)
	resp.NextCursor = persistence.EncodeCursor(next)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) actuatorStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	resp := ActuatorStatusResponse{Sinks: []actuator.SinkStatus{}}
	if h.deps.Actuators != nil {
		resp.Sinks = append(resp.Sinks, h.deps.Actuators.Status()...)
	}
	for _, sink := range resp.Sinks {
		if sink.Connected {
			resp.Connected = true
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	latest := h.deps.Readings.Current()
	writeJSON(w, http.StatusOK, StatusResponse{
		Channels:         h.deps.Hub.Stats(),
		GeneratorRunning: h.running(),
		LatestReading:    &latest,
		Timestamp:        h.deps.Clock.Now(),
	})
}

func (h *Handler) watchHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	latest := h.deps.Readings.Current()
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:          "watch-analysis",
		Status:           "healthy",
		GeneratorRunning: h.running(),
		LastData:         &latest,
	})
}

func (h *Handler) environmentHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	settings := h.deps.Environment.Latest()
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:     "environment",
		Status:      "healthy",
		MentalState: settings.State,
	})
}

func (h *Handler) running() bool {
	return h.deps.Runner != nil && h.deps.Runner.Running()
}

// AnalyzeRequest is the payload for POST /api/analyze. userInput is the older name of
// the annotation field. A supplied reading is classified in place of the generator's
// current one.
type AnalyzeRequest struct {
	Annotation string          `json:"annotation"`
	UserInput  string          `json:"userInput"`
	Reading    *domain.Reading `json:"reading,omitempty"`
}

// Text returns the annotation, preferring the current field name.
func (r AnalyzeRequest) Text() string {
	if strings.TrimSpace(r.Annotation) != "" {
		return r.Annotation
	}
	return r.UserInput
}

// AnalyzeFailure is returned with 502 when the classifier could not answer.
type AnalyzeFailure struct {
	Type    string         `json:"type"`
	Detail  string         `json:"detail"`
	Reading domain.Reading `json:"reading"`
}

// EnvironmentRequest is the payload for POST /api/environment.
type EnvironmentRequest struct {
	MentalState string  `json:"mentalState"`
	Confidence  float64 `json:"confidence"`
	Analysis    struct {
		Reasoning        string   `json:"reasoning"`
		SuggestedActions []string `json:"suggestedActions"`
	} `json:"analysis"`
}

// EnvironmentResponse describes the response body for an environment update.
type EnvironmentResponse struct {
	Status   string                   `json:"status"`
	Settings domain.ActuationSettings `json:"settings"`
}

// HistoryResponse lists retained readings oldest first.
type HistoryResponse struct {
	Readings []domain.Reading `json:"readings"`
}

// JournalResponse packages a page of journal entries.
type JournalResponse struct {
	Items      []persistence.Entry `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// ActuatorStatusResponse reports downstream device connectivity.
type ActuatorStatusResponse struct {
	Connected bool                  `json:"connected"`
	Sinks     []actuator.SinkStatus `json:"sinks"`
}

// StatusResponse summarises the broadcast side of the service.
type StatusResponse struct {
	Channels         map[string]int  `json:"channels"`
	GeneratorRunning bool            `json:"generatorRunning"`
	LatestReading    *domain.Reading `json:"latestReading,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// HealthResponse is shared by the per-component health endpoints.
type HealthResponse struct {
	Service          string             `json:"service"`
	Status           string             `json:"status"`
	GeneratorRunning bool               `json:"generatorRunning,omitempty"`
	LastData         *domain.Reading    `json:"lastData,omitempty"`
	MentalState      domain.MentalState `json:"mentalState,omitempty"`
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return false
	}
	return true
}

// decodeBody parses a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
