package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/simulate"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store     domain.AnalysisStore
	repo      domain.Repository
	bus       domain.EventBus
	analyzer  *detect.Analyzer
	simulator *simulate.Simulator
	maxUpload int64
	version   string
}

// NewHandler creates a new API handler. The repository and bus may be
// nil when durable persistence or eventing is disabled.
func NewHandler(store domain.AnalysisStore, repo domain.Repository, bus domain.EventBus, analyzer *detect.Analyzer, simulator *simulate.Simulator, maxUpload int64, version string) *Handler {
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &Handler{
		store:     store,
		repo:      repo,
		bus:       bus,
		analyzer:  analyzer,
		simulator: simulator,
		maxUpload: maxUpload,
		version:   version,
	}
}

// Analyze handles POST /api/analyze requests.
// Accepts a multipart CSV upload and returns the full analysis result.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "multipart file field 'file' is required",
		})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "only CSV files are accepted",
		})
		return
	}

	contents, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read upload: " + err.Error(),
		})
		return
	}

	clean := ingest.Sanitize(decodeText(contents))

	txns, err := ingest.Parse(strings.NewReader(clean))
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, ingest.ErrEmpty):
			writeJSON(w, status, map[string]string{"error": "CSV is empty"})
		case errors.Is(err, ingest.ErrMissingColumns):
			writeJSON(w, status, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, status, map[string]string{"error": "could not parse CSV: " + err.Error()})
		}
		return
	}

	slog.Info("starting analysis",
		"tenant_id", tenantID,
		"filename", header.Filename,
		"transaction_count", len(txns),
	)

	result := h.analyzer.Run(txns)
	result.TenantID = tenantID

	if err := h.store.Put(ctx, tenantID, result); err != nil {
		slog.Error("failed to store analysis", "analysis_id", result.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store analysis",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to persist analysis", "analysis_id", result.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
			slog.Error("failed to publish analysis completion", "analysis_id", result.ID, "error", err)
		}
		for i := range result.FraudRings {
			ringPayload, _ := json.Marshal(&result.FraudRings[i])
			if err := h.bus.Publish(ctx, tenantID, domain.TopicRingDetected, ringPayload); err != nil {
				slog.Error("failed to publish ring detection", "ring_id", result.FraudRings[i].RingID, "error", err)
			}
		}
	}

	slog.Info("analysis complete",
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"rings", len(result.FraudRings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}

// SampleCSV handles GET /api/sample-csv requests.
// Returns a deterministic demo dataset with seeded fraud patterns.
func (h *Handler) SampleCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sample_transactions.csv")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ingest.SampleCSV()))
}

// SimulateRequest is the request body for POST /api/simulate.
// AnalysisID selects the prior analysis; empty or "latest" uses the
// tenant's most recent one.
type SimulateRequest struct {
	domain.SimulationRequest
	AnalysisID string `json:"analysis_id,omitempty"`
}

// Simulate handles POST /api/simulate requests.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.SenderID == "" || req.ReceiverID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "sender_id and receiver_id are required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount ($) must be positive",
		})
		return
	}

	if req.Timestamp == "" {
		req.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	}

	prior, err := h.loadAnalysis(r, tenantID, req.AnalysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNoAnalysis) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "no analysis data available, upload and analyze a CSV first",
			})
			return
		}
		slog.Error("failed to load prior analysis", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load prior analysis",
		})
		return
	}

	result := h.simulator.Run(prior, req.SimulationRequest)

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicSimulationCompleted, payload); err != nil {
			slog.Error("failed to publish simulation completion", "simulation_id", result.SimulationID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAnalysis handles GET /api/analyses/{id} requests.
// The literal id "latest" resolves to the tenant's most recent analysis.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	result, err := h.loadAnalysis(r, tenantID, analysisID)
	if err != nil {
		if errors.Is(err, domain.ErrNoAnalysis) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "analysis not found",
			})
			return
		}
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get analysis",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// loadAnalysis resolves an analysis by ID, preferring the hot store and
// falling back to the repository for evicted entries.
func (h *Handler) loadAnalysis(r *http.Request, tenantID, analysisID string) (*domain.AnalysisResult, error) {
	ctx := r.Context()

	if analysisID == "" || analysisID == "latest" {
		return h.store.Latest(ctx, tenantID)
	}

	result, err := h.store.Get(ctx, tenantID, analysisID)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrNoAnalysis) || h.repo == nil {
		return nil, err
	}

	result, repoErr := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if repoErr != nil {
		return nil, domain.ErrNoAnalysis
	}
	return result, nil
}

// ListAnalyses handles GET /api/analyses requests.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.repo.ListAnalyses(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": records,
		"count":    len(records),
	})
}

// ListAccounts handles GET /api/accounts requests.
// Returns all account IDs from the tenant's latest analysis, sorted,
// for frontend autocomplete.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	latest, err := h.store.Latest(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNoAnalysis) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"accounts": []string{},
			})
			return
		}
		slog.Error("failed to load latest analysis", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load latest analysis",
		})
		return
	}

	accounts := make([]string, 0, len(latest.Graph.Nodes))
	for _, node := range latest.Graph.Nodes {
		accounts = append(accounts, node.ID)
	}
	sort.Strings(accounts)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "kestrel",
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeText interprets uploaded bytes as UTF-8, falling back to
// Latin-1 for Windows-1252 style exports.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
