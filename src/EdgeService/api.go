package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/untruncd/untruncd/src/internal/config"
	"github.com/untruncd/untruncd/src/internal/domain"
	xlog "github.com/untruncd/untruncd/src/internal/log"
	"github.com/untruncd/untruncd/src/internal/ports"
	"github.com/untruncd/untruncd/src/internal/services"
)

type api struct {
	cfg     *config.EdgeConfig
	scanner *services.DirectoryScanner
	history ports.HistoryRepository
}

func newAPI(cfg *config.EdgeConfig, scanner *services.DirectoryScanner, history ports.HistoryRepository) *api {
	return &api{cfg: cfg, scanner: scanner, history: history}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Post("/scan-now", a.handleScanNow)
	r.Post("/repair", a.handleRepair)
	r.Get("/stats", a.handleStats)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type healthResponse struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	ReadyPath           string `json:"ready_path"`
	ExportPath          string `json:"export_path"`
	QuarantinePath      string `json:"quarantine_path"`
	ScanIntervalSeconds int    `json:"scan_interval_seconds"`
	ReferenceStrategy   string `json:"reference_strategy"`
	AWSFallbackEnabled  bool   `json:"aws_fallback_enabled"`
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		Service:             a.cfg.ServiceName,
		ReadyPath:           a.cfg.ReadyPath(),
		ExportPath:          a.cfg.ExportPath(),
		QuarantinePath:      a.cfg.QuarantinePath(),
		ScanIntervalSeconds: a.cfg.ScanIntervalSeconds,
		ReferenceStrategy:   a.cfg.ReferenceStrategy,
		AWSFallbackEnabled:  a.cfg.FallbackBaseURL != "",
	})
}

type scanResponse struct {
	Status    string `json:"status"`
	Scanned   int    `json:"scanned"`
	Repaired  int    `json:"repaired"`
	Failed    int    `json:"failed"`
	Reference string `json:"reference,omitempty"`
}

func (a *api) handleScanNow(w http.ResponseWriter, r *http.Request) {
	logger := xlog.WithComponent("api")
	logger.Info().Msg("manual scan triggered")

	report, err := a.scanner.ScanOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Scan failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Status:    "completed",
		Scanned:   report.Scanned,
		Repaired:  report.Repaired,
		Failed:    report.Failed,
		Reference: report.Reference,
	})
}

type repairRequest struct {
	RelativePath  string `json:"relative_path"`
	ReferencePath string `json:"reference_path,omitempty"`
	// nil means true: the original service invoked the fallback by default.
	InvokeAWSOnFailure *bool `json:"invoke_aws_on_failure,omitempty"`
}

func (a *api) handleRepair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RelativePath == "" {
		writeError(w, http.StatusBadRequest, "relative_path is required")
		return
	}

	invokeFallback := req.InvokeAWSOnFailure == nil || *req.InvokeAWSOnFailure

	result, err := a.scanner.RepairOne(r.Context(), req.RelativePath, req.ReferencePath, invokeFallback)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "File not found: "+req.RelativePath)
		case errors.Is(err, services.ErrNoReference):
			writeError(w, http.StatusBadRequest, "No reference file available. Upload a working video or specify reference_path.")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	services.ScannerStats
	Recent []domain.RepairRecord `json:"recent,omitempty"`
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{ScannerStats: a.scanner.Stats()}
	if recent, err := a.history.ListRecent(r.Context(), 20); err == nil {
		resp.Recent = recent
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
