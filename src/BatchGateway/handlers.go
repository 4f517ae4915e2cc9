package main

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/untruncd/untruncd/src/internal/config"
	"github.com/untruncd/untruncd/src/internal/domain"
	xlog "github.com/untruncd/untruncd/src/internal/log"
	"github.com/untruncd/untruncd/src/internal/metrics"
	"github.com/untruncd/untruncd/src/internal/ports"
	"github.com/untruncd/untruncd/src/internal/services"
)

var (
	bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)
	keyPattern    = regexp.MustCompile(`^[\w\-./]+$`)
)

type gateway struct {
	cfg       *config.GatewayConfig
	catalog   ports.ObjectCatalog
	submitter ports.JobSubmitter
}

func newGateway(cfg *config.GatewayConfig, catalog ports.ObjectCatalog, submitter ports.JobSubmitter) *gateway {
	return &gateway{cfg: cfg, catalog: catalog, submitter: submitter}
}

func (g *gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Health check doesn't need auth.
	r.Get("/health", g.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(g.cfg.APIKeyHash))
		r.Post("/submit-batch", g.handleSubmitBatch)
	})

	return r
}

func (g *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":                "healthy",
		"service":               g.cfg.ServiceName,
		"default_input_bucket":  g.cfg.DefaultInputBucket,
		"default_output_bucket": g.cfg.DefaultOutputBucket,
	})
}

type submitRequest struct {
	InputBucket       string `json:"input_bucket"`
	InputPrefix       string `json:"input_prefix"`
	OutputBucket      string `json:"output_bucket"`
	OutputPrefix      string `json:"output_prefix"`
	ReferenceStrategy string `json:"reference_strategy"`
	ReferenceKey      string `json:"reference_key"`

	// Optional resource overrides for advanced users; applied before the
	// grid snap so the result is still a valid platform combination.
	VCPU      float64 `json:"vcpu,omitempty"`
	MemoryMB  int32   `json:"memory_mb,omitempty"`
	StorageGB int32   `json:"storage_gb,omitempty"`
}

func (g *gateway) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	logger := xlog.WithComponent("submit")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	inputBucket := req.InputBucket
	if inputBucket == "" {
		inputBucket = g.cfg.DefaultInputBucket
	}
	outputBucket := req.OutputBucket
	if outputBucket == "" {
		outputBucket = g.cfg.DefaultOutputBucket
	}
	inputPrefix := strings.Trim(req.InputPrefix, "/")
	outputPrefix := strings.Trim(req.OutputPrefix, "/")
	strategy := req.ReferenceStrategy
	if strategy == "" {
		strategy = "smallest"
	}

	if inputPrefix == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "input_prefix is required",
			"hint":    "Provide the prefix containing video files to repair",
			"example": map[string]string{"input_prefix": "session-2024-01-15/camera1"},
		})
		return
	}
	if !validObjectPath(inputBucket, inputPrefix) {
		writeError(w, http.StatusBadRequest, "Invalid input_bucket or input_prefix format")
		return
	}
	if !validObjectPath(outputBucket, orDefault(outputPrefix, "x")) {
		writeError(w, http.StatusBadRequest, "Invalid output_bucket or output_prefix format")
		return
	}

	videos, err := g.catalog.ListVideos(r.Context(), inputBucket, inputPrefix)
	if err != nil {
		logger.Error().Err(err).Str("bucket", inputBucket).Str("prefix", inputPrefix).Msg("failed to list video files")
		metrics.RecordBatchSubmission("error")
		writeError(w, http.StatusInternalServerError, "Failed to list files under "+inputBucket+"/"+inputPrefix)
		return
	}

	if len(videos) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "No video files found",
			"searched": "s3://" + inputBucket + "/" + inputPrefix,
		})
		metrics.RecordBatchSubmission("rejected")
		return
	}
	if len(videos) < 2 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Need at least 2 video files (1 working reference + 1 to repair)",
			"found": len(videos),
			"hint":  "Upload a known working video from the same camera to use as reference",
		})
		metrics.RecordBatchSubmission("rejected")
		return
	}

	reference := services.SelectReference(videos, domain.ReferenceStrategy(strategy), req.ReferenceKey)
	if reference == nil {
		writeError(w, http.StatusBadRequest, "Could not determine reference file")
		metrics.RecordBatchSubmission("rejected")
		return
	}

	var repairKeys []string
	var totalSize, largestSize int64
	for _, v := range videos {
		if v.Path == reference.Path {
			continue
		}
		repairKeys = append(repairKeys, v.Path)
		totalSize += v.Size
		if v.Size > largestSize {
			largestSize = v.Size
		}
	}

	// The reference is downloaded alongside the repair set, so it counts
	// toward both the aggregate and the largest-file bound.
	raw := services.CalculateResources(totalSize+reference.Size, max64(largestSize, reference.Size))
	autoScaled := req.VCPU == 0 && req.MemoryMB == 0 && req.StorageGB == 0
	if req.VCPU > 0 {
		raw.VCPU = req.VCPU
	}
	if req.MemoryMB > 0 {
		raw.MemoryMB = req.MemoryMB
	}
	if req.StorageGB > 0 {
		raw.StorageGB = req.StorageGB
	}

	vcpu, memoryMB := services.SnapToGrid(raw.VCPU, raw.MemoryMB)
	storageGB := raw.StorageGB
	if storageGB > 200 {
		storageGB = 200
	}

	if outputPrefix == "" {
		outputPrefix = inputPrefix
	}

	u := uuid.New()
	jobID := "untrunc-" + hex.EncodeToString(u[:])[:12]

	spec := &domain.BatchJobSpec{
		JobName:      jobID,
		InputBucket:  inputBucket,
		InputPrefix:  inputPrefix,
		OutputBucket: outputBucket,
		OutputPrefix: outputPrefix,
		ReferenceKey: reference.Path,
		RepairKeys:   repairKeys,
		Resources: domain.ResourceRequest{
			VCPU:       vcpu,
			MemoryMB:   memoryMB,
			StorageGB:  storageGB,
			AutoScaled: autoScaled,
		},
	}

	batchJobID, err := g.submitter.Submit(r.Context(), spec)
	if err != nil {
		logger.Error().Err(err).Str("job", jobID).Msg("failed to submit batch job")
		metrics.RecordBatchSubmission("error")
		writeError(w, http.StatusInternalServerError, "Failed to submit batch job: "+err.Error())
		return
	}

	metrics.RecordBatchSubmission("accepted")
	logger.Info().
		Str("job", jobID).
		Int("files", len(repairKeys)).
		Str("vcpu", vcpu).
		Int32("memory_mb", memoryMB).
		Int32("storage_gb", storageGB).
		Msg("submitted batch repair job")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":            "Batch repair job submitted",
		"job_id":             jobID,
		"batch_job_id":       batchJobID,
		"input_bucket":       inputBucket,
		"input_prefix":       inputPrefix,
		"output_bucket":      outputBucket,
		"output_prefix":      outputPrefix,
		"reference_file":     reference.Path,
		"reference_size_mb":  roundMB(reference.Size),
		"reference_strategy": strategy,
		"files_to_repair":    repairKeys,
		"file_count":         len(repairKeys),
		"total_size_mb":      roundMB(totalSize),
		"largest_file_mb":    roundMB(largestSize),
		"resources": map[string]any{
			"vcpu":        vcpu,
			"memory_mb":   memoryMB,
			"storage_gb":  storageGB,
			"auto_scaled": autoScaled,
		},
	})
}

func validObjectPath(bucket, key string) bool {
	if bucket == "" || !bucketPattern.MatchString(bucket) {
		return false
	}
	if key != "" && !keyPattern.MatchString(key) {
		return false
	}
	return !strings.Contains(key, "..")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1<<20)*100) / 100
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
