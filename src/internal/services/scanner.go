package services

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/untruncd/untruncd/src/internal/domain"
	xlog "github.com/untruncd/untruncd/src/internal/log"
	"github.com/untruncd/untruncd/src/internal/metrics"
	"github.com/untruncd/untruncd/src/internal/ports"
)

var (
	ErrSourceNotFound = errors.New("source file not found")
	ErrNoReference    = errors.New("no reference file available")
)

// ScannerConfig holds the tunables for the periodic repair loop.
type ScannerConfig struct {
	ReadyRoot      string
	ExportRoot     string
	QuarantineRoot string
	ScanInterval   time.Duration
	MinFileAge     time.Duration
	MaxConcurrent  int
	Strategy       domain.ReferenceStrategy
}

// DirectoryScanner watches the ready directory for stable video files and
// drives the repair executor over them, one reference per batch. Failed
// inputs are quarantined and handed to the fallback dispatcher.
type DirectoryScanner struct {
	cfg      ScannerConfig
	tracker  *StabilityTracker
	runner   ports.RepairRunner
	fallback *FallbackDispatcher
	history  ports.HistoryRepository
	log      zerolog.Logger

	// passMu serializes scan passes and ad hoc repairs; the stability map
	// is only ever touched while it is held.
	passMu sync.Mutex

	mu            sync.Mutex
	lastReference string
	running       bool
}

// ScannerStats is the observability snapshot exposed via /stats.
type ScannerStats struct {
	KnownFiles    int    `json:"known_files"`
	LastReference string `json:"current_reference,omitempty"`
	Running       bool   `json:"running"`
}

// RepairResult describes the outcome of a manual single-file repair.
type RepairResult struct {
	Status    string `json:"status"`
	Source    string `json:"source,omitempty"`
	Output    string `json:"output,omitempty"`
	Reference string `json:"reference,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func NewDirectoryScanner(cfg ScannerConfig, tracker *StabilityTracker, runner ports.RepairRunner, fallback *FallbackDispatcher, history ports.HistoryRepository) *DirectoryScanner {
	return &DirectoryScanner{
		cfg:      cfg,
		tracker:  tracker,
		runner:   runner,
		fallback: fallback,
		history:  history,
		log:      xlog.WithComponent("scanner"),
	}
}

type jobResult struct {
	path    string
	success bool
}

// ScanOnce performs a single pass: find stable candidates, select a
// reference, repair everything else with bounded concurrency, and route
// failures to quarantine plus fallback. Passes never overlap.
func (s *DirectoryScanner) ScanOnce(ctx context.Context) (domain.ScanReport, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	for _, dir := range []string{s.cfg.ReadyRoot, s.cfg.ExportRoot, s.cfg.QuarantineRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return domain.ScanReport{}, err
		}
	}

	candidates, err := s.collectStable()
	if err != nil {
		return domain.ScanReport{}, err
	}

	if len(candidates) == 0 {
		s.log.Debug().Str("root", s.cfg.ReadyRoot).Msg("no stable candidates found")
		metrics.RecordScanPass("ok")
		return domain.ScanReport{}, nil
	}

	s.log.Info().Int("count", len(candidates)).Msg("found stable candidates")

	reference := SelectReference(candidates, s.cfg.Strategy, "")
	if reference == nil {
		s.log.Warn().Msg("could not select reference file, skipping batch")
		metrics.RecordScanPass("ok")
		return domain.ScanReport{Scanned: len(candidates), Skipped: "no_reference"}, nil
	}

	s.mu.Lock()
	s.lastReference = reference.Path
	s.mu.Unlock()

	s.log.Info().
		Str("reference", reference.Path).
		Int64("size", reference.Size).
		Msg("selected reference file")

	var targets []domain.Candidate
	for _, c := range candidates {
		if c.Path != reference.Path {
			targets = append(targets, c)
		}
	}

	// Counting admission gate: a finishing job immediately frees a slot.
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	results := make(chan jobResult, len(targets))
	var wg sync.WaitGroup

	for _, target := range targets {
		t := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.ActiveRepairs.Inc()
			defer metrics.ActiveRepairs.Dec()

			results <- jobResult{path: t.Path, success: s.processOne(ctx, t, reference.Path)}
		}()
	}

	wg.Wait()
	close(results)

	report := domain.ScanReport{Scanned: len(candidates), Reference: reference.Path}
	for res := range results {
		if res.success {
			report.Repaired++
		} else {
			report.Failed++
		}
		// The file is gone from ready either way (exported or quarantined).
		s.tracker.Forget(res.path)
	}

	s.exportReferenceCopy(reference.Path)

	metrics.RecordScanPass("ok")
	return report, nil
}

// collectStable walks the ready root and returns the candidates that passed
// two spaced observations. Also sweeps tracker entries for vanished files.
func (s *DirectoryScanner) collectStable() ([]domain.Candidate, error) {
	var stable []domain.Candidate
	seen := make(map[string]struct{})

	err := filepath.WalkDir(s.cfg.ReadyRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("walk error, skipping entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !IsVideoFile(path) || IsHiddenOrTemp(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Vanished mid-walk; treat as unseen.
			return nil
		}

		seen[path] = struct{}{}
		if s.tracker.Observe(path, info.Size(), info.ModTime(), s.cfg.MinFileAge) {
			stable = append(stable, domain.Candidate{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tracker.Sweep(seen)
	return stable, nil
}

// processOne runs one repair job end to end. Returns true on success. A
// failure never propagates beyond this job.
func (s *DirectoryScanner) processOne(ctx context.Context, target domain.Candidate, referencePath string) bool {
	rel, err := filepath.Rel(s.cfg.ReadyRoot, target.Path)
	if err != nil {
		rel = filepath.Base(target.Path)
	}
	dst := filepath.Join(s.cfg.ExportRoot, rel)
	start := time.Now()

	repairErr := s.runner.Repair(ctx, target.Path, dst, referencePath)
	if repairErr == nil {
		if err := os.Remove(target.Path); err != nil {
			s.log.Warn().Err(err).Str("source", target.Path).Msg("failed to remove repaired source")
		}
		s.log.Info().
			Str("source", target.Path).
			Str("output", dst).
			Msg("repaired successfully")
		metrics.RecordRepairOutcome(string(domain.OutcomeRepaired))
		s.record(ctx, rel, referencePath, domain.OutcomeRepaired, "", time.Since(start))
		return true
	}

	s.log.Warn().Err(repairErr).Str("file", target.Path).Msg("local repair failed")

	var rerr *domain.RepairError
	if errors.As(repairErr, &rerr) {
		metrics.RecordRepairError(string(rerr.Kind))
	}

	// Quarantine first, then hand off. A failed move is logged but does not
	// stop the fallback attempt.
	qdst := filepath.Join(s.cfg.QuarantineRoot, rel)
	if err := os.MkdirAll(filepath.Dir(qdst), 0755); err != nil {
		s.log.Error().Err(err).Str("path", qdst).Msg("failed to create quarantine directory")
	} else if err := moveFile(target.Path, qdst); err != nil {
		s.log.Error().Err(err).Str("source", target.Path).Msg("failed to move to quarantine")
	}

	outcome := domain.OutcomeQuarantined
	if s.fallback.Enabled() {
		if s.fallback.Dispatch(ctx, rel) {
			outcome = domain.OutcomeFallbackDelivered
		} else {
			outcome = domain.OutcomeFallbackExhausted
		}
	}
	metrics.RecordRepairOutcome(string(outcome))
	s.record(ctx, rel, referencePath, outcome, repairErr.Error(), time.Since(start))
	return false
}

// exportReferenceCopy copies (not moves) the reference into the export tree
// when absent, so downstream consumers get the full set.
func (s *DirectoryScanner) exportReferenceCopy(referencePath string) {
	rel, err := filepath.Rel(s.cfg.ReadyRoot, referencePath)
	if err != nil {
		return
	}
	dst := filepath.Join(s.cfg.ExportRoot, rel)
	if _, err := os.Stat(dst); err == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		s.log.Warn().Err(err).Msg("failed to create export directory for reference")
		return
	}
	if err := copyFile(referencePath, dst); err != nil {
		s.log.Warn().Err(err).Str("reference", referencePath).Msg("failed to copy reference to export")
		return
	}
	s.log.Info().Str("output", dst).Msg("copied reference file to export")
}

// Run executes scan passes until the context is cancelled. Errors and
// panics are contained at the pass boundary; the loop always reaches its
// next scheduled pass. In-flight jobs drain before a pass returns.
func (s *DirectoryScanner) Run(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	s.log.Info().
		Str("ready_path", s.cfg.ReadyRoot).
		Dur("interval", s.cfg.ScanInterval).
		Msg("scanner started")

	for {
		s.runPass(ctx)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("scanner stopped")
			return
		case <-time.After(s.cfg.ScanInterval):
		}
	}
}

func (s *DirectoryScanner) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scan pass panicked")
			metrics.RecordScanPass("error")
		}
	}()

	report, err := s.ScanOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("error during scan")
		metrics.RecordScanPass("error")
		return
	}
	if report.Repaired > 0 || report.Failed > 0 {
		s.log.Info().
			Int("scanned", report.Scanned).
			Int("repaired", report.Repaired).
			Int("failed", report.Failed).
			Str("reference", report.Reference).
			Msg("scan completed")
	}
}

// RepairOne runs a single ad hoc job outside the periodic loop. The file
// must exist under the ready root; when no explicit reference is given the
// smallest other video in the ready tree is used.
func (s *DirectoryScanner) RepairOne(ctx context.Context, relativePath, referenceRel string, invokeFallback bool) (*RepairResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	src := filepath.Join(s.cfg.ReadyRoot, relativePath)
	if _, err := os.Stat(src); err != nil {
		return nil, ErrSourceNotFound
	}
	dst := filepath.Join(s.cfg.ExportRoot, relativePath)

	var reference string
	if referenceRel != "" {
		reference = filepath.Join(s.cfg.ReadyRoot, referenceRel)
		if _, err := os.Stat(reference); err != nil {
			return nil, ErrNoReference
		}
	} else {
		ref, err := s.smallestOther(src)
		if err != nil {
			return nil, err
		}
		reference = ref
	}

	s.log.Info().Str("source", src).Str("reference", reference).Msg("manual repair requested")

	if err := s.runner.Repair(ctx, src, dst, reference); err != nil {
		s.log.Warn().Err(err).Str("source", src).Msg("manual repair failed")
		if invokeFallback && s.fallback.Enabled() && s.fallback.Dispatch(ctx, relativePath) {
			return &RepairResult{Status: "fallback_invoked", Source: src, Detail: err.Error()}, nil
		}
		return nil, err
	}

	if err := os.Remove(src); err != nil {
		s.log.Warn().Err(err).Str("source", src).Msg("failed to remove repaired source")
	}
	s.tracker.Forget(src)

	return &RepairResult{Status: "repaired", Source: src, Output: dst, Reference: reference}, nil
}

// smallestOther picks the smallest video in the ready tree excluding src.
// Stability is not required here; the caller asked for this file explicitly.
func (s *DirectoryScanner) smallestOther(src string) (string, error) {
	var best string
	var bestSize int64 = -1

	err := filepath.WalkDir(s.cfg.ReadyRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path == src {
			return nil
		}
		if !IsVideoFile(path) || IsHiddenOrTemp(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if bestSize < 0 || info.Size() < bestSize {
			best = path
			bestSize = info.Size()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", ErrNoReference
	}
	return best, nil
}

// Stats returns the scanner's observability snapshot.
func (s *DirectoryScanner) Stats() ScannerStats {
	s.passMu.Lock()
	known := s.tracker.Len()
	s.passMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return ScannerStats{
		KnownFiles:    known,
		LastReference: s.lastReference,
		Running:       s.running,
	}
}

func (s *DirectoryScanner) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *DirectoryScanner) record(ctx context.Context, rel, reference string, outcome domain.RepairOutcome, detail string, dur time.Duration) {
	if s.history == nil {
		return
	}
	rec := &domain.RepairRecord{
		ID:        uuid.NewString(),
		Path:      rel,
		Reference: reference,
		Outcome:   outcome,
		Detail:    detail,
		Duration:  dur,
		CreatedAt: time.Now(),
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("file", rel).Msg("failed to record repair history")
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
