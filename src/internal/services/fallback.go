package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/untruncd/untruncd/src/internal/log"
	"github.com/untruncd/untruncd/src/internal/metrics"
)

// FallbackDispatcher hands quarantined files to the remote repair path.
// Dispatch is attempted only after local repair has failed and the file has
// already been moved to quarantine.
type FallbackDispatcher struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	client      *http.Client
	log         zerolog.Logger

	// backoff is replaceable in tests; defaults to 2^attempt seconds plus
	// uniform [0,1)s jitter.
	backoff func(attempt int) time.Duration
}

type fallbackPayload struct {
	EdgeQuarantinePath string `json:"edge_quarantine_path"`
	Source             string `json:"source"`
}

func NewFallbackDispatcher(baseURL, apiKey string, maxAttempts int) *FallbackDispatcher {
	return &FallbackDispatcher{
		baseURL:     baseURL,
		apiKey:      apiKey,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         xlog.WithComponent("fallback"),
		backoff:     defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt)*time.Second + time.Duration(rand.Float64()*float64(time.Second))
}

// Enabled reports whether a remote endpoint is configured at all.
func (d *FallbackDispatcher) Enabled() bool {
	return d.baseURL != ""
}

// Dispatch sends the quarantined file's identifier to the remote endpoint,
// retrying transport and non-2xx failures with exponential backoff. Returns
// true once the remote accepted the description; false after exhausting all
// attempts or when no endpoint is configured (no network I/O in that case).
func (d *FallbackDispatcher) Dispatch(ctx context.Context, relativePath string) bool {
	if !d.Enabled() {
		d.log.Info().Str("file", relativePath).Msg("fallback disabled, skipping dispatch")
		return false
	}

	url := strings.TrimRight(d.baseURL, "/") + "/submit-batch"
	body, _ := json.Marshal(fallbackPayload{
		EdgeQuarantinePath: relativePath,
		Source:             "edge-fallback",
	})

	d.log.Info().Str("url", url).Str("file", relativePath).Msg("invoking remote fallback")

	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		metrics.FallbackAttemptsTotal.Inc()

		err := d.post(ctx, url, body)
		if err == nil {
			d.log.Info().Str("file", relativePath).Int("attempt", attempt+1).Msg("fallback accepted")
			return true
		}
		d.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", d.maxAttempts).
			Str("file", relativePath).
			Msg("fallback attempt failed")

		// No wait after the final attempt.
		if attempt < d.maxAttempts-1 {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				d.log.Warn().Str("file", relativePath).Msg("fallback dispatch cancelled")
				return false
			}
		}
	}

	metrics.FallbackExhaustedTotal.Inc()
	d.log.Error().
		Str("file", relativePath).
		Int("retries", d.maxAttempts).
		Msg("fallback exhausted retries")
	return false
}

func (d *FallbackDispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-Api-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}
