package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(baseURL, apiKey string, maxAttempts int) *FallbackDispatcher {
	d := NewFallbackDispatcher(baseURL, apiKey, maxAttempts)
	d.backoff = func(int) time.Duration { return 0 }
	return d
}

func TestDispatch_DisabledDoesNoIO(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := newTestDispatcher("", "key", 3)
	assert.False(t, d.Enabled())
	assert.False(t, d.Dispatch(context.Background(), "quarantine/a.mp4"))
	assert.EqualValues(t, 0, calls.Load())
}

func TestDispatch_SuccessFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	var gotPath, gotSource, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submit-batch", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")

		var payload struct {
			EdgeQuarantinePath string `json:"edge_quarantine_path"`
			Source             string `json:"source"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotPath = payload.EdgeQuarantinePath
		gotSource = payload.Source

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, "sekrit", 3)
	assert.True(t, d.Dispatch(context.Background(), "quarantine/cam1.mp4"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "quarantine/cam1.mp4", gotPath)
	assert.Equal(t, "edge-fallback", gotSource)
	assert.Equal(t, "sekrit", gotKey)
}

func TestDispatch_TrailingSlashNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submit-batch", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL+"/", "", 1)
	assert.True(t, d.Dispatch(context.Background(), "q/a.mp4"))
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, "", 5)
	assert.True(t, d.Dispatch(context.Background(), "q/a.mp4"))
	assert.EqualValues(t, 3, calls.Load())
}

func TestDispatch_ExhaustsExactlyMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, "", 3)
	start := time.Now()
	assert.False(t, d.Dispatch(context.Background(), "q/a.mp4"))
	assert.EqualValues(t, 3, calls.Load())
	// With zeroed backoff there is no residual wait after the last attempt.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatch_CancelledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, "", 3)
	d.backoff = func(int) time.Duration { return time.Minute }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.False(t, d.Dispatch(ctx, "q/a.mp4"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDispatch_NoAPIKeyHeaderWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		assert.False(t, present)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL, "", 1)
	assert.True(t, d.Dispatch(context.Background(), "q/a.mp4"))
}
