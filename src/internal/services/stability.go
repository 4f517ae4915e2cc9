package services

import (
	"path/filepath"
	"strings"
	"time"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
	".avi": true,
	".m4v": true,
}

// IsVideoFile reports whether the path has a recognized video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsHiddenOrTemp reports whether the file should be skipped by naming
// convention (dotfiles and editor/copy temp files).
func IsHiddenOrTemp(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

type fileState struct {
	size        int64
	mtime       time.Time
	firstSeen   time.Time
	observedAt  time.Time
	missedScans int
}

// StabilityTracker decides which files are safe to touch. A file is stable
// once two observations with identical {size, mtime}, separated by at least
// the settle duration, have been made and the file is older than the minimum
// age. The first observation of a path is never stable.
type StabilityTracker struct {
	known  map[string]*fileState
	settle time.Duration
	now    func() time.Time
}

func NewStabilityTracker(settle time.Duration) *StabilityTracker {
	return &StabilityTracker{
		known:  make(map[string]*fileState),
		settle: settle,
		now:    time.Now,
	}
}

// Observe records one observation of path and reports whether the file is
// stable. Mutated only from the single scan loop; no locking needed.
func (t *StabilityTracker) Observe(path string, size int64, mtime time.Time, minAge time.Duration) bool {
	now := t.now()

	prev, ok := t.known[path]
	if !ok {
		t.known[path] = &fileState{size: size, mtime: mtime, firstSeen: now, observedAt: now}
		return false
	}
	prev.missedScans = 0

	if prev.size != size || !prev.mtime.Equal(mtime) {
		// File changed since last check; restart the settle window.
		prev.size = size
		prev.mtime = mtime
		prev.observedAt = now
		return false
	}

	if now.Sub(mtime) < minAge {
		return false
	}
	if now.Sub(prev.observedAt) < t.settle {
		return false
	}
	return true
}

// Sweep drops tracked paths that have been missing from two consecutive
// scans (moved or deleted behind our back). seen holds the paths observed
// during the pass that just finished.
func (t *StabilityTracker) Sweep(seen map[string]struct{}) {
	for path, st := range t.known {
		if _, ok := seen[path]; ok {
			continue
		}
		st.missedScans++
		if st.missedScans >= 2 {
			delete(t.known, path)
		}
	}
}

// Forget removes a path once the scanner has consumed it.
func (t *StabilityTracker) Forget(path string) {
	delete(t.known, path)
}

// Len returns the number of tracked paths.
func (t *StabilityTracker) Len() int {
	return len(t.known)
}
