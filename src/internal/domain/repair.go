package domain

import (
	"fmt"
	"time"
)

// ReferenceStrategy selects which candidate becomes the repair reference.
type ReferenceStrategy string

const (
	StrategySmallest ReferenceStrategy = "smallest"
	StrategyNewest   ReferenceStrategy = "newest"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "Pending"
	JobStatusRunning   JobStatus = "Running"
	JobStatusSucceeded JobStatus = "Succeeded"
	JobStatusFailed    JobStatus = "Failed"
)

// Candidate is a video file (or object) observed in a watched location.
// Path holds a filesystem path on the edge and an object key on the gateway.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// RepairJob is one (input, reference, destination) tuple with its outcome.
type RepairJob struct {
	ID             string
	InputPath      string
	OutputPath     string
	ReferencePath  string
	Status         JobStatus
	Err            *RepairError
	QuarantinePath string
}

type RepairErrorKind string

const (
	ErrKindInput             RepairErrorKind = "input"
	ErrKindToolNotFound      RepairErrorKind = "tool_not_found"
	ErrKindToolFailure       RepairErrorKind = "tool_failure"
	ErrKindTimeout           RepairErrorKind = "timeout"
	ErrKindImplausibleOutput RepairErrorKind = "implausible_output"
)

// RepairError classifies a failed repair attempt.
type RepairError struct {
	Kind   RepairErrorKind
	Detail string
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("repair failed (%s): %s", e.Kind, e.Detail)
}

func NewRepairError(kind RepairErrorKind, format string, args ...any) *RepairError {
	return &RepairError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ScanReport aggregates one scan pass.
type ScanReport struct {
	Scanned   int    `json:"scanned"`
	Repaired  int    `json:"repaired"`
	Failed    int    `json:"failed"`
	Reference string `json:"reference,omitempty"`
	Skipped   string `json:"skipped,omitempty"`
}

// ResourceRequest is a sized, grid-snapped compute request for a batch job.
// VCPU is a string because the batch platform accepts fractional tiers
// ("0.25", "0.5") as well as whole ones ("4").
type ResourceRequest struct {
	VCPU       string `json:"vcpu"`
	MemoryMB   int32  `json:"memory_mb"`
	StorageGB  int32  `json:"storage_gb"`
	AutoScaled bool   `json:"auto_scaled"`
}

// BatchJobSpec describes one remote repair job submission.
type BatchJobSpec struct {
	JobName      string
	InputBucket  string
	InputPrefix  string
	OutputBucket string
	OutputPrefix string
	ReferenceKey string
	RepairKeys   []string
	Resources    ResourceRequest
}

type RepairOutcome string

const (
	OutcomeRepaired          RepairOutcome = "repaired"
	OutcomeQuarantined       RepairOutcome = "quarantined"
	OutcomeFallbackDelivered RepairOutcome = "fallback_delivered"
	OutcomeFallbackExhausted RepairOutcome = "fallback_exhausted"
)

// RepairRecord is one terminal job outcome kept for reporting.
type RepairRecord struct {
	ID        string
	Path      string
	Reference string
	Outcome   RepairOutcome
	Detail    string
	Duration  time.Duration
	CreatedAt time.Time
}
