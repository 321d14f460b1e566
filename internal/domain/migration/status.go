package migration

import "fmt"

// SheetStatus is the lifecycle state of one worksheet inside a migration job.
type SheetStatus string

const (
	SheetPending    SheetStatus = "PENDING"
	SheetProcessing SheetStatus = "PROCESSING"
	SheetValidated  SheetStatus = "VALIDATED"
	SheetCompleted  SheetStatus = "COMPLETED"
	SheetFailed     SheetStatus = "FAILED"
	SheetCancelled  SheetStatus = "CANCELLED"
	// SheetStuck is never persisted. It is reported by Diagnose when a worker-owned sheet
	// stopped sending heartbeats.
	SheetStuck SheetStatus = "STUCK"
)

// AllSheetStatuses lists every status, persisted or derived.
var AllSheetStatuses = []SheetStatus{
	SheetPending,
	SheetProcessing,
	SheetValidated,
	SheetCompleted,
	SheetFailed,
	SheetCancelled,
	SheetStuck,
}

func ParseSheetStatus(raw string) (SheetStatus, error) {
	for _, status := range AllSheetStatuses {
		if string(status) == raw {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown sheet status %q", raw)
}

// Terminal reports whether no further processing can happen for the sheet.
func (s SheetStatus) Terminal() bool {
	switch s {
	case SheetCompleted, SheetFailed, SheetCancelled:
		return true
	case SheetPending, SheetProcessing, SheetValidated, SheetStuck:
		return false
	default:
		panic(fmt.Sprintf("unhandled sheet status %q", string(s)))
	}
}

// WorkerOwned reports whether the status implies a live worker holding the sheet lease.
func (s SheetStatus) WorkerOwned() bool {
	switch s {
	case SheetProcessing, SheetValidated:
		return true
	case SheetPending, SheetCompleted, SheetFailed, SheetCancelled, SheetStuck:
		return false
	default:
		panic(fmt.Sprintf("unhandled sheet status %q", string(s)))
	}
}

// successors returns the statuses reachable from s in one step.
func (s SheetStatus) successors() []SheetStatus {
	switch s {
	case SheetPending:
		return []SheetStatus{SheetProcessing, SheetCancelled}
	case SheetProcessing:
		return []SheetStatus{SheetValidated, SheetFailed, SheetCancelled, SheetStuck}
	case SheetValidated:
		return []SheetStatus{SheetCompleted, SheetFailed, SheetCancelled, SheetStuck}
	case SheetStuck:
		return []SheetStatus{SheetProcessing, SheetValidated, SheetFailed}
	case SheetCompleted, SheetFailed, SheetCancelled:
		return nil
	default:
		panic(fmt.Sprintf("unhandled sheet status %q", string(s)))
	}
}

func (s SheetStatus) CanTransitionTo(next SheetStatus) bool {
	for _, candidate := range s.successors() {
		if candidate == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when next is not a successor of s.
func CheckTransition(from, to SheetStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CancellableStatuses are the persisted statuses a user cancel applies to.
var CancellableStatuses = []SheetStatus{SheetPending, SheetProcessing, SheetValidated}

// JobStatus is the rolled-up status of a migration job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobCancelled  JobStatus = "CANCELLED"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	case JobPending, JobProcessing:
		return false
	default:
		panic(fmt.Sprintf("unhandled job status %q", string(s)))
	}
}

// RollupJobStatus derives a job status from its sheets.
func RollupJobStatus(statuses []SheetStatus) JobStatus {
	var pending, terminal int
	var failed, cancelled bool
	for _, status := range statuses {
		switch {
		case status == SheetPending:
			pending++
		case status.Terminal():
			terminal++
			failed = failed || status == SheetFailed
			cancelled = cancelled || status == SheetCancelled
		}
	}

	switch {
	case pending == len(statuses):
		return JobPending
	case terminal < len(statuses):
		return JobProcessing
	case failed:
		return JobFailed
	case cancelled:
		return JobCancelled
	default:
		return JobCompleted
	}
}
