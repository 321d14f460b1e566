package migration

import (
	"fmt"
	"math"
	"time"
)

// Counters are the row tallies of a sheet. Duplicate and existing rows are both
// skipped; promoted rows are a subset of valid rows.
type Counters struct {
	TotalRows     int64
	ProcessedRows int64
	ValidRows     int64
	InvalidRows   int64
	SkippedRows   int64
	DuplicateRows int64
	ExistingRows  int64
	PromotedRows  int64
}

func (c *Counters) Staged(n int64) {
	c.TotalRows += n
}

func (c *Counters) RecordValid() {
	c.ProcessedRows++
	c.ValidRows++
}

func (c *Counters) RecordInvalid() {
	c.ProcessedRows++
	c.InvalidRows++
}

func (c *Counters) RecordDuplicate() {
	c.ProcessedRows++
	c.SkippedRows++
	c.DuplicateRows++
}

func (c *Counters) RecordExisting() {
	c.ProcessedRows++
	c.SkippedRows++
	c.ExistingRows++
}

func (c *Counters) RecordPromoted() {
	c.PromotedRows++
}

// DemoteToExisting reclassifies a valid row whose key was promoted by another sheet
// in the meantime.
func (c *Counters) DemoteToExisting() {
	c.ValidRows--
	c.SkippedRows++
	c.ExistingRows++
}

// DemoteToInvalid reclassifies a valid row that failed promotion.
func (c *Counters) DemoteToInvalid() {
	c.ValidRows--
	c.InvalidRows++
}

// Check verifies the counter invariants.
func (c Counters) Check() error {
	if c.ProcessedRows != c.ValidRows+c.InvalidRows+c.SkippedRows {
		return fmt.Errorf("processed %d != valid %d + invalid %d + skipped %d",
			c.ProcessedRows, c.ValidRows, c.InvalidRows, c.SkippedRows)
	}
	if c.SkippedRows != c.DuplicateRows+c.ExistingRows {
		return fmt.Errorf("skipped %d != duplicate %d + existing %d", c.SkippedRows, c.DuplicateRows, c.ExistingRows)
	}
	if c.ProcessedRows > c.TotalRows {
		return fmt.Errorf("processed %d exceeds total %d", c.ProcessedRows, c.TotalRows)
	}
	if c.PromotedRows > c.ValidRows {
		return fmt.Errorf("promoted %d exceeds valid %d", c.PromotedRows, c.ValidRows)
	}
	return nil
}

// Percent is processed/total*100 rounded to two decimals, 0 for an empty sheet.
func (c Counters) Percent() float64 {
	if c.TotalRows <= 0 {
		return 0
	}
	percent := float64(c.ProcessedRows) / float64(c.TotalRows) * 100
	percent = math.Round(percent*100) / 100
	return math.Min(100, math.Max(0, percent))
}

// Sheet is one worksheet of a job and the checkpoint of its processing.
type Sheet struct {
	ID     string
	JobID  string
	Name   string
	Type   SheetType
	Status SheetStatus

	Counters
	ProgressPercent float64

	// LastStagedRow is the last source row written to staging (or skipped as blank).
	LastStagedRow   int
	StagingComplete bool
	// LastProcessedRow is the last staging row validated and deduplicated.
	LastProcessedRow int
	LastPromotedRow  int
	BatchCount       int

	LeaseToken string
	// AwaitingWorker marks a sheet re-claimed by recovery that no worker has picked up
	// yet. It keeps its status and checkpoint and is claimable like a PENDING sheet.
	AwaitingWorker   bool
	RecoveryAttempts int
	ErrorMessage     string

	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Touch refreshes the heartbeat and derived progress before a checkpoint write.
func (s *Sheet) Touch(now time.Time) {
	s.LastHeartbeat = &now
	s.ProgressPercent = s.Counters.Percent()
	s.UpdatedAt = now
}

// Stale reports whether a worker-owned sheet has not sent a heartbeat within threshold.
func (s Sheet) Stale(now time.Time, threshold time.Duration) bool {
	if !s.Status.WorkerOwned() || s.AwaitingWorker {
		return false
	}
	if s.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*s.LastHeartbeat) > threshold
}

// Diagnose returns the persisted status, or SheetStuck for a stale worker-owned sheet.
func (s Sheet) Diagnose(now time.Time, threshold time.Duration) SheetStatus {
	if s.Stale(now, threshold) {
		return SheetStuck
	}
	return s.Status
}

// Claim hands the sheet to a worker under leaseToken. A PENDING sheet starts
// processing; a sheet awaiting a worker keeps its status and resumes from its checkpoint.
func (s *Sheet) Claim(leaseToken string, now time.Time) {
	if s.Status == SheetPending {
		s.Status = SheetProcessing
	}
	if s.StartedAt == nil {
		s.StartedAt = &now
	}
	s.LeaseToken = leaseToken
	s.AwaitingWorker = false
	s.LastHeartbeat = &now
	s.UpdatedAt = now
}

// Claimable reports whether a worker may take the sheet.
func (s Sheet) Claimable() bool {
	return s.Status == SheetPending || (s.AwaitingWorker && s.Status.WorkerOwned())
}

// RestageAfterCheckpoint discards the staging progress past the validation
// checkpoint so that remaining rows are read again from the source file.
func (s *Sheet) RestageAfterCheckpoint() {
	s.Status = SheetProcessing
	s.LastStagedRow = s.LastProcessedRow
	s.TotalRows = s.ProcessedRows
	s.StagingComplete = false
}

// ResetProgress restarts the sheet from the first source row.
func (s *Sheet) ResetProgress() {
	s.Status = SheetProcessing
	s.Counters = Counters{}
	s.ProgressPercent = 0
	s.LastStagedRow = 0
	s.StagingComplete = false
	s.LastProcessedRow = 0
	s.LastPromotedRow = 0
	s.BatchCount = 0
	s.ErrorMessage = ""
}
