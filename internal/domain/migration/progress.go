package migration

import "time"

// SheetProgress is a point-in-time view of one sheet.
type SheetProgress struct {
	SheetID            string
	JobID              string
	SheetName          string
	SheetType          SheetType
	Status             SheetStatus
	Counters           Counters
	ProgressPercent    float64
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
	StartedAt          *time.Time
	CompletedAt        *time.Time
	LastHeartbeat      *time.Time
	ErrorMessage       string
}

// ProgressOf projects a sheet at now. Stale worker-owned sheets report SheetStuck.
func ProgressOf(s Sheet, now time.Time, staleThreshold time.Duration) SheetProgress {
	progress := SheetProgress{
		SheetID:         s.ID,
		JobID:           s.JobID,
		SheetName:       s.Name,
		SheetType:       s.Type,
		Status:          s.Diagnose(now, staleThreshold),
		Counters:        s.Counters,
		ProgressPercent: s.Counters.Percent(),
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		LastHeartbeat:   s.LastHeartbeat,
		ErrorMessage:    s.ErrorMessage,
	}

	if s.StartedAt != nil {
		end := now
		if s.Status.Terminal() && s.CompletedAt != nil {
			end = *s.CompletedAt
		}
		if end.After(*s.StartedAt) {
			progress.Elapsed = end.Sub(*s.StartedAt)
		}
	}
	if !s.Status.Terminal() {
		progress.EstimatedRemaining = EstimateRemaining(progress.Elapsed, s.TotalRows, s.ProcessedRows)
	}
	return progress
}

// EstimateRemaining extrapolates linearly. It is 0 until a row has been processed.
func EstimateRemaining(elapsed time.Duration, total, processed int64) time.Duration {
	if processed <= 0 || total <= processed {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(total-processed) / float64(processed))
}

// JobProgress aggregates the sheets of a job.
type JobProgress struct {
	JobID           string
	Status          JobStatus
	Sheets          []SheetProgress
	Totals          Counters
	ProgressPercent float64
	// Done is true once every sheet is terminal.
	Done bool
}

func JobProgressOf(job Job, now time.Time, staleThreshold time.Duration) JobProgress {
	progress := JobProgress{
		JobID:  job.ID,
		Status: job.Rollup(),
		Done:   len(job.Sheets) > 0,
	}
	for _, sheet := range job.Sheets {
		sp := ProgressOf(sheet, now, staleThreshold)
		progress.Sheets = append(progress.Sheets, sp)
		progress.Totals.TotalRows += sheet.TotalRows
		progress.Totals.ProcessedRows += sheet.ProcessedRows
		progress.Totals.ValidRows += sheet.ValidRows
		progress.Totals.InvalidRows += sheet.InvalidRows
		progress.Totals.SkippedRows += sheet.SkippedRows
		progress.Totals.DuplicateRows += sheet.DuplicateRows
		progress.Totals.ExistingRows += sheet.ExistingRows
		progress.Totals.PromotedRows += sheet.PromotedRows
		if !sheet.Status.Terminal() {
			progress.Done = false
		}
	}
	progress.ProgressPercent = progress.Totals.Percent()
	return progress
}
