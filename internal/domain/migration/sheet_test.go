package migration_test

import (
	"testing"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

func TestCountersInvariantAcrossReclassification(t *testing.T) {
	t.Parallel()

	var c domain.Counters
	c.Staged(6)
	c.RecordValid()
	c.RecordValid()
	c.RecordValid()
	c.RecordInvalid()
	c.RecordDuplicate()
	c.RecordExisting()
	if err := c.Check(); err != nil {
		t.Fatalf("unexpected invariant violation: %v", err)
	}

	c.RecordPromoted()
	c.DemoteToExisting()
	c.DemoteToInvalid()
	if err := c.Check(); err != nil {
		t.Fatalf("unexpected invariant violation after demotion: %v", err)
	}
	if c.ValidRows != 1 || c.SkippedRows != 3 || c.InvalidRows != 2 {
		t.Fatalf("unexpected counters %+v", c)
	}
	if c.Percent() != 100 {
		t.Fatalf("expected 100%%, got %v", c.Percent())
	}
}

func TestCountersPercent(t *testing.T) {
	t.Parallel()

	if (domain.Counters{}).Percent() != 0 {
		t.Fatal("expected 0 for an empty sheet")
	}
	c := domain.Counters{TotalRows: 3, ProcessedRows: 1}
	if c.Percent() != 33.33 {
		t.Fatalf("expected 33.33, got %v", c.Percent())
	}
}

func TestSheetDiagnose(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * time.Minute)
	recent := now.Add(-30 * time.Second)

	cases := []struct {
		name  string
		sheet domain.Sheet
		want  domain.SheetStatus
	}{
		{"stale processing", domain.Sheet{Status: domain.SheetProcessing, LastHeartbeat: &old}, domain.SheetStuck},
		{"stale validated", domain.Sheet{Status: domain.SheetValidated, LastHeartbeat: &old}, domain.SheetStuck},
		{"no heartbeat", domain.Sheet{Status: domain.SheetProcessing}, domain.SheetStuck},
		{"fresh", domain.Sheet{Status: domain.SheetProcessing, LastHeartbeat: &recent}, domain.SheetProcessing},
		{"terminal", domain.Sheet{Status: domain.SheetCompleted, LastHeartbeat: &old}, domain.SheetCompleted},
		{"pending", domain.Sheet{Status: domain.SheetPending}, domain.SheetPending},
		{"awaiting worker", domain.Sheet{Status: domain.SheetProcessing, LastHeartbeat: &old, AwaitingWorker: true}, domain.SheetProcessing},
	}
	for _, tc := range cases {
		if got := tc.sheet.Diagnose(now, 5*time.Minute); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestSheetClaim(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-time.Hour)

	pending := domain.Sheet{Status: domain.SheetPending}
	if !pending.Claimable() {
		t.Fatal("expected a pending sheet to be claimable")
	}
	pending.Claim("lease-1", now)
	if pending.Status != domain.SheetProcessing || pending.LeaseToken != "lease-1" || !pending.StartedAt.Equal(now) {
		t.Fatalf("unexpected claimed sheet %+v", pending)
	}

	queued := domain.Sheet{Status: domain.SheetValidated, AwaitingWorker: true, StartedAt: &started, LastProcessedRow: 40}
	if !queued.Claimable() {
		t.Fatal("expected a sheet awaiting a worker to be claimable")
	}
	queued.Claim("lease-2", now)
	if queued.Status != domain.SheetValidated || queued.AwaitingWorker || queued.LastProcessedRow != 40 {
		t.Fatalf("claim must keep the checkpoint, got %+v", queued)
	}
	if !queued.StartedAt.Equal(started) || !queued.LastHeartbeat.Equal(now) {
		t.Fatalf("unexpected timestamps %+v", queued)
	}
	if queued.Claimable() {
		t.Fatal("a running sheet is not claimable")
	}
}

func TestProgressOfEstimatesRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-2 * time.Minute)
	sheet := domain.Sheet{
		ID:            "s1",
		Status:        domain.SheetProcessing,
		Counters:      domain.Counters{TotalRows: 400, ProcessedRows: 100, ValidRows: 100},
		StartedAt:     &started,
		LastHeartbeat: &now,
	}

	progress := domain.ProgressOf(sheet, now, 5*time.Minute)
	if progress.Elapsed != 2*time.Minute {
		t.Fatalf("unexpected elapsed %v", progress.Elapsed)
	}
	if progress.EstimatedRemaining != 6*time.Minute {
		t.Fatalf("unexpected remaining %v", progress.EstimatedRemaining)
	}
	if progress.ProgressPercent != 25 {
		t.Fatalf("unexpected percent %v", progress.ProgressPercent)
	}

	sheet.Counters.ProcessedRows = 0
	sheet.Counters.ValidRows = 0
	if got := domain.ProgressOf(sheet, now, 5*time.Minute).EstimatedRemaining; got != 0 {
		t.Fatalf("expected zero estimate before the first row, got %v", got)
	}
}

func TestProgressOfTerminalUsesCompletionTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-time.Hour)
	completed := now.Add(-50 * time.Minute)
	sheet := domain.Sheet{
		Status:      domain.SheetCompleted,
		Counters:    domain.Counters{TotalRows: 10, ProcessedRows: 10, ValidRows: 10},
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	progress := domain.ProgressOf(sheet, now, time.Minute)
	if progress.Elapsed != 10*time.Minute || progress.EstimatedRemaining != 0 {
		t.Fatalf("unexpected timing %v / %v", progress.Elapsed, progress.EstimatedRemaining)
	}
}

func TestPlanRepair(t *testing.T) {
	t.Parallel()

	processing := domain.Sheet{
		Status:           domain.SheetProcessing,
		Counters:         domain.Counters{TotalRows: 10, ProcessedRows: 4, ValidRows: 4},
		LastStagedRow:    11,
		LastProcessedRow: 5,
	}
	validated := domain.Sheet{
		Status:   domain.SheetValidated,
		Counters: domain.Counters{TotalRows: 10, ProcessedRows: 10, ValidRows: 8, InvalidRows: 2, PromotedRows: 3},
	}

	cases := []struct {
		name  string
		sheet domain.Sheet
		stats domain.StagingStats
		want  domain.RepairPlan
	}{
		{"intact", processing, domain.StagingStats{Staged: 10, Validated: 4}, domain.RepairNone},
		{"missing staged rows", processing, domain.StagingStats{Staged: 7, Validated: 4}, domain.RepairRestage},
		{"validated rows lost", processing, domain.StagingStats{Staged: 10, Validated: 3}, domain.RepairReset},
		{"promotion intact", validated, domain.StagingStats{Staged: 10, Validated: 10, Promotable: 5}, domain.RepairNone},
		{"promotion mismatch", validated, domain.StagingStats{Staged: 10, Validated: 10, Promotable: 2}, domain.RepairReset},
	}
	for _, tc := range cases {
		if got := domain.PlanRepair(tc.sheet, tc.stats); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestRestageAfterCheckpoint(t *testing.T) {
	t.Parallel()

	sheet := domain.Sheet{
		Status:           domain.SheetProcessing,
		Counters:         domain.Counters{TotalRows: 10, ProcessedRows: 4, ValidRows: 4},
		LastStagedRow:    11,
		StagingComplete:  true,
		LastProcessedRow: 5,
	}
	sheet.RestageAfterCheckpoint()
	if sheet.LastStagedRow != 5 || sheet.TotalRows != 4 || sheet.StagingComplete {
		t.Fatalf("unexpected checkpoint %+v", sheet)
	}
	if err := sheet.Counters.Check(); err != nil {
		t.Fatalf("unexpected invariant violation: %v", err)
	}
}
