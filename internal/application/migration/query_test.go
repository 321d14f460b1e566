package migration_test

import (
	"context"
	"testing"
	"time"

	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressServiceReportsStuckSheets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, map[string][][]string{"CIF": sixCIFRows()})
	stuck := h.runUntil(t, "validated", 1)
	progress := app.NewProgressService(h.store, h.sheets, app.ProgressConfig{Clock: h.clock.Now})

	sheet, err := progress.SheetProgress(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SheetProcessing, sheet.Status)
	assert.Equal(t, 33.33, sheet.ProgressPercent)

	h.clock.Advance(6 * time.Minute)
	job, err := progress.JobProgress(context.Background(), h.job.ID)
	require.NoError(t, err)
	require.Len(t, job.Sheets, 1)
	assert.Equal(t, domain.SheetStuck, job.Sheets[0].Status)
	assert.False(t, job.Done)

	_, err = progress.SheetProgress(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSheetNotFound)
}

func TestProgressWatchEmitsFinalSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, map[string][][]string{"CIF": mixedCIFRows()})
	sheet := h.claim(t)
	require.NoError(t, h.engine.Run(context.Background(), sheet))
	progress := app.NewProgressService(h.store, h.sheets, app.ProgressConfig{Clock: h.clock.Now})

	var snapshots []domain.JobProgress
	err := progress.Watch(context.Background(), h.job.ID, time.Millisecond, func(p domain.JobProgress) error {
		snapshots = append(snapshots, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.True(t, snapshots[0].Done)
	assert.Equal(t, domain.JobCompleted, snapshots[0].Status)
	assert.Equal(t, 100.0, snapshots[0].ProgressPercent)

	err = progress.Watch(context.Background(), "missing", time.Millisecond, func(domain.JobProgress) error { return nil })
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestErrorServicePaginates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, map[string][][]string{"CIF": mixedCIFRows()})
	sheet := h.claim(t)
	require.NoError(t, h.engine.Run(context.Background(), sheet))
	errs := app.NewErrorService(h.store, h.sheets, h.store)

	page, err := errs.JobErrors(context.Background(), h.job.ID, domain.Page{Number: 1, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Items[0].RowNumber)

	page, err = errs.SheetErrors(context.Background(), sheet.ID, domain.Page{Number: 2, Size: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 8, page.Items[0].RowNumber)

	page, err = errs.SheetErrors(context.Background(), sheet.ID, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, app.DefaultPageSize, page.PageSize)

	_, err = errs.JobErrors(context.Background(), h.job.ID, domain.Page{Number: 1, Size: app.MaxPageSize + 1})
	assert.ErrorIs(t, err, app.ErrInvalidPage)
	_, err = errs.JobErrors(context.Background(), "missing", domain.Page{})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, map[string][][]string{
		"CIF":  sixCIFRows(),
		"HDTD": {contractHeader, contractLine("HD001", "PASS TTN")},
	})
	first := h.claim(t)
	require.NoError(t, h.engine.Run(context.Background(), first))

	job, err := app.NewGetJob(h.store).Execute(context.Background(), h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobProcessing, job.Status)

	job, err = app.NewCancelJob(h.store, h.sheets, quietLogger()).Execute(context.Background(), h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)
	assert.Equal(t, domain.SheetCompleted, h.sheet(t, first.ID).Status, "terminal sheets are left alone")

	_, err = app.NewCancelJob(h.store, h.sheets, quietLogger()).Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
