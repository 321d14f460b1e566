package migration_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// memStore is an in-memory stand-in for the job, sheet, staging and error
// repositories. Writes are conditioned on the sheet lease like the SQL ones.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	sheets  map[string]domain.Sheet
	staging map[string]map[int]domain.StagingRow
	errors  []domain.RowError

	commitErr   error
	statsErr    map[string]error
	afterCommit func(kind string, sheet domain.Sheet)
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[string]domain.Job{},
		sheets:   map[string]domain.Sheet{},
		staging:  map[string]map[int]domain.StagingRow{},
		statsErr: map[string]error{},
	}
}

func (m *memStore) Create(ctx context.Context, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sheet := range job.Sheets {
		m.sheets[sheet.ID] = sheet
	}
	job.Sheets = nil
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) Get(ctx context.Context, jobID string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	job.Sheets = m.sheetsOfLocked(jobID)
	return job, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	m.jobs[jobID] = job
	return nil
}

func (m *memStore) sheetsOfLocked(jobID string) []domain.Sheet {
	var out []domain.Sheet
	for _, sheet := range m.sheets {
		if sheet.JobID == jobID {
			out = append(out, sheet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sheetRepo exposes the sheet half of memStore, whose Get differs from the job one.
type sheetRepo struct{ *memStore }

func (r sheetRepo) Get(ctx context.Context, sheetID string) (domain.Sheet, error) {
	return r.sheet(sheetID)
}

func (m *memStore) sheet(sheetID string) (domain.Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.sheets[sheetID]
	if !ok {
		return domain.Sheet{}, domain.ErrSheetNotFound
	}
	return sheet, nil
}

func (m *memStore) put(sheet domain.Sheet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet.ID] = sheet
}

func (m *memStore) activeLocked(sheet domain.Sheet) error {
	current, ok := m.sheets[sheet.ID]
	if !ok {
		return domain.ErrSheetNotFound
	}
	if current.Status == domain.SheetCancelled {
		return domain.ErrSheetCancelled
	}
	if current.LeaseToken != sheet.LeaseToken || !current.Status.WorkerOwned() {
		return domain.ErrLeaseLost
	}
	return nil
}

func (r sheetRepo) ClaimNext(ctx context.Context, leaseToken string, now time.Time) (*domain.Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, sheet := range r.sheets {
		if sheet.Claimable() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	sheet := r.sheets[ids[0]]
	sheet.Claim(leaseToken, now)
	r.sheets[sheet.ID] = sheet
	return &sheet, nil
}

func (r sheetRepo) Heartbeat(ctx context.Context, sheet domain.Sheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.activeLocked(sheet); err != nil {
		return err
	}
	current := r.sheets[sheet.ID]
	current.LastHeartbeat = sheet.LastHeartbeat
	r.sheets[sheet.ID] = current
	return nil
}

func (r sheetRepo) Transition(ctx context.Context, sheet domain.Sheet, from domain.SheetStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.activeLocked(sheet); err != nil {
		return err
	}
	if r.sheets[sheet.ID].Status != from {
		return domain.ErrLeaseLost
	}
	r.sheets[sheet.ID] = sheet
	return nil
}

func (r sheetRepo) ListByJob(ctx context.Context, jobID string) ([]domain.Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sheetsOfLocked(jobID), nil
}

func (r sheetRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Sheet
	for _, sheet := range r.sheets {
		if sheet.Status.WorkerOwned() && !sheet.AwaitingWorker && (sheet.LastHeartbeat == nil || sheet.LastHeartbeat.Before(cutoff)) {
			out = append(out, sheet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r sheetRepo) stillStuckLocked(sheetID, observedLease string, cutoff time.Time) bool {
	current, ok := r.sheets[sheetID]
	if !ok || current.LeaseToken != observedLease || !current.Status.WorkerOwned() || current.AwaitingWorker {
		return false
	}
	return current.LastHeartbeat == nil || current.LastHeartbeat.Before(cutoff)
}

func (r sheetRepo) Reclaim(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time, plan domain.RepairPlan) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stillStuckLocked(sheet.ID, observedLease, cutoff) {
		return false, nil
	}
	if plan == domain.RepairReset {
		delete(r.staging, sheet.ID)
		kept := r.errors[:0]
		for _, rowErr := range r.errors {
			if rowErr.SheetID != sheet.ID {
				kept = append(kept, rowErr)
			}
		}
		r.errors = kept
	}
	r.sheets[sheet.ID] = sheet
	return true, nil
}

func (r sheetRepo) FailStalled(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stillStuckLocked(sheet.ID, observedLease, cutoff) {
		return false, nil
	}
	r.sheets[sheet.ID] = sheet
	return true, nil
}

func (r sheetRepo) CancelJob(ctx context.Context, jobID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, sheet := range r.sheets {
		if sheet.JobID != jobID {
			continue
		}
		for _, status := range domain.CancellableStatuses {
			if sheet.Status == status {
				sheet.Status = domain.SheetCancelled
				sheet.CompletedAt = &now
				r.sheets[id] = sheet
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *memStore) commitLocked(kind string, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	if err := m.activeLocked(sheet); err != nil {
		return err
	}
	byRow, ok := m.staging[sheet.ID]
	if !ok {
		byRow = map[int]domain.StagingRow{}
		m.staging[sheet.ID] = byRow
	}
	for _, row := range rows {
		if kind == "staged" {
			row.ID = fmt.Sprintf("%s-%d", sheet.ID, row.RowNumber)
		}
		byRow[row.RowNumber] = row
	}
	m.errors = append(m.errors, errs...)
	m.sheets[sheet.ID] = sheet
	return nil
}

func (m *memStore) commit(kind string, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	m.mu.Lock()
	err := m.commitLocked(kind, sheet, rows, errs)
	hook := m.afterCommit
	m.mu.Unlock()
	if err == nil && hook != nil {
		hook(kind, sheet)
	}
	return err
}

func (m *memStore) CommitStaged(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow) error {
	return m.commit("staged", sheet, rows, nil)
}

func (m *memStore) CommitValidated(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	return m.commit("validated", sheet, rows, errs)
}

func (m *memStore) CommitPromoted(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	return m.commit("promoted", sheet, rows, errs)
}

func (m *memStore) selectRows(sheetID string, limit int, keep func(domain.StagingRow) bool) []domain.StagingRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StagingRow
	for _, row := range m.staging[sheetID] {
		if keep(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) NextForValidation(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error) {
	return m.selectRows(sheet.ID, limit, func(row domain.StagingRow) bool {
		return row.RowNumber > sheet.LastProcessedRow && row.RowNumber <= sheet.LastStagedRow
	}), nil
}

func (m *memStore) KnownKeys(ctx context.Context, sheet domain.Sheet) ([]string, error) {
	rows := m.selectRows(sheet.ID, 0, func(row domain.StagingRow) bool {
		return row.RowNumber <= sheet.LastProcessedRow && row.DuplicateKey != ""
	})
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.DuplicateKey)
	}
	return keys, nil
}

func (m *memStore) NextForPromotion(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error) {
	return m.selectRows(sheet.ID, limit, func(row domain.StagingRow) bool {
		return row.RowNumber > sheet.LastPromotedRow && row.Promotable()
	}), nil
}

func (m *memStore) Stats(ctx context.Context, sheet domain.Sheet) (domain.StagingStats, error) {
	m.mu.Lock()
	err := m.statsErr[sheet.ID]
	m.mu.Unlock()
	if err != nil {
		return domain.StagingStats{}, err
	}
	var stats domain.StagingStats
	for _, row := range m.selectRows(sheet.ID, 0, func(domain.StagingRow) bool { return true }) {
		if row.RowNumber <= sheet.LastStagedRow {
			stats.Staged++
		}
		if row.Status != domain.RowPending {
			stats.Validated++
		}
		if row.Promotable() {
			stats.Promotable++
		}
	}
	return stats, nil
}

func (m *memStore) dropStaging(sheetID string, fromRow int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for rowNumber := range m.staging[sheetID] {
		if rowNumber >= fromRow {
			delete(m.staging[sheetID], rowNumber)
		}
	}
}

func (m *memStore) errorsOf(sheetID string) []domain.RowError {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RowError
	for _, rowErr := range m.errors {
		if rowErr.SheetID == sheetID {
			out = append(out, rowErr)
		}
	}
	return out
}

func (m *memStore) ListByJob(ctx context.Context, jobID string, page domain.Page) (domain.ErrorPage, error) {
	return m.pageOf(page, func(rowErr domain.RowError) bool { return rowErr.JobID == jobID }), nil
}

func (m *memStore) ListBySheet(ctx context.Context, sheetID string, page domain.Page) (domain.ErrorPage, error) {
	return m.pageOf(page, func(rowErr domain.RowError) bool { return rowErr.SheetID == sheetID }), nil
}

func (m *memStore) pageOf(page domain.Page, keep func(domain.RowError) bool) domain.ErrorPage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.RowError
	for _, rowErr := range m.errors {
		if keep(rowErr) {
			all = append(all, rowErr)
		}
	}
	result := domain.ErrorPage{Total: int64(len(all)), Page: page.Number, PageSize: page.Size}
	start := page.Offset()
	if start < len(all) {
		end := start + page.Size
		if end > len(all) {
			end = len(all)
		}
		result.Items = all[start:end]
	}
	return result
}

// memMaster enforces key uniqueness like the master table's unique index.
type memMaster struct {
	mu       sync.Mutex
	owners   map[string]string
	records  map[string]domain.MasterRecord
	inserts  int
	reject   map[string]string
	err      error
	onLookup func()
}

func newMemMaster() *memMaster {
	return &memMaster{owners: map[string]string{}, records: map[string]domain.MasterRecord{}, reject: map[string]string{}}
}

func (m *memMaster) ExistingKeys(ctx context.Context, keys []string) (map[string]string, error) {
	if m.onLookup != nil {
		m.onLookup()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, key := range keys {
		if owner, ok := m.owners[key]; ok {
			out[key] = owner
		}
	}
	return out, nil
}

func (m *memMaster) Promote(ctx context.Context, records []domain.MasterRecord) (domain.PromotionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := domain.PromotionResult{}
	for _, record := range records {
		if reason, ok := m.reject[record.DuplicateKey]; ok {
			result[record.DuplicateKey] = domain.PromotionOutcome{Status: domain.PromotionRejected, Reason: reason}
			continue
		}
		if owner, ok := m.owners[record.DuplicateKey]; ok {
			result[record.DuplicateKey] = domain.PromotionOutcome{Status: domain.PromotionConflict, OwnerSheetID: owner}
			continue
		}
		m.owners[record.DuplicateKey] = record.SourceSheetID
		m.records[record.DuplicateKey] = record
		m.inserts++
		result[record.DuplicateKey] = domain.PromotionOutcome{Status: domain.PromotionInserted}
	}
	return result, nil
}

func (m *memMaster) add(key, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[key] = owner
}

func (m *memMaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}}
}

func (f *memFiles) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return nil
}

func (f *memFiles) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, errNoFile)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *memFiles) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[key]
	return ok, nil
}

func (f *memFiles) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	return nil
}

var errNoFile = errors.New("no such file")

// memParser ignores the bytes it is given and serves fixed worksheets.
type memParser struct {
	sheets map[string][][]string
	order  []string
	err    error
}

func (p *memParser) Parse(ctx context.Context, r io.Reader) (app.Workbook, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &memWorkbook{parser: p}, nil
}

type memWorkbook struct {
	parser *memParser
}

func (w *memWorkbook) SheetNames() []string { return w.parser.order }

func (w *memWorkbook) Header(sheet string) ([]string, error) {
	rows, ok := w.parser.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (w *memWorkbook) Rows(ctx context.Context, sheet string, fn func(rowNumber int, cells []string) error) error {
	rows, ok := w.parser.sheets[sheet]
	if !ok {
		return fmt.Errorf("sheet %q not found", sheet)
	}
	for i, cells := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i+1, cells); err != nil {
			return err
		}
	}
	return nil
}

func (w *memWorkbook) Close() error { return nil }
