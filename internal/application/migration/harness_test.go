package migration_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/stretchr/testify/require"
)

var (
	cifHeader = []string{
		"Mã đơn vị", "Số CIF", "Tên khách hàng", "Luồng hồ sơ", "Loại thời hạn tín dụng",
		"Loại hồ sơ", "Ngày giải ngân", "Ngày đến hạn", "Ngày tiêu hủy", "Mã thùng",
	}
	contractHeader = []string{
		"Mã đơn vị", "Số hợp đồng", "Số CIF", "Tên khách hàng", "Luồng hồ sơ", "Loại thời hạn tín dụng",
		"Loại hồ sơ", "Ngày giải ngân", "Ngày đến hạn", "Ngày tiêu hủy", "Mã thùng",
	}
)

func cifLine(cif, disbursed string) []string {
	return []string{"U01", cif, "Nguyễn Văn A", "HSTD thường", "Vĩnh viễn", "PASS TTN", disbursed, "", "", "BOX_01"}
}

func contractLine(number, documentType string) []string {
	return []string{"U01", number, "C001", "Nguyễn Văn A", "HSTD thường", "Vĩnh viễn", documentType, "15/01/2020", "", "", "BOX_01"}
}

func cifKey(cif, disbursed string) string {
	return domain.NewRecord(domain.SheetTypeCIF, map[domain.Field]string{
		domain.FieldCIF:              cif,
		domain.FieldDisbursementDate: disbursed,
		domain.FieldDocumentType:     "PASS TTN",
	}).DuplicateKey()
}

// mixedCIFRows holds valid, invalid, duplicate and blank rows so that every counter moves.
func mixedCIFRows() [][]string {
	return [][]string{
		cifHeader,
		cifLine("C001", "15/01/2020"),
		cifLine("C002", ""),
		cifLine("C001", "15/01/2020"),
		cifLine("C003", "01/02/2021"),
		{"", "", "", "", "", "", "", "", "", ""},
		cifLine("C004", "45323"),
		cifLine("C005", "31/02/2021"),
		cifLine("C006", "10/10/2019"),
		cifLine("C003", "01/02/2021"),
		cifLine("C007", "05/05/2022"),
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store  *memStore
	sheets sheetRepo
	master *memMaster
	files  *memFiles
	parser *memParser
	clock  *fakeClock
	engine *app.Engine
	job    domain.Job
}

const sourceKey = "uploads/job-1/archive.xlsx"

// newHarness creates job-1 with one PENDING sheet per worksheet in sheets.
func newHarness(t *testing.T, batchSize int, sheets map[string][][]string) *harness {
	t.Helper()

	h := &harness{
		store:  newMemStore(),
		master: newMemMaster(),
		files:  newMemFiles(),
		parser: &memParser{sheets: sheets},
		clock:  newFakeClock(),
	}
	h.sheets = sheetRepo{h.store}

	var detected []domain.DetectedSheet
	for _, name := range []string{"HDTD", "CIF", "TAP"} {
		if _, ok := sheets[name]; !ok {
			continue
		}
		sheetType, err := domain.SheetTypeForName(name)
		require.NoError(t, err)
		detected = append(detected, domain.DetectedSheet{Name: name, Type: sheetType})
		h.parser.order = append(h.parser.order, name)
	}

	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("sheet-%d", seq)
	}
	file := domain.StoredFile{Name: "archive.xlsx", Key: sourceKey, Size: 4}
	h.job = domain.NewJob("job-1", file, detected, newID, h.clock.Now())
	require.NoError(t, h.store.Create(context.Background(), h.job))
	h.files.files[sourceKey] = []byte("xlsx")

	h.engine = h.newEngine(app.EngineConfig{BatchSize: batchSize})
	return h
}

func (h *harness) newEngine(cfg app.EngineConfig) *app.Engine {
	cfg.Clock = h.clock.Now
	return app.NewEngine(h.store, h.sheets, h.store, h.master, h.files, h.parser, quietLogger(), cfg)
}

func (h *harness) newRecovery(waker app.Waker, cfg app.RecoveryConfig) *app.RecoveryService {
	cfg.Clock = h.clock.Now
	if cfg.StaleThreshold == 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	return app.NewRecoveryService(h.store, h.sheets, h.store, h.files, waker, quietLogger(), cfg)
}

// runQueued claims every claimable sheet and runs it on engine, as an idle worker would.
func (h *harness) runQueued(t *testing.T, engine *app.Engine) {
	t.Helper()
	for {
		sheet, err := h.sheets.ClaimNext(context.Background(), "lease-resumed", h.clock.Now())
		require.NoError(t, err)
		if sheet == nil {
			return
		}
		require.NoError(t, engine.Run(context.Background(), *sheet))
	}
}

func (h *harness) claim(t *testing.T) domain.Sheet {
	t.Helper()
	sheet, err := h.sheets.ClaimNext(context.Background(), "lease-1", h.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, sheet)
	return *sheet
}

func (h *harness) sheet(t *testing.T, id string) domain.Sheet {
	t.Helper()
	sheet, err := h.store.sheet(id)
	require.NoError(t, err)
	return sheet
}

func (h *harness) jobStatus(t *testing.T) domain.JobStatus {
	t.Helper()
	job, err := h.store.Get(context.Background(), h.job.ID)
	require.NoError(t, err)
	return job.Status
}

// runUntil runs the claimed sheet and cancels the run right after the n-th commit of
// kind, leaving the sheet as a crashed worker would.
func (h *harness) runUntil(t *testing.T, kind string, n int) domain.Sheet {
	t.Helper()
	sheet := h.claim(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commits := 0
	h.store.afterCommit = func(got string, _ domain.Sheet) {
		if got != kind {
			return
		}
		commits++
		if commits == n {
			cancel()
		}
	}
	err := h.engine.Run(ctx, sheet)
	h.store.afterCommit = nil
	require.ErrorIs(t, err, context.Canceled)
	return h.sheet(t, sheet.ID)
}

type countingWaker struct {
	calls atomic.Int32
}

func (w *countingWaker) Wake() {
	w.calls.Add(1)
}

func masterKeys(m *memMaster) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.records))
	for key, record := range m.records {
		out[key] = record.SourceSheetID
	}
	return out
}
