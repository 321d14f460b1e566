package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

const uniqueViolation = "23505"

var archiveColumns = []string{
	"id", "sheet_type", "duplicate_key",
	"unit_code", "contract_number", "cif", "customer_name", "document_flow",
	"credit_term_category", "document_type", "disbursement_date", "due_date",
	"destruction_date", "credit_term_months",
	"delivery_responsibility", "occurrence_month", "product", "volume_count", "notes",
	"box_code", "source_system", "migration_job_id", "source_sheet_id", "source_row_number",
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MasterRepository writes promoted records to archive_records. The unique duplicate
// key makes promotion idempotent: a key already present is reported as a conflict
// together with the sheet that owns it.
type MasterRepository struct {
	pool *pgxpool.Pool
}

func NewMasterRepository(pool *pgxpool.Pool) *MasterRepository {
	return &MasterRepository{pool: pool}
}

func (r *MasterRepository) ExistingKeys(ctx context.Context, keys []string) (map[string]string, error) {
	return ownersOf(ctx, r.pool, keys)
}

// Promote inserts records through a COPY into a temporary table. When the batch holds
// a row the database refuses, the records are inserted one at a time so that only the
// offending rows are rejected.
func (r *MasterRepository) Promote(ctx context.Context, records []domain.MasterRecord) (domain.PromotionResult, error) {
	if len(records) == 0 {
		return domain.PromotionResult{}, nil
	}

	inserted, err := r.promoteBatch(ctx, records)
	if err != nil {
		if !isDataError(err) {
			return nil, err
		}
		return r.promoteEach(ctx, records)
	}

	result := make(domain.PromotionResult, len(records))
	var conflicted []string
	for _, record := range records {
		if _, ok := inserted[record.DuplicateKey]; ok {
			result[record.DuplicateKey] = domain.PromotionOutcome{Status: domain.PromotionInserted}
			continue
		}
		conflicted = append(conflicted, record.DuplicateKey)
	}
	if err := r.markConflicts(ctx, result, conflicted); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MasterRepository) promoteBatch(ctx context.Context, records []domain.MasterRecord) (map[string]struct{}, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
CREATE TEMP TABLE incoming_archive_records
  (LIKE archive_records INCLUDING DEFAULTS)
  ON COMMIT DROP
`); err != nil {
		return nil, fmt.Errorf("create incoming table: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, archiveValues(record))
	}
	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"incoming_archive_records"},
		archiveColumns,
		pgx.CopyFromRows(rows),
	); err != nil {
		return nil, fmt.Errorf("copy archive records: %w", err)
	}

	columns := strings.Join(archiveColumns, ", ")
	inserted, err := tx.Query(ctx, `
INSERT INTO archive_records (`+columns+`)
SELECT `+columns+` FROM incoming_archive_records
ON CONFLICT (duplicate_key) DO NOTHING
RETURNING duplicate_key
`)
	if err != nil {
		return nil, fmt.Errorf("insert archive records: %w", err)
	}
	keys, err := collectKeys(inserted)
	if err != nil {
		return nil, fmt.Errorf("insert archive records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}
	return keys, nil
}

func (r *MasterRepository) promoteEach(ctx context.Context, records []domain.MasterRecord) (domain.PromotionResult, error) {
	placeholders := make([]string, len(archiveColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insert := `INSERT INTO archive_records (` + strings.Join(archiveColumns, ", ") + `)
VALUES (` + strings.Join(placeholders, ", ") + `)
ON CONFLICT (duplicate_key) DO NOTHING
RETURNING duplicate_key`

	result := make(domain.PromotionResult, len(records))
	var conflicted []string
	for _, record := range records {
		var key string
		err := r.pool.QueryRow(ctx, insert, archiveValues(record)...).Scan(&key)
		switch {
		case err == nil:
			result[record.DuplicateKey] = domain.PromotionOutcome{Status: domain.PromotionInserted}
		case errors.Is(err, pgx.ErrNoRows):
			conflicted = append(conflicted, record.DuplicateKey)
		case isDataError(err):
			result[record.DuplicateKey] = domain.PromotionOutcome{
				Status: domain.PromotionRejected,
				Reason: rejectionReason(err),
			}
		default:
			return nil, fmt.Errorf("insert archive record %s: %w", record.DuplicateKey, err)
		}
	}
	if err := r.markConflicts(ctx, result, conflicted); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MasterRepository) markConflicts(ctx context.Context, result domain.PromotionResult, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	owners, err := ownersOf(ctx, r.pool, keys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		result[key] = domain.PromotionOutcome{Status: domain.PromotionConflict, OwnerSheetID: owners[key]}
	}
	return nil
}

func ownersOf(ctx context.Context, q querier, keys []string) (map[string]string, error) {
	owners := make(map[string]string)
	if len(keys) == 0 {
		return owners, nil
	}

	rows, err := q.Query(ctx, `
SELECT duplicate_key, source_sheet_id::text
FROM archive_records
WHERE duplicate_key = ANY($1)
`, keys)
	if err != nil {
		return nil, fmt.Errorf("lookup archive keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, owner string
		if err := rows.Scan(&key, &owner); err != nil {
			return nil, fmt.Errorf("scan archive key: %w", err)
		}
		owners[key] = owner
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup archive keys: %w", err)
	}
	return owners, nil
}

func collectKeys(rows pgx.Rows) (map[string]struct{}, error) {
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func archiveValues(record domain.MasterRecord) []any {
	return []any{
		uuid.New(),
		string(record.SheetType),
		record.DuplicateKey,
		nullableText(record.UnitCode),
		nullableText(record.ContractNumber),
		nullableText(record.CIF),
		nullableText(record.CustomerName),
		nullableText(record.DocumentFlow),
		nullableText(record.CreditTermCategory),
		nullableText(record.DocumentType),
		record.DisbursementDate,
		record.DueDate,
		record.DestructionDate,
		record.CreditTermMonths,
		nullableText(record.DeliveryResponsibility),
		nullableText(record.OccurrenceMonth),
		nullableText(record.Product),
		record.VolumeCount,
		nullableText(record.Notes),
		nullableText(record.BoxCode),
		record.SourceSystem,
		uuidValue(record.MigrationJobID),
		uuidValue(record.SourceSheetID),
		record.SourceRowNumber,
	}
}

// uuidValue hands pgx a binary-encodable uuid. A malformed id is passed through so
// the database rejects that row.
func uuidValue(id string) any {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return id
}

// isDataError reports whether the database refused the data itself, as opposed to
// the connection or the statement failing.
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22":
		return true
	case "23":
		return pgErr.Code != uniqueViolation
	}
	return false
}

func rejectionReason(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}
