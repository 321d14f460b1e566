package repository

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type stagingTable interface {
	name() string
	upsert(tx *gorm.DB, rows []domain.StagingRow) error
	updateMeta(tx *gorm.DB, row domain.StagingRow) error
	find(query *gorm.DB) ([]domain.StagingRow, error)
	// deleteFrom removes the sheet's rows after afterRow.
	deleteFrom(tx *gorm.DB, sheetID string, afterRow int) error
}

type typedTable[M any] struct {
	table    string
	toModel  func(domain.StagingRow) (M, error)
	toDomain func(M) (domain.StagingRow, error)
}

func (t typedTable[M]) name() string { return t.table }

// upsert inserts staged rows. A row staged again after a lost commit replaces the
// earlier copy.
func (t typedTable[M]) upsert(tx *gorm.DB, rows []domain.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]M, 0, len(rows))
	for _, row := range rows {
		m, err := t.toModel(row)
		if err != nil {
			return err
		}
		batch = append(batch, m)
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sheet_id"}, {Name: "row_number"}},
		UpdateAll: true,
	}).CreateInBatches(&batch, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.table, err)
	}
	return nil
}

func (t typedTable[M]) updateMeta(tx *gorm.DB, row domain.StagingRow) error {
	meta, err := metaModel(row)
	if err != nil {
		return err
	}
	res := tx.Table(t.table).Where("id = ?", row.ID).Updates(map[string]any{
		"batch_number":       meta.BatchNumber,
		"status":             meta.Status,
		"validation_errors":  meta.Errors,
		"normalized_data":    meta.Normalized,
		"duplicate_key":      meta.DuplicateKey,
		"is_duplicate":       meta.IsDuplicate,
		"master_data_exists": meta.MasterDataExists,
		"inserted_to_master": meta.InsertedToMaster,
		"inserted_at":        meta.InsertedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update %s row %d: %w", t.table, row.RowNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s row %d is missing", domain.ErrCorruptStagingRow, t.table, row.RowNumber)
	}
	return nil
}

func (t typedTable[M]) find(query *gorm.DB) ([]domain.StagingRow, error) {
	var found []M
	if err := query.Order("row_number").Find(&found).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", t.table, err)
	}
	rows := make([]domain.StagingRow, 0, len(found))
	for _, m := range found {
		row, err := t.toDomain(m)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (t typedTable[M]) deleteFrom(tx *gorm.DB, sheetID string, afterRow int) error {
	var zero M
	err := tx.Where("sheet_id = ? AND row_number > ?", sheetID, afterRow).Delete(&zero).Error
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.table, err)
	}
	return nil
}

func metaModel(row domain.StagingRow) (models.StagingMeta, error) {
	meta := models.StagingMeta{
		ID:               row.ID,
		JobID:            row.JobID,
		BatchNumber:      row.BatchNumber,
		Status:           string(row.Status),
		DuplicateKey:     row.DuplicateKey,
		IsDuplicate:      row.IsDuplicate,
		MasterDataExists: row.MasterDataExists,
		InsertedToMaster: row.InsertedToMaster,
		InsertedAt:       row.InsertedAt,
		CreatedAt:        row.CreatedAt,
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Status == "" {
		meta.Status = string(domain.RowPending)
	}
	if len(row.Errors) > 0 {
		encoded, err := json.Marshal(row.Errors)
		if err != nil {
			return models.StagingMeta{}, fmt.Errorf("encode validation errors: %w", err)
		}
		meta.Errors = encoded
	}
	if row.Normalized != nil {
		encoded, err := json.Marshal(row.Normalized)
		if err != nil {
			return models.StagingMeta{}, fmt.Errorf("encode normalized record: %w", err)
		}
		meta.Normalized = encoded
	}
	return meta, nil
}

func metaRow(meta models.StagingMeta, sheetID string, rowNumber int) (domain.StagingRow, error) {
	status, err := domain.ParseRowStatus(meta.Status)
	if err != nil {
		return domain.StagingRow{}, fmt.Errorf("%w: row %d: %v", domain.ErrCorruptStagingRow, rowNumber, err)
	}
	row := domain.StagingRow{
		ID:               meta.ID,
		JobID:            meta.JobID,
		SheetID:          sheetID,
		RowNumber:        rowNumber,
		BatchNumber:      meta.BatchNumber,
		Status:           status,
		DuplicateKey:     meta.DuplicateKey,
		IsDuplicate:      meta.IsDuplicate,
		MasterDataExists: meta.MasterDataExists,
		InsertedToMaster: meta.InsertedToMaster,
		InsertedAt:       utcPtr(meta.InsertedAt),
		CreatedAt:        meta.CreatedAt.UTC(),
	}
	if len(meta.Errors) > 0 {
		if err := json.Unmarshal(meta.Errors, &row.Errors); err != nil {
			return domain.StagingRow{}, fmt.Errorf("%w: row %d: validation errors: %v", domain.ErrCorruptStagingRow, rowNumber, err)
		}
	}
	if len(meta.Normalized) > 0 {
		var normalized domain.MasterRecord
		if err := json.Unmarshal(meta.Normalized, &normalized); err != nil {
			return domain.StagingRow{}, fmt.Errorf("%w: row %d: normalized record: %v", domain.ErrCorruptStagingRow, rowNumber, err)
		}
		row.Normalized = &normalized
	}
	return row, nil
}

func wrongRecord(row domain.StagingRow, want domain.SheetType) error {
	return fmt.Errorf("%w: row %d does not hold a %s record", domain.ErrCorruptStagingRow, row.RowNumber, string(want))
}

func contractModel(row domain.StagingRow) (models.StagingContractRow, error) {
	rec, ok := row.Record.(*domain.ContractRecord)
	if !ok {
		return models.StagingContractRow{}, wrongRecord(row, domain.SheetTypeContract)
	}
	meta, err := metaModel(row)
	if err != nil {
		return models.StagingContractRow{}, err
	}
	return models.StagingContractRow{
		StagingMeta:        meta,
		SheetID:            row.SheetID,
		RowNumber:          row.RowNumber,
		UnitCode:           rec.UnitCode,
		ContractNumber:     rec.ContractNumber,
		CIF:                rec.CIF,
		CustomerName:       rec.CustomerName,
		DocumentFlow:       rec.DocumentFlow,
		CreditTermCategory: rec.CreditTermCategory,
		DocumentType:       rec.DocumentType,
		DisbursementDate:   rec.DisbursementDate,
		DueDate:            rec.DueDate,
		DestructionDate:    rec.DestructionDate,
		BoxCode:            rec.BoxCode,
	}, nil
}

func contractRow(m models.StagingContractRow) (domain.StagingRow, error) {
	row, err := metaRow(m.StagingMeta, m.SheetID, m.RowNumber)
	if err != nil {
		return domain.StagingRow{}, err
	}
	row.Record = &domain.ContractRecord{
		UnitCode:           m.UnitCode,
		ContractNumber:     m.ContractNumber,
		CIF:                m.CIF,
		CustomerName:       m.CustomerName,
		DocumentFlow:       m.DocumentFlow,
		CreditTermCategory: m.CreditTermCategory,
		DocumentType:       m.DocumentType,
		DisbursementDate:   m.DisbursementDate,
		DueDate:            m.DueDate,
		DestructionDate:    m.DestructionDate,
		BoxCode:            m.BoxCode,
	}
	return row, nil
}

func cifModel(row domain.StagingRow) (models.StagingCIFRow, error) {
	rec, ok := row.Record.(*domain.CIFRecord)
	if !ok {
		return models.StagingCIFRow{}, wrongRecord(row, domain.SheetTypeCIF)
	}
	meta, err := metaModel(row)
	if err != nil {
		return models.StagingCIFRow{}, err
	}
	return models.StagingCIFRow{
		StagingMeta:        meta,
		SheetID:            row.SheetID,
		RowNumber:          row.RowNumber,
		UnitCode:           rec.UnitCode,
		CIF:                rec.CIF,
		CustomerName:       rec.CustomerName,
		DocumentFlow:       rec.DocumentFlow,
		CreditTermCategory: rec.CreditTermCategory,
		DocumentType:       rec.DocumentType,
		DisbursementDate:   rec.DisbursementDate,
		DueDate:            rec.DueDate,
		DestructionDate:    rec.DestructionDate,
		BoxCode:            rec.BoxCode,
	}, nil
}

func cifRow(m models.StagingCIFRow) (domain.StagingRow, error) {
	row, err := metaRow(m.StagingMeta, m.SheetID, m.RowNumber)
	if err != nil {
		return domain.StagingRow{}, err
	}
	row.Record = &domain.CIFRecord{
		UnitCode:           m.UnitCode,
		CIF:                m.CIF,
		CustomerName:       m.CustomerName,
		DocumentFlow:       m.DocumentFlow,
		CreditTermCategory: m.CreditTermCategory,
		DocumentType:       m.DocumentType,
		DisbursementDate:   m.DisbursementDate,
		DueDate:            m.DueDate,
		DestructionDate:    m.DestructionDate,
		BoxCode:            m.BoxCode,
	}
	return row, nil
}

func volumeModel(row domain.StagingRow) (models.StagingVolumeRow, error) {
	rec, ok := row.Record.(*domain.VolumeRecord)
	if !ok {
		return models.StagingVolumeRow{}, wrongRecord(row, domain.SheetTypeVolume)
	}
	meta, err := metaModel(row)
	if err != nil {
		return models.StagingVolumeRow{}, err
	}
	return models.StagingVolumeRow{
		StagingMeta:            meta,
		SheetID:                row.SheetID,
		RowNumber:              row.RowNumber,
		UnitCode:               rec.UnitCode,
		DeliveryResponsibility: rec.DeliveryResponsibility,
		OccurrenceMonth:        rec.OccurrenceMonth,
		Product:                rec.Product,
		BoxCode:                rec.BoxCode,
		VolumeCount:            rec.VolumeCount,
		Notes:                  rec.Notes,
	}, nil
}

func volumeRow(m models.StagingVolumeRow) (domain.StagingRow, error) {
	row, err := metaRow(m.StagingMeta, m.SheetID, m.RowNumber)
	if err != nil {
		return domain.StagingRow{}, err
	}
	row.Record = &domain.VolumeRecord{
		UnitCode:               m.UnitCode,
		DeliveryResponsibility: m.DeliveryResponsibility,
		OccurrenceMonth:        m.OccurrenceMonth,
		Product:                m.Product,
		BoxCode:                m.BoxCode,
		VolumeCount:            m.VolumeCount,
		Notes:                  m.Notes,
	}
	return row, nil
}
