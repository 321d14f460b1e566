package migration

import "time"

// Job is one uploaded workbook and the sheets detected in it.
type Job struct {
	ID         string
	FileName   string
	FileKey    string
	FileSize   int64
	FileSHA256 string
	Status     JobStatus
	Sheets     []Sheet
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewJob builds a PENDING job with one PENDING sheet per detected worksheet.
func NewJob(id string, file StoredFile, detected []DetectedSheet, newID func() string, now time.Time) Job {
	job := Job{
		ID:         id,
		FileName:   file.Name,
		FileKey:    file.Key,
		FileSize:   file.Size,
		FileSHA256: file.SHA256,
		Status:     JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, d := range detected {
		job.Sheets = append(job.Sheets, Sheet{
			ID:        newID(),
			JobID:     id,
			Name:      d.Name,
			Type:      d.Type,
			Status:    SheetPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return job
}

// Rollup recomputes the job status from the sheets currently loaded on it.
func (j *Job) Rollup() JobStatus {
	statuses := make([]SheetStatus, 0, len(j.Sheets))
	for _, sheet := range j.Sheets {
		statuses = append(statuses, sheet.Status)
	}
	j.Status = RollupJobStatus(statuses)
	return j.Status
}

// StoredFile is an uploaded workbook persisted in the file store.
type StoredFile struct {
	Name   string
	Key    string
	Size   int64
	SHA256 string
}

// DetectedSheet is a worksheet that passed structure inspection at upload.
type DetectedSheet struct {
	Name string
	Type SheetType
}
