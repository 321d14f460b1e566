package echo

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func respondError(c echo.Context, status int, code, message string, details any) error {
	return c.JSON(status, apiResponse{Error: &errorBody{Code: code, Message: message, Details: details}})
}

// respondFailure maps application and domain errors to the response envelope. action
// names what failed for 500 bodies, which never carry the Go error text.
func respondFailure(c echo.Context, err error, action string) error {
	var structure *domain.StructureError
	switch {
	case errors.As(err, &structure):
		details := map[string]any{}
		if structure.Sheet != "" {
			details["sheet"] = structure.Sheet
		}
		if len(structure.MissingColumns) > 0 {
			details["missing_columns"] = structure.MissingColumns
		}
		return respondError(c, http.StatusBadRequest, "invalid_workbook", structure.Error(), details)
	case errors.Is(err, app.ErrInvalidUpload):
		return respondError(c, http.StatusBadRequest, "invalid_upload", err.Error(), nil)
	case errors.Is(err, app.ErrInvalidPage):
		return respondError(c, http.StatusBadRequest, "invalid_page", err.Error(), nil)
	case errors.Is(err, app.ErrUploadTimeout):
		return respondError(c, http.StatusRequestTimeout, "upload_timeout", "upload did not finish in time", nil)
	case errors.Is(err, domain.ErrJobNotFound):
		return respondError(c, http.StatusNotFound, "not_found", "migration job not found", nil)
	case errors.Is(err, domain.ErrSheetNotFound):
		return respondError(c, http.StatusNotFound, "not_found", "migration sheet not found", nil)
	}

	c.Logger().Errorf("%s: %v", action, err)
	return respondError(c, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
}

func respondInvalid(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return respondError(c, http.StatusBadRequest, "bad_request", "invalid request", nil)
	}
	fields := make([]string, 0, len(verrs))
	for _, verr := range verrs {
		element := fmt.Sprintf("field '%s' failed on the '%s' tag", verr.Field(), verr.Tag())
		if verr.Param() != "" {
			element = fmt.Sprintf("%s (%s)", element, verr.Param())
		}
		fields = append(fields, element)
	}
	return respondError(c, http.StatusBadRequest, "bad_request", "invalid request", fields)
}

type counterResponse struct {
	TotalRows     int64 `json:"total_rows"`
	ProcessedRows int64 `json:"processed_rows"`
	ValidRows     int64 `json:"valid_rows"`
	InvalidRows   int64 `json:"invalid_rows"`
	SkippedRows   int64 `json:"skipped_rows"`
	DuplicateRows int64 `json:"duplicate_rows"`
	ExistingRows  int64 `json:"existing_rows"`
	PromotedRows  int64 `json:"promoted_rows"`
}

type sheetResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
	counterResponse
	ProgressPercent  float64    `json:"progress_percent"`
	RecoveryAttempts int        `json:"recovery_attempts"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat    *time.Time `json:"last_heartbeat,omitempty"`
}

type jobResponse struct {
	ID         string          `json:"id"`
	FileName   string          `json:"file_name"`
	FileSize   int64           `json:"file_size"`
	FileSHA256 string          `json:"file_sha256"`
	Status     string          `json:"status"`
	Sheets     []sheetResponse `json:"sheets"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type sheetProgressResponse struct {
	SheetID   string `json:"sheet_id"`
	JobID     string `json:"job_id"`
	SheetName string `json:"sheet_name"`
	SheetType string `json:"sheet_type"`
	Status    string `json:"status"`
	counterResponse
	ProgressPercent           float64    `json:"progress_percent"`
	ElapsedSeconds            float64    `json:"elapsed_seconds"`
	EstimatedRemainingSeconds float64    `json:"estimated_remaining_seconds"`
	StartedAt                 *time.Time `json:"started_at,omitempty"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat             *time.Time `json:"last_heartbeat,omitempty"`
	ErrorMessage              string     `json:"error_message,omitempty"`
}

type jobProgressResponse struct {
	JobID           string                  `json:"job_id"`
	Status          string                  `json:"status"`
	ProgressPercent float64                 `json:"progress_percent"`
	Done            bool                    `json:"done"`
	Totals          counterResponse         `json:"totals"`
	Sheets          []sheetProgressResponse `json:"sheets"`
}

type rowErrorResponse struct {
	ID          string            `json:"id"`
	SheetID     string            `json:"sheet_id"`
	SheetName   string            `json:"sheet_name"`
	RowNumber   int               `json:"row_number"`
	BatchNumber int               `json:"batch_number"`
	Code        string            `json:"code"`
	Field       string            `json:"field,omitempty"`
	Message     string            `json:"message"`
	Rule        string            `json:"rule,omitempty"`
	RawData     map[string]string `json:"raw_data,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type errorPageResponse struct {
	Items    []rowErrorResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

func toCounterResponse(c domain.Counters) counterResponse {
	return counterResponse{
		TotalRows:     c.TotalRows,
		ProcessedRows: c.ProcessedRows,
		ValidRows:     c.ValidRows,
		InvalidRows:   c.InvalidRows,
		SkippedRows:   c.SkippedRows,
		DuplicateRows: c.DuplicateRows,
		ExistingRows:  c.ExistingRows,
		PromotedRows:  c.PromotedRows,
	}
}

func toSheetResponse(sheet domain.Sheet) sheetResponse {
	return sheetResponse{
		ID:               sheet.ID,
		Name:             sheet.Name,
		Type:             string(sheet.Type),
		Status:           string(sheet.Status),
		counterResponse:  toCounterResponse(sheet.Counters),
		ProgressPercent:  sheet.Counters.Percent(),
		RecoveryAttempts: sheet.RecoveryAttempts,
		ErrorMessage:     sheet.ErrorMessage,
		StartedAt:        sheet.StartedAt,
		CompletedAt:      sheet.CompletedAt,
		LastHeartbeat:    sheet.LastHeartbeat,
	}
}

func toJobResponse(job domain.Job) jobResponse {
	out := jobResponse{
		ID:         job.ID,
		FileName:   job.FileName,
		FileSize:   job.FileSize,
		FileSHA256: job.FileSHA256,
		Status:     string(job.Status),
		Sheets:     make([]sheetResponse, 0, len(job.Sheets)),
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	for _, sheet := range job.Sheets {
		out.Sheets = append(out.Sheets, toSheetResponse(sheet))
	}
	return out
}

func toSheetProgressResponse(p domain.SheetProgress) sheetProgressResponse {
	return sheetProgressResponse{
		SheetID:                   p.SheetID,
		JobID:                     p.JobID,
		SheetName:                 p.SheetName,
		SheetType:                 string(p.SheetType),
		Status:                    string(p.Status),
		counterResponse:           toCounterResponse(p.Counters),
		ProgressPercent:           p.ProgressPercent,
		ElapsedSeconds:            p.Elapsed.Seconds(),
		EstimatedRemainingSeconds: p.EstimatedRemaining.Seconds(),
		StartedAt:                 p.StartedAt,
		CompletedAt:               p.CompletedAt,
		LastHeartbeat:             p.LastHeartbeat,
		ErrorMessage:              p.ErrorMessage,
	}
}

func toJobProgressResponse(p domain.JobProgress) jobProgressResponse {
	out := jobProgressResponse{
		JobID:           p.JobID,
		Status:          string(p.Status),
		ProgressPercent: p.ProgressPercent,
		Done:            p.Done,
		Totals:          toCounterResponse(p.Totals),
		Sheets:          make([]sheetProgressResponse, 0, len(p.Sheets)),
	}
	for _, sheet := range p.Sheets {
		out.Sheets = append(out.Sheets, toSheetProgressResponse(sheet))
	}
	return out
}

func toErrorPageResponse(page domain.ErrorPage) errorPageResponse {
	out := errorPageResponse{
		Items:    make([]rowErrorResponse, 0, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, item := range page.Items {
		out.Items = append(out.Items, rowErrorResponse{
			ID:          item.ID,
			SheetID:     item.SheetID,
			SheetName:   item.SheetName,
			RowNumber:   item.RowNumber,
			BatchNumber: item.BatchNumber,
			Code:        string(item.Code),
			Field:       string(item.Field),
			Message:     item.Message,
			Rule:        item.Rule,
			RawData:     item.RawData,
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}
