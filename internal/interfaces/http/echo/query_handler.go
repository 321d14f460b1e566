package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

type progressReader interface {
	JobProgress(ctx context.Context, jobID string) (domain.JobProgress, error)
	SheetProgress(ctx context.Context, sheetID string) (domain.SheetProgress, error)
	Watch(ctx context.Context, jobID string, interval time.Duration, emit func(domain.JobProgress) error) error
}

type errorReader interface {
	JobErrors(ctx context.Context, jobID string, page domain.Page) (domain.ErrorPage, error)
	SheetErrors(ctx context.Context, sheetID string, page domain.Page) (domain.ErrorPage, error)
}

// QueryHandler serves progress and row error reads.
type QueryHandler struct {
	progress       progressReader
	errors         errorReader
	streamInterval time.Duration
}

type jobErrorsRequest struct {
	JobID    string `param:"jobId" validate:"required,uuid"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=500"`
}

type sheetErrorsRequest struct {
	SheetID  string `param:"sheetId" validate:"required,uuid"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=500"`
}

func NewQueryHandler(progress progressReader, errors errorReader, streamInterval time.Duration) *QueryHandler {
	if streamInterval <= 0 {
		streamInterval = time.Second
	}
	return &QueryHandler{progress: progress, errors: errors, streamInterval: streamInterval}
}

func (h *QueryHandler) JobProgress(c echo.Context) error {
	var req jobPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	progress, err := h.progress.JobProgress(c.Request().Context(), req.JobID)
	if err != nil {
		return respondFailure(c, err, "get job progress")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: toJobProgressResponse(progress)})
}

func (h *QueryHandler) SheetProgress(c echo.Context) error {
	var req sheetPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	progress, err := h.progress.SheetProgress(c.Request().Context(), req.SheetID)
	if err != nil {
		return respondFailure(c, err, "get sheet progress")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: toSheetProgressResponse(progress)})
}

// StreamProgress sends Server-Sent Events: a "progress" event per tick and a final
// "complete" event once every sheet is terminal.
func (h *QueryHandler) StreamProgress(c echo.Context) error {
	var req jobPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}
	ctx := c.Request().Context()

	// Resolve the job first so that a missing job is still a plain JSON 404.
	first, err := h.progress.JobProgress(ctx, req.JobID)
	if err != nil {
		return respondFailure(c, err, "get job progress")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	if first.Done {
		return writeEvent(res, "complete", toJobProgressResponse(first))
	}

	err = h.progress.Watch(ctx, req.JobID, h.streamInterval, func(progress domain.JobProgress) error {
		event := "progress"
		if progress.Done {
			event = "complete"
		}
		return writeEvent(res, event, toJobProgressResponse(progress))
	})
	if err != nil && ctx.Err() == nil {
		c.Logger().Errorf("stream progress of job %s: %v", req.JobID, err)
		_ = writeEvent(res, "error", errorBody{Code: "internal_error", Message: "progress stream interrupted"})
	}
	return nil
}

func (h *QueryHandler) JobErrors(c echo.Context) error {
	var req jobErrorsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	page, err := h.errors.JobErrors(c.Request().Context(), req.JobID, domain.Page{Number: req.Page, Size: req.PageSize})
	if err != nil {
		return respondFailure(c, err, "list job errors")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: toErrorPageResponse(page)})
}

func (h *QueryHandler) SheetErrors(c echo.Context) error {
	var req sheetErrorsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	page, err := h.errors.SheetErrors(c.Request().Context(), req.SheetID, domain.Page{Number: req.Page, Size: req.PageSize})
	if err != nil {
		return respondFailure(c, err, "list sheet errors")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: toErrorPageResponse(page)})
}

func writeEvent(res *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
