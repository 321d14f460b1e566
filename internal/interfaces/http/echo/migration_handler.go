package echo

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
)

const uploadField = "file"

type MigrationHandler struct {
	start         app.StartMigration
	getJob        app.GetJob
	cancelJob     app.CancelJob
	uploadTimeout time.Duration
}

type jobPath struct {
	JobID string `param:"jobId" validate:"required,uuid"`
}

type sheetPath struct {
	SheetID string `param:"sheetId" validate:"required,uuid"`
}

func NewMigrationHandler(start app.StartMigration, getJob app.GetJob, cancelJob app.CancelJob, uploadTimeout time.Duration) *MigrationHandler {
	if uploadTimeout <= 0 {
		uploadTimeout = 5 * time.Minute
	}
	return &MigrationHandler{start: start, getJob: getJob, cancelJob: cancelJob, uploadTimeout: uploadTimeout}
}

// Upload accepts a multipart workbook, creates the job and returns 202. Rows are
// processed in the background.
func (h *MigrationHandler) Upload(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.uploadTimeout)
	defer cancel()
	limitBodyRead(ctx, c)

	header, err := c.FormFile(uploadField)
	if err != nil {
		if ctx.Err() != nil {
			return respondError(c, http.StatusRequestTimeout, "upload_timeout", "upload did not finish in time", nil)
		}
		return respondError(c, http.StatusBadRequest, "invalid_upload", "multipart field \"file\" is required", nil)
	}
	body, err := header.Open()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_upload", "uploaded file cannot be read", nil)
	}
	defer body.Close()

	job, err := h.start.Execute(ctx, app.StartMigrationInput{
		FileName: header.Filename,
		Size:     header.Size,
		Body:     body,
	})
	if err != nil {
		return respondFailure(c, err, "create migration job")
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: toJobResponse(job)})
}

// limitBodyRead bounds the multipart parse by the upload deadline. The connection
// read deadline interrupts a stalled client; bodies without a connection are
// checked between reads.
func limitBodyRead(ctx context.Context, c echo.Context) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = http.NewResponseController(c.Response().Writer).SetReadDeadline(deadline)
	}
	req := c.Request()
	req.Body = deadlineBody{ctx: ctx, ReadCloser: req.Body}
}

type deadlineBody struct {
	ctx context.Context
	io.ReadCloser
}

func (b deadlineBody) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.ReadCloser.Read(p)
}

func (h *MigrationHandler) GetJob(c echo.Context) error {
	var req jobPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	job, err := h.getJob.Execute(c.Request().Context(), req.JobID)
	if err != nil {
		return respondFailure(c, err, "get migration job")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: toJobResponse(job)})
}

// CancelJob requests cooperative cancellation. Workers stop at their next batch
// boundary.
func (h *MigrationHandler) CancelJob(c echo.Context) error {
	var req jobPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	job, err := h.cancelJob.Execute(c.Request().Context(), req.JobID)
	if err != nil {
		return respondFailure(c, err, "cancel migration job")
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: toJobResponse(job)})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}
