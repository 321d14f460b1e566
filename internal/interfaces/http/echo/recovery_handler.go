package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

type recoverer interface {
	DetectStuck(ctx context.Context) ([]domain.Sheet, error)
	RecoverSheet(ctx context.Context, sheetID string) (app.RecoveryOutcome, error)
	RecoverJob(ctx context.Context, jobID string) ([]app.RecoveryOutcome, error)
}

type RecoveryHandler struct {
	recovery recoverer
}

func NewRecoveryHandler(recovery recoverer) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

func (h *RecoveryHandler) ListStuck(c echo.Context) error {
	sheets, err := h.recovery.DetectStuck(c.Request().Context())
	if err != nil {
		return respondFailure(c, err, "list stuck sheets")
	}

	out := make([]sheetResponse, 0, len(sheets))
	for _, sheet := range sheets {
		resp := toSheetResponse(sheet)
		resp.Status = string(domain.SheetStuck)
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *RecoveryHandler) RecoverSheet(c echo.Context) error {
	var req sheetPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	outcome, err := h.recovery.RecoverSheet(c.Request().Context(), req.SheetID)
	if err != nil {
		return respondFailure(c, err, "recover sheet")
	}

	return c.JSON(http.StatusOK, apiResponse{Data: outcome})
}

func (h *RecoveryHandler) RecoverJob(c echo.Context) error {
	var req jobPath
	if err := bindAndValidate(c, &req); err != nil {
		return respondInvalid(c, err)
	}

	outcomes, err := h.recovery.RecoverJob(c.Request().Context(), req.JobID)
	if err != nil {
		return respondFailure(c, err, "recover job")
	}
	if outcomes == nil {
		outcomes = []app.RecoveryOutcome{}
	}

	return c.JSON(http.StatusOK, apiResponse{Data: outcomes})
}
