package migration

import (
	"context"
	"fmt"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type errorLister interface {
	ListByJob(ctx context.Context, jobID string, page domain.Page) (domain.ErrorPage, error)
	ListBySheet(ctx context.Context, sheetID string, page domain.Page) (domain.ErrorPage, error)
}

// ErrorService lists persisted row errors.
type ErrorService struct {
	jobs   jobReader
	sheets sheetReader
	errors errorLister
}

func NewErrorService(jobs jobReader, sheets sheetReader, errors errorLister) *ErrorService {
	return &ErrorService{jobs: jobs, sheets: sheets, errors: errors}
}

func (s *ErrorService) JobErrors(ctx context.Context, jobID string, page domain.Page) (domain.ErrorPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return domain.ErrorPage{}, err
	}
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return domain.ErrorPage{}, err
	}
	result, err := s.errors.ListByJob(ctx, jobID, page)
	if err != nil {
		return domain.ErrorPage{}, fmt.Errorf("%w: %v", ErrQueryMigration, err)
	}
	return result, nil
}

func (s *ErrorService) SheetErrors(ctx context.Context, sheetID string, page domain.Page) (domain.ErrorPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return domain.ErrorPage{}, err
	}
	if _, err := s.sheets.Get(ctx, sheetID); err != nil {
		return domain.ErrorPage{}, err
	}
	result, err := s.errors.ListBySheet(ctx, sheetID, page)
	if err != nil {
		return domain.ErrorPage{}, fmt.Errorf("%w: %v", ErrQueryMigration, err)
	}
	return result, nil
}

func normalizePage(page domain.Page) (domain.Page, error) {
	if page.Number == 0 {
		page.Number = 1
	}
	if page.Size == 0 {
		page.Size = DefaultPageSize
	}
	if page.Number < 1 || page.Size < 1 || page.Size > MaxPageSize {
		return domain.Page{}, fmt.Errorf("%w: page must be >= 1 and page_size between 1 and %d", ErrInvalidPage, MaxPageSize)
	}
	return page, nil
}
