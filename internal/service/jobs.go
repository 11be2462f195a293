package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/jobsmv/internal/cursor"
	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/repository"
)

// JobService lists job postings page by page.
type JobService interface {
	// ListForEmployer returns the employer's own postings in any status.
	ListForEmployer(ctx context.Context, employerID uuid.UUID, rawCursor string, pageSize int) (cursor.Page[model.Job], error)
	// ListPublished returns published postings of every employer.
	ListPublished(ctx context.Context, rawCursor string, pageSize int) (cursor.Page[model.Job], error)
}

type JobServiceImpl struct {
	repo        repository.JobRepository
	defaultPage int
	maxPage     int
}

// NewJobService constructs JobService with page size bounds.
func NewJobService(repo repository.JobRepository, defaultPage, maxPage int) *JobServiceImpl {
	if maxPage <= 0 {
		maxPage = cursor.MaxPageSize
	}
	if defaultPage <= 0 || defaultPage > maxPage {
		defaultPage = min(cursor.DefaultPageSize, maxPage)
	}
	return &JobServiceImpl{repo: repo, defaultPage: defaultPage, maxPage: maxPage}
}

// ListForEmployer implements JobService.
func (s *JobServiceImpl) ListForEmployer(ctx context.Context, employerID uuid.UUID, rawCursor string, pageSize int) (cursor.Page[model.Job], error) {
	if employerID == uuid.Nil {
		return cursor.Page[model.Job]{}, fmt.Errorf("%w: empty employerID", errs.ErrValidation)
	}
	return s.list(ctx, model.JobFilter{EmployerID: &employerID}, rawCursor, pageSize)
}

// ListPublished implements JobService.
func (s *JobServiceImpl) ListPublished(ctx context.Context, rawCursor string, pageSize int) (cursor.Page[model.Job], error) {
	st := model.JobPublished
	return s.list(ctx, model.JobFilter{Status: &st}, rawCursor, pageSize)
}

func (s *JobServiceImpl) list(ctx context.Context, f model.JobFilter, rawCursor string, pageSize int) (cursor.Page[model.Job], error) {
	size := cursor.ClampPageSize(pageSize, s.defaultPage, s.maxPage)
	fetch := func(ctx context.Context, after *uuid.UUID, limit int) ([]model.Job, error) {
		return s.repo.List(ctx, f, after, limit)
	}
	return cursor.Paginate(ctx, size, rawCursor, fetch, jobID)
}

func jobID(j model.Job) uuid.UUID { return j.ID }
