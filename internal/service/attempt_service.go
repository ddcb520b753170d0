package service

import (
	"context"

	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/response"
)

// OutcomeLister reads the outcome log.
type OutcomeLister interface {
	ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]model.AttemptOutcome, int, error)
}

// AttemptService serves a candidate's attempt history.
type AttemptService struct {
	repo OutcomeLister
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo OutcomeLister) *AttemptService {
	return &AttemptService{repo: repo}
}

// ListByCandidate returns a page of the candidate's finished attempts, newest first.
func (s *AttemptService) ListByCandidate(ctx context.Context, candidateID string, page, perPage int) ([]model.AttemptOutcome, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	outcomes, total, err := s.repo.ListByCandidate(ctx, candidateID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if outcomes == nil {
		outcomes = []model.AttemptOutcome{}
	}
	return outcomes, response.NewPagination(page, perPage, total), nil
}
