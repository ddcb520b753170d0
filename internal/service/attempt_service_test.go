package service

import (
	"context"
	"testing"

	"github.com/stemsi/quizrunner/internal/model"
)

type fakeLister struct {
	gotLimit, gotOffset int
	total               int
}

func (f *fakeLister) ListByCandidate(_ context.Context, _ string, limit, offset int) ([]model.AttemptOutcome, int, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return nil, f.total, nil
}

func TestAttemptServicePaging(t *testing.T) {
	tests := []struct {
		name                 string
		page, perPage        int
		wantLimit, wantOff   int
		wantPage, wantPages  int
	}{
		{name: "defaults", page: 0, perPage: 0, wantLimit: 10, wantOff: 0, wantPage: 1, wantPages: 3},
		{name: "second page", page: 2, perPage: 10, wantLimit: 10, wantOff: 10, wantPage: 2, wantPages: 3},
		{name: "capped", page: 1, perPage: 500, wantLimit: 100, wantOff: 0, wantPage: 1, wantPages: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeLister{total: 25}
			svc := NewAttemptService(repo)

			items, p, err := svc.ListByCandidate(context.Background(), "cand-1", tt.page, tt.perPage)
			if err != nil {
				t.Fatalf("ListByCandidate() error = %v", err)
			}
			if items == nil {
				t.Error("items should be an empty slice, not nil")
			}
			if repo.gotLimit != tt.wantLimit || repo.gotOffset != tt.wantOff {
				t.Errorf("limit/offset = %d/%d, want %d/%d", repo.gotLimit, repo.gotOffset, tt.wantLimit, tt.wantOff)
			}
			if p.Page != tt.wantPage || p.TotalPages != tt.wantPages || p.TotalItems != 25 {
				t.Errorf("pagination = %+v", p)
			}
		})
	}
}
