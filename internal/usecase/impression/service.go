// Package impression records what each search showed and what got clicked.
package impression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/impression"
	"github.com/kailas-cloud/designdex/internal/worker"
)

// Repository persists impressions and clicks.
type Repository interface {
	Save(ctx context.Context, rec *impression.Record) error
	RecordClick(ctx context.Context, c impression.Click) error
}

// Scheduler runs fire-and-forget tasks.
type Scheduler interface {
	Go(ctx context.Context, name string, fn worker.Task)
}

// Meta describes the search that produced a result list.
type Meta struct {
	RequestID uuid.UUID
	Query     string
	Route     string
	Category  string
	Vector    []float32
}

// Service logs impressions off the request path.
type Service struct {
	repo  Repository
	tasks Scheduler
	now   func() time.Time
}

// New creates an impression service.
func New(repo Repository, tasks Scheduler) *Service {
	return &Service{repo: repo, tasks: tasks, now: time.Now}
}

// Record schedules persistence of results as shown, in order. It never
// blocks on or fails because of the store.
func (s *Service) Record(ctx context.Context, m Meta, results []candidate.Scored) {
	rec := &impression.Record{
		RequestID: m.RequestID,
		Query:     m.Query,
		Route:     m.Route,
		Category:  m.Category,
		Vector:    m.Vector,
		CreatedAt: s.now().UTC(),
		Items:     make([]impression.Item, len(results)),
	}
	for i := range results {
		r := &results[i]
		rec.Items[i] = impression.Item{
			ImageID:    r.ID,
			Position:   i,
			BaseScore:  r.BaseScore,
			FinalScore: r.FinalScore,
			Features:   r.Features(),
		}
	}

	s.tasks.Go(ctx, "impression_log", func(ctx context.Context) error {
		return s.repo.Save(ctx, rec)
	})
}

// Click records a click on imageID shown by search requestID.
func (s *Service) Click(ctx context.Context, requestID, imageID string) error {
	id, err := uuid.Parse(requestID)
	if err != nil {
		return fmt.Errorf("%w: invalid request_id", domain.ErrInvalidQuery)
	}
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return fmt.Errorf("%w: image_id is required", domain.ErrInvalidQuery)
	}
	if err := s.repo.RecordClick(ctx, impression.Click{RequestID: id, ImageID: imageID}); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}
