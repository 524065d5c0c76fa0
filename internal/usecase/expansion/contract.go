package expansion

import (
	"context"
	"time"

	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/worker"
)

// Generator produces raw text for a prompt (LLM provider).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Durable is the persistent cache tier.
type Durable interface {
	Get(ctx context.Context, key extension.Key) (*extension.Entry, error)
	Put(ctx context.Context, e *extension.Entry) error
	Touch(ctx context.Context, key extension.Key, at time.Time) error
	DeleteTerm(ctx context.Context, term string, mode extension.Mode) error
	Abstractness(ctx context.Context, term string) (abstract, found bool, err error)
	PutAbstractness(ctx context.Context, term string, abstract bool) error
}

// Scheduler runs fire-and-forget tasks.
type Scheduler interface {
	Go(ctx context.Context, name string, fn worker.Task)
}
