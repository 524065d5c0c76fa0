package concept

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/db/postgres/pgtest"
)

type mockStore struct {
	queryFn func() (pgx.Rows, error)
	calls   int
}

func (m *mockStore) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	m.calls++
	return m.queryFn()
}

func conceptRows() pgx.Rows {
	return pgtest.NewRows(
		[]any{"c1", "Minimal", []float32{1, 0}, []string{"c2"}},
		[]any{"c2", "Maximal", []float32{0, 1}, []string{"c1"}},
	)
}

func TestConcepts_LoadsAndCaches(t *testing.T) {
	ms := &mockStore{queryFn: func() (pgx.Rows, error) { return conceptRows(), nil }}
	r := New(ms, time.Minute, zap.NewNop())

	set, err := r.Concepts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("len = %d", set.Len())
	}
	opp, ok := set.Opposite("minimal")
	if !ok || opp.Label != "Maximal" {
		t.Errorf("opposite = %+v, %v", opp, ok)
	}

	if _, err := r.Concepts(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ms.calls != 1 {
		t.Errorf("store queried %d times, want 1", ms.calls)
	}
}

func TestConcepts_RefreshesWhenStale(t *testing.T) {
	ms := &mockStore{queryFn: func() (pgx.Rows, error) { return conceptRows(), nil }}
	r := New(ms, time.Minute, zap.NewNop())
	now := time.Now()
	r.now = func() time.Time { return now }

	_, _ = r.Concepts(context.Background())
	now = now.Add(2 * time.Minute)
	_, _ = r.Concepts(context.Background())

	if ms.calls != 2 {
		t.Errorf("store queried %d times, want 2", ms.calls)
	}
}

func TestConcepts_StaleOnReloadFailure(t *testing.T) {
	ms := &mockStore{queryFn: func() (pgx.Rows, error) { return conceptRows(), nil }}
	r := New(ms, time.Minute, zap.NewNop())
	now := time.Now()
	r.now = func() time.Time { return now }

	first, err := r.Concepts(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	ms.queryFn = func() (pgx.Rows, error) { return nil, errors.New("pg down") }
	second, err := r.Concepts(context.Background())
	if err != nil {
		t.Fatalf("stale snapshot expected, got error %v", err)
	}
	if second != first {
		t.Error("expected the previous snapshot")
	}
}

func TestConcepts_FirstLoadFailure(t *testing.T) {
	boom := errors.New("pg down")
	ms := &mockStore{queryFn: func() (pgx.Rows, error) { return nil, boom }}
	if _, err := New(ms, time.Minute, zap.NewNop()).Concepts(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
