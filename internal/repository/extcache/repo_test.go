package extcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/db"
	"github.com/kailas-cloud/designdex/internal/db/badger"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
)

// Durable tier on an in-memory Badger, the same store the badger driver uses.
func newRepo(t *testing.T) *Repo {
	t.Helper()
	s, err := badger.Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s)
}

func TestPutGet_RoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	key := extension.NewKey("  3D ", category.Logos, extension.Search)

	require.NoError(t, r.Put(ctx, &extension.Entry{
		Key: key, Text: "extruded chrome lettering", Embedding: []float32{0.6, 0.8},
		CreatedAt: now, LastUsedAt: now,
	}))

	got, err := r.Get(ctx, extension.NewKey("3d", category.Logos, extension.Search))
	require.NoError(t, err)
	assert.Equal(t, "extruded chrome lettering", got.Text)
	assert.Equal(t, []float32{0.6, 0.8}, got.Embedding)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestGet_Miss(t *testing.T) {
	r := newRepo(t)
	_, err := r.Get(context.Background(), extension.NewKey("3d", category.Logos, extension.Vibe))
	assert.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestTouch(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := extension.NewKey("3d", category.Logos, extension.Search)
	require.NoError(t, r.Put(ctx, &extension.Entry{
		Key: key, Text: "chrome", Embedding: []float32{1, 0}, CreatedAt: created, LastUsedAt: created,
	}))

	later := created.Add(72 * time.Hour)
	require.NoError(t, r.Touch(ctx, key, later))
	got, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(later))
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, "chrome", got.Text)

	require.NoError(t, r.Touch(ctx, key, created), "older timestamp is ignored")
	got, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(later))

	missing := extension.NewKey("3d", category.Logos, extension.Vibe)
	require.NoError(t, r.Touch(ctx, missing, later))
	_, err = r.Get(ctx, missing)
	assert.ErrorIs(t, err, db.ErrKeyNotFound, "touch never creates entries")
}

func TestDeleteTerm(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	for _, c := range category.Ordered() {
		require.NoError(t, r.Put(ctx, &extension.Entry{Key: extension.NewKey("retro", c, extension.Vibe), Text: "x"}))
	}
	require.NoError(t, r.Put(ctx, &extension.Entry{Key: extension.NewKey("retro", category.Logos, extension.Search), Text: "keep"}))
	require.NoError(t, r.PutAbstractness(ctx, "retro", true))

	require.NoError(t, r.DeleteTerm(ctx, "Retro", extension.Vibe))

	for _, c := range category.Ordered() {
		_, err := r.Get(ctx, extension.NewKey("retro", c, extension.Vibe))
		assert.ErrorIs(t, err, db.ErrKeyNotFound, c)
	}
	_, err := r.Get(ctx, extension.NewKey("retro", category.Logos, extension.Search))
	assert.NoError(t, err, "other modes survive")

	_, found, err := r.Abstractness(ctx, "retro")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAbstractness(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	_, found, err := r.Abstractness(ctx, "cozy")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.PutAbstractness(ctx, "Cozy", true))
	abstract, found, err := r.Abstractness(ctx, "cozy")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, abstract)
}

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Set(context.Context, string, []byte) error   { return f.err }
func (f failingKV) Del(context.Context, ...string) error        { return f.err }

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("down")
	r := New(failingKV{boom})
	ctx := context.Background()

	_, err := r.Get(ctx, extension.NewKey("x", category.Logos, extension.Search))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.Put(ctx, &extension.Entry{}), boom)
	assert.ErrorIs(t, r.DeleteTerm(ctx, "x", extension.Search), boom)
	_, _, err = r.Abstractness(ctx, "x")
	assert.ErrorIs(t, err, boom)
}
