package extcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kailas-cloud/designdex/internal/db"
	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
)

// Key prefixes of the durable tier.
var (
	extPrefix      = domain.KeyPrefix + "ext:"
	abstractPrefix = domain.KeyPrefix + "abstract:"
)

// KV is the durable key-value tier. Redis and Badger both satisfy it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
}

type record struct {
	Term       string    `msgpack:"t"`
	Text       string    `msgpack:"x"`
	Embedding  []float32 `msgpack:"e"`
	CreatedAt  time.Time `msgpack:"c"`
	LastUsedAt time.Time `msgpack:"u"`
}

// Repo stores extension entries and abstractness verdicts.
type Repo struct {
	kv KV
}

// New creates the durable cache repository.
func New(kv KV) *Repo {
	return &Repo{kv: kv}
}

// Get loads an entry. A miss returns db.ErrKeyNotFound.
func (r *Repo) Get(ctx context.Context, key extension.Key) (*extension.Entry, error) {
	data, err := r.kv.Get(ctx, entryKey(key))
	if err != nil {
		return nil, fmt.Errorf("get extension %s: %w", key, err)
	}
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode extension %s: %w", key, err)
	}
	// sha256 collisions aside, a mismatching term means a foreign writer.
	if rec.Term != key.Term {
		return nil, fmt.Errorf("extension %s: %w", key, db.ErrKeyNotFound)
	}
	return &extension.Entry{
		Key:        key,
		Text:       rec.Text,
		Embedding:  rec.Embedding,
		CreatedAt:  rec.CreatedAt,
		LastUsedAt: rec.LastUsedAt,
	}, nil
}

// Put upserts an entry.
func (r *Repo) Put(ctx context.Context, e *extension.Entry) error {
	data, err := msgpack.Marshal(&record{
		Term:       e.Key.Term,
		Text:       e.Text,
		Embedding:  e.Embedding,
		CreatedAt:  e.CreatedAt,
		LastUsedAt: e.LastUsedAt,
	})
	if err != nil {
		return fmt.Errorf("encode extension: %w", err)
	}
	if err := r.kv.Set(ctx, entryKey(e.Key), data); err != nil {
		return fmt.Errorf("put extension %s: %w", e.Key, err)
	}
	return nil
}

// Touch moves the last-used time of an entry forward to at. Missing entries
// and older timestamps are ignored.
// TODO: switch to a compare-and-set once KV exposes one; a DeleteTerm landing
// between the Get and the Put re-creates the entry.
func (r *Repo) Touch(ctx context.Context, key extension.Key, at time.Time) error {
	e, err := r.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("touch: %w", err)
	}
	if !at.After(e.LastUsedAt) {
		return nil
	}
	e.LastUsedAt = at
	return r.Put(ctx, e)
}

// DeleteTerm removes every category of term in mode, the query-wide
// expansion and the abstractness verdict.
func (r *Repo) DeleteTerm(ctx context.Context, term string, mode extension.Mode) error {
	keys := make([]string, 0, len(category.Ordered())+2)
	for _, c := range category.Ordered() {
		keys = append(keys, entryKey(extension.NewKey(term, c, mode)))
	}
	keys = append(keys,
		entryKey(extension.NewKey(term, category.All, extension.Expand)),
		abstractKey(term),
	)
	if err := r.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete term: %w", err)
	}
	return nil
}

// Abstractness returns a stored verdict. found is false on a miss.
func (r *Repo) Abstractness(ctx context.Context, term string) (abstract, found bool, err error) {
	data, err := r.kv.Get(ctx, abstractKey(term))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get abstractness: %w", err)
	}
	if err := msgpack.Unmarshal(data, &abstract); err != nil {
		return false, false, fmt.Errorf("decode abstractness: %w", err)
	}
	return abstract, true, nil
}

// PutAbstractness stores a verdict.
func (r *Repo) PutAbstractness(ctx context.Context, term string, abstract bool) error {
	data, err := msgpack.Marshal(abstract)
	if err != nil {
		return fmt.Errorf("encode abstractness: %w", err)
	}
	if err := r.kv.Set(ctx, abstractKey(term), data); err != nil {
		return fmt.Errorf("put abstractness: %w", err)
	}
	return nil
}

func entryKey(k extension.Key) string {
	return extPrefix + k.String()
}

func abstractKey(term string) string {
	return abstractPrefix + extension.NewKey(term, category.All, extension.Expand).Hash()
}
