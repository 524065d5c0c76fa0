package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ImageSchema(t *testing.T) {
	idx, err := NewIndex("designdex:images:idx").
		Prefix("designdex:image:").
		Tag("collection_id").
		Tag("category").
		VectorHNSW("vector", 768, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(idx.Fields))
	}
	f := idx.Fields[2]
	if f.Type != IndexFieldVector || f.VectorDim != 768 || f.VectorDistance != DistanceCosine {
		t.Errorf("vector field = %+v", f)
	}
	s := idx.String()
	if !strings.Contains(s, "PREFIX designdex:image:") || !strings.Contains(s, "vector VECTOR HNSW") {
		t.Errorf("String() = %q", s)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Tag("a")},
		{"bad name", NewIndex("bad name").Tag("a")},
		{"no fields", NewIndex("idx")},
		{"duplicate", NewIndex("idx").Tag("a").Tag("a")},
		{"zero dim", NewIndex("idx").VectorHNSW("v", 0, DistanceCosine, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.b.Build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	if !IsValidIdentifier("designdex:images:idx") {
		t.Error("expected valid")
	}
	if IsValidIdentifier("a b") || IsValidIdentifier("") {
		t.Error("expected invalid")
	}
}

func TestError_Unwrap(t *testing.T) {
	e := &Error{Op: OpGet, Err: ErrKeyNotFound}
	if e.Error() != "GET: db: key not found" {
		t.Errorf("Error() = %q", e.Error())
	}
	if e.Unwrap() != ErrKeyNotFound {
		t.Error("Unwrap() must return the inner error")
	}
}
