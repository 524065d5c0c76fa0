package extension

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kailas-cloud/designdex/internal/domain/category"
)

// Mode selects the flavour of generated extension.
type Mode string

// Extension modes.
const (
	// Search produces concrete, literal extensions.
	Search Mode = "search"
	// Vibe produces mood and atmosphere renderings.
	Vibe Mode = "vibe"
	// Expand produces one query-wide expansion for abstract queries.
	Expand Mode = "expand"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Search || m == Vibe || m == Expand
}

// Key identifies one cache entry.
type Key struct {
	Term     string
	Category category.Category
	Mode     Mode
}

// NewKey normalizes the term so that case and surrounding whitespace
// never produce distinct entries.
func NewKey(term string, c category.Category, m Mode) Key {
	return Key{Term: NormalizeTerm(term), Category: c, Mode: m}
}

// NormalizeTerm lowercases and collapses whitespace.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// Hash returns a stable hex digest of the normalized term.
func (k Key) Hash() string {
	h := sha256.Sum256([]byte(k.Term))
	return hex.EncodeToString(h[:])
}

// String renders the key as mode:category:hash.
func (k Key) String() string {
	return string(k.Mode) + ":" + string(k.Category) + ":" + k.Hash()
}

// Entry is a cached extension with the embedding of "term, extension".
type Entry struct {
	Key        Key
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Combined joins the term and its extension into the text that gets embedded.
func Combined(term, ext string) string {
	return term + ", " + ext
}
