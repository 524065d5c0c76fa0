package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/designdex/internal/domain/category"
)

// Query parameter limits.
const (
	// MaxTextLength is the maximum allowed query length.
	MaxTextLength = 512
	DefaultLimit  = 50
	MaxLimit      = 200
)

// Params are the raw, unvalidated query inputs.
type Params struct {
	Text        string
	Category    category.Category
	Source      Source
	MainConcept string
	Additions   []string
	Sliders     map[string]float64
	Debug       bool
	Limit       int
}

// Slider is a per-concept slider position.
type Slider struct {
	Concept  string
	Position float64
}

// Query is a validated, immutable search query.
type Query struct {
	text        string
	category    category.Category
	source      Source
	mainConcept string
	additions   []string
	sliders     []Slider
	debug       bool
	limit       int
}

// New validates and normalizes query parameters.
// When only a main concept is given, the text is rebuilt from the main concept and additions.
func New(p Params) (Query, error) {
	text := strings.TrimSpace(p.Text)
	main := strings.TrimSpace(p.MainConcept)

	var additions []string
	for _, a := range p.Additions {
		if a = strings.TrimSpace(a); a != "" {
			additions = append(additions, a)
		}
	}
	if text == "" && main != "" {
		text = strings.Join(append([]string{main}, additions...), ", ")
	}
	if text == "" {
		return Query{}, fmt.Errorf("query is required")
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("query too long (max %d chars)", MaxTextLength)
	}

	cat := p.Category
	if cat == "" {
		cat = category.All
	}
	if !cat.IsValid() {
		return Query{}, fmt.Errorf("invalid category: %q", p.Category)
	}
	if !p.Source.IsValid() {
		return Query{}, fmt.Errorf("invalid source: %q", p.Source)
	}

	sliders := make([]Slider, 0, len(p.Sliders))
	for concept, pos := range p.Sliders {
		if pos < 0 || pos > 1 {
			return Query{}, fmt.Errorf("slider %q must be between 0 and 1", concept)
		}
		concept = strings.ToLower(strings.TrimSpace(concept))
		if concept == "" {
			return Query{}, fmt.Errorf("slider concept is required")
		}
		sliders = append(sliders, Slider{Concept: concept, Position: pos})
	}
	// map iteration order is random; sliders apply sequentially
	sort.Slice(sliders, func(i, j int) bool { return sliders[i].Concept < sliders[j].Concept })

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Query{
		text:        text,
		category:    cat,
		source:      p.Source,
		mainConcept: main,
		additions:   additions,
		sliders:     sliders,
		debug:       p.Debug,
		limit:       limit,
	}, nil
}

// Text returns the query text.
func (q *Query) Text() string { return q.text }

// Category returns the category filter (All when unrestricted).
func (q *Query) Category() category.Category { return q.category }

// Source returns the source mode.
func (q *Query) Source() Source { return q.source }

// MainConcept returns the dominant term of a composite query.
func (q *Query) MainConcept() string { return q.mainConcept }

// Additions returns the refinement phrases of a composite query.
func (q *Query) Additions() []string { return q.additions }

// Sliders returns slider positions sorted by concept.
func (q *Query) Sliders() []Slider { return q.sliders }

// HasSliders reports whether any slider deviates from the unmodified position.
func (q *Query) HasSliders() bool {
	for _, s := range q.sliders {
		if s.Position != 1 && s.Position != 0.5 {
			return true
		}
	}
	return false
}

// Debug reports whether per-candidate diagnostics were requested.
func (q *Query) Debug() bool { return q.debug }

// Limit returns the result cap.
func (q *Query) Limit() int { return q.limit }

// WordCount returns the word count of the query text.
func (q *Query) WordCount() int { return WordCount(q.text) }

// IsComposite reports whether the query is an assistant refinement:
// a main concept plus additions spanning at least two words.
func (q *Query) IsComposite() bool {
	return q.mainConcept != "" && len(q.additions) > 0 && q.WordCount() >= 2
}
