package concept

import "strings"

// Concept is a labelled point in embedding space, optionally paired with opposites.
type Concept struct {
	ID          string
	Label       string
	Embedding   []float32
	OppositeIDs []string
}

// Set is an immutable snapshot of the concept store indexed by label and ID.
type Set struct {
	byID    map[string]Concept
	byLabel map[string]Concept
}

// NewSet indexes concepts. Labels are matched case-insensitively; later
// duplicates of a label are ignored.
func NewSet(concepts []Concept) *Set {
	s := &Set{
		byID:    make(map[string]Concept, len(concepts)),
		byLabel: make(map[string]Concept, len(concepts)),
	}
	for _, c := range concepts {
		s.byID[c.ID] = c
		label := strings.ToLower(strings.TrimSpace(c.Label))
		if _, dup := s.byLabel[label]; !dup {
			s.byLabel[label] = c
		}
	}
	return s
}

// Len returns the number of concepts.
func (s *Set) Len() int { return len(s.byID) }

// ByLabel finds a concept by its label.
func (s *Set) ByLabel(label string) (Concept, bool) {
	c, ok := s.byLabel[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// Opposite returns the first recorded opposite of the concept labelled label
// that exists in the set.
func (s *Set) Opposite(label string) (Concept, bool) {
	c, ok := s.ByLabel(label)
	if !ok {
		return Concept{}, false
	}
	for _, id := range c.OppositeIDs {
		if o, ok := s.byID[id]; ok {
			return o, true
		}
	}
	return Concept{}, false
}

// Slider is a slider position resolved against the concept store.
type Slider struct {
	Label    string
	Position float64
	// Opposite is the embedding of the first recorded opposite; nil when none.
	Opposite []float32
}
