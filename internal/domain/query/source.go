package query

// Source is the origin mode of a query.
type Source string

// Source modes.
const (
	// Unspecified leaves the abstractness decision to the classifier.
	Unspecified Source = ""
	// Search marks a concrete query.
	Search Source = "search"
	// Vibe marks an abstract, mood-oriented query.
	Vibe Source = "vibe"
)

// IsValid checks if the source is one of the supported values.
func (s Source) IsValid() bool {
	return s == Unspecified || s == Search || s == Vibe
}
