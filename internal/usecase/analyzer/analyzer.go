// Package analyzer decides how a query text is turned into query vectors.
package analyzer

import (
	"context"

	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/domain/query"
)

// Route is the retrieval path chosen for a query.
type Route string

// Routes.
const (
	VibeExtension   Route = "vibe-extension"
	SearchExtension Route = "search-extension"
	Expansion       Route = "expansion"
	Direct          Route = "direct"
	// Image is used for image-by-example searches, which skip analysis.
	Image Route = "image"
)

// expansionMaxWords is the word count below which expansion applies.
const expansionMaxWords = 3

// Classifier judges whether a term is abstract.
type Classifier interface {
	IsAbstract(ctx context.Context, term string) bool
}

// Plan is the analysis outcome.
type Plan struct {
	Route        Route
	WordCount    int
	UseExpansion bool
	// Classified is true when the classifier was consulted.
	Classified bool
}

// UsesCategoryExtensions reports whether the route fans out per category.
func (p Plan) UsesCategoryExtensions() bool {
	return p.Route == VibeExtension || p.Route == SearchExtension
}

// ExtensionMode returns the extension mode of the route.
func (p Plan) ExtensionMode() extension.Mode {
	switch p.Route {
	case VibeExtension:
		return extension.Vibe
	case Expansion:
		return extension.Expand
	default:
		return extension.Search
	}
}

// Analyzer routes queries.
type Analyzer struct {
	classifier Classifier
}

// New creates an analyzer.
func New(c Classifier) *Analyzer {
	return &Analyzer{classifier: c}
}

// Analyze picks the route for text. The classifier only runs for short
// queries whose source leaves abstractness open.
func (a *Analyzer) Analyze(ctx context.Context, text string, source query.Source) Plan {
	wc := query.WordCount(text)
	p := Plan{WordCount: wc, UseExpansion: wc < expansionMaxWords}

	switch {
	case source == query.Vibe && p.UseExpansion:
		p.Route = VibeExtension
	case source == query.Search && p.UseExpansion:
		p.Route = SearchExtension
	case source == query.Unspecified && p.UseExpansion && a.classifier != nil:
		p.Classified = true
		if a.classifier.IsAbstract(ctx, text) {
			p.Route = Expansion
		} else {
			p.Route = Direct
		}
	default:
		p.Route = Direct
	}
	return p
}
