package impression

import (
	"time"

	"github.com/google/uuid"
)

// Item is one shown result.
type Item struct {
	ImageID    string
	Position   int
	BaseScore  float64
	FinalScore float64
	Features   map[string]float64
}

// Record is what a single search showed.
type Record struct {
	RequestID uuid.UUID
	Query     string
	Route     string
	Category  string
	Vector    []float32
	CreatedAt time.Time
	Items     []Item
}

// Click links a click back to the search that showed the image.
type Click struct {
	RequestID uuid.UUID
	ImageID   string
}
