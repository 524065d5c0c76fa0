package chi

// ErrorCode is a stable machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeSearchUnavailable      ErrorCode = "search_unavailable"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeNotImplemented         ErrorCode = "not_implemented"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query       string             `json:"query"`
	Category    *string            `json:"category,omitempty"`
	Source      *string            `json:"source,omitempty"`
	MainConcept *string            `json:"main_concept,omitempty"`
	Additions   []string           `json:"additions,omitempty"`
	Sliders     map[string]float64 `json:"sliders,omitempty"`
	Debug       *bool              `json:"debug,omitempty"`
	Limit       *int               `json:"limit,omitempty"`
}

// SearchParams are the GET /search query parameters.
type SearchParams struct {
	Query    string
	Category *string
	Source   *string
	Debug    *bool
	Limit    *int
}

// ImageSearchParams are the POST /search/image query parameters.
type ImageSearchParams struct {
	Category *string
	Limit    *int
}

// SearchResultItem is one ranked image.
type SearchResultItem struct {
	ID           string             `json:"id"`
	CollectionID string             `json:"collection_id"`
	Category     string             `json:"category"`
	Score        float64            `json:"score"`
	BaseScore    float64            `json:"base_score"`
	Debug        map[string]float64 `json:"debug,omitempty"`
}

// SearchResponse is a ranked result list.
type SearchResponse struct {
	Results   []SearchResultItem `json:"results"`
	Total     int                `json:"total"`
	Route     string             `json:"route"`
	RequestID string             `json:"request_id"`
}

// ClickRequest is the POST /clicks body.
type ClickRequest struct {
	RequestID string `json:"request_id"`
	ImageID   string `json:"image_id"`
}

// InvalidateResponse reports a manual cache invalidation.
type InvalidateResponse struct {
	Term    string `json:"term"`
	Source  string `json:"source"`
	Removed int    `json:"removed"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
