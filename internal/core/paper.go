package core

// Paper is a research-paper record as returned by a PaperSource.
type Paper struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	PDFURL          string   `json:"pdf_url"`
	URL             string   `json:"url"`
	Comment         string   `json:"comment,omitempty"`
	PrimaryCategory string   `json:"primary_category"`
	Published       string   `json:"published"`
	Updated         string   `json:"updated"`
	Authors         []string `json:"authors"`
	Categories      []string `json:"categories"`
}

// SortOrder selects the ordering of search results.
type SortOrder string

const (
	SortRelevance     SortOrder = "relevance"
	SortSubmittedDate SortOrder = "submitted_date"
	SortLastUpdated   SortOrder = "last_updated_date"
)

// SearchCriteria describes a preference-based paper search.
type SearchCriteria struct {
	SortBy     SortOrder `json:"sort_by"`
	Topics     []string  `json:"topics"`
	Categories []string  `json:"categories"`
	Authors    []string  `json:"authors"`
	MaxResults int       `json:"max_results"`
	DaysBack   int       `json:"days_back"`
}

// IsEmpty reports whether the criteria carry no search terms at all.
func (c *SearchCriteria) IsEmpty() bool {
	return c == nil || (len(c.Topics) == 0 && len(c.Categories) == 0 && len(c.Authors) == 0)
}
