package models

// ResultType identifies what a search hit refers to
type ResultType string

const (
	ResultUser      ResultType = "user"
	ResultChallenge ResultType = "challenge"
	ResultVideo     ResultType = "video"
	ResultHashtag   ResultType = "hashtag"
)

// SearchResult is one row of a combined search
type SearchResult struct {
	ID       string         `json:"id"`
	Type     ResultType     `json:"type"`
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle,omitempty"`
	Avatar   string         `json:"avatar,omitempty"`
	Metadata map[string]int `json:"metadata,omitempty"`
}

func (r SearchResult) Key() string { return string(r.Type) + ":" + r.ID }

func (r SearchResult) Validate() error {
	return requireID("search result", r.ID)
}

// Hashtags is the static trending hashtag list
var Hashtags = []string{"#dance", "#fitness", "#comedy", "#music", "#art", "#food", "#travel", "#sports"}

// TrendingSearches is the static trending query list
var TrendingSearches = []string{"#dance", "fitness challenge", "comedy", "trending", "viral"}
