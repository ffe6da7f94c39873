package models

import "strings"

// Location is a lat/lng pair sent with dare requests
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UserBehavior is a row of user_behavior
type UserBehavior struct {
	UserID               string   `json:"user_id,omitempty"`
	PreferredCategories  []string `json:"preferred_categories"`
	CompletedTags        []string `json:"completed_tags"`
	DifficultyPreference string   `json:"difficulty_preference,omitempty"`
	UpdatedAt            *Time    `json:"updated_at,omitempty"`
}

func (b UserBehavior) Key() string { return b.UserID }

func (b UserBehavior) Validate() error {
	if b.UserID == "" {
		return invalid("user behavior", "missing user_id")
	}
	return nil
}

// DareSuggestion is one suggestion returned by the dare endpoint
type DareSuggestion struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	Points        int    `json:"points"`
	Popularity    int    `json:"popularity"`
	LocationBased bool   `json:"location_based"`
	Reason        string `json:"reason"`
	Score         int    `json:"score"`
	Fallback      bool   `json:"-"`
}

func (d DareSuggestion) Key() string { return d.ID }

func (d DareSuggestion) Validate() error {
	if err := requireID("dare suggestion", d.ID); err != nil {
		return err
	}
	if strings.TrimSpace(d.Title) == "" {
		return invalid("dare suggestion", "missing title")
	}
	return nil
}

// HighestScore sorts suggestions by score descending
func HighestScore(a, b DareSuggestion) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	return strings.Compare(a.ID, b.ID)
}

// DareRequest is the body of the dare suggestion endpoint
type DareRequest struct {
	UserID       string       `json:"userId"`
	Location     *Location    `json:"location,omitempty"`
	PastBehavior UserBehavior `json:"pastBehavior"`
}

// DareResponse is the dare endpoint response
type DareResponse struct {
	Suggestions []DareSuggestion `json:"suggestions"`
}

// FallbackDares is the local sample set used when the endpoint fails
func FallbackDares() []DareSuggestion {
	return []DareSuggestion{
		{
			ID:            "fallback-1",
			Title:         "Local Coffee Shop Challenge",
			Description:   "Order your drink in a different accent",
			Category:      "Social",
			Difficulty:    "Easy",
			Points:        50,
			Popularity:    85,
			LocationBased: true,
			Reason:        "Popular in your area",
			Score:         95,
			Fallback:      true,
		},
		{
			ID:            "fallback-2",
			Title:         "Street Art Photography",
			Description:   "Find and photograph 3 pieces of street art",
			Category:      "Creative",
			Difficulty:    "Medium",
			Points:        100,
			Popularity:    92,
			LocationBased: true,
			Reason:        "Based on your creative interests",
			Score:         112,
			Fallback:      true,
		},
		{
			ID:            "fallback-3",
			Title:         "Random Acts of Kindness",
			Description:   "Compliment 5 strangers today",
			Category:      "Social",
			Difficulty:    "Medium",
			Points:        75,
			Popularity:    78,
			LocationBased: false,
			Reason:        "Trending globally",
			Score:         88,
			Fallback:      true,
		},
	}
}
