package social

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform names a social network the agent can search.
type Platform string

const (
	Reddit  Platform = "reddit"
	Twitter Platform = "twitter"
)

// CombinedSource is the source label of a fan-out response.
const CombinedSource = "reddit+twitter"

// DefaultMaxResults is used when a request leaves max_results unset.
const DefaultMaxResults = 5

// ParsePlatform maps a user supplied name onto a known platform.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reddit":
		return Reddit, nil
	case "twitter", "x":
		return Twitter, nil
	}
	return "", &ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", name)}
}

// Provenance tells callers whether a post came from the agent or was synthesized locally.
type Provenance string

const (
	FromAgent    Provenance = "agent"
	FromFallback Provenance = "fallback"
)

// ScrapeRequest is the body accepted by every scrape endpoint. Values are
// passed to the agent as given.
type ScrapeRequest struct {
	Ticker     string `json:"ticker"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	MaxResults int    `json:"max_results"`
}

// UnmarshalJSON requires ticker and both dates to be present and defaults
// max_results only when the field is absent or null.
func (r *ScrapeRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		Ticker     *string `json:"ticker"`
		StartDate  *string `json:"start_date"`
		EndDate    *string `json:"end_date"`
		MaxResults *int    `json:"max_results"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.Ticker == nil:
		return &ValidationError{Field: "ticker", Reason: "field required"}
	case wire.StartDate == nil:
		return &ValidationError{Field: "start_date", Reason: "field required"}
	case wire.EndDate == nil:
		return &ValidationError{Field: "end_date", Reason: "field required"}
	}

	*r = ScrapeRequest{
		Ticker:     *wire.Ticker,
		StartDate:  *wire.StartDate,
		EndDate:    *wire.EndDate,
		MaxResults: DefaultMaxResults,
	}
	if wire.MaxResults != nil {
		r.MaxResults = *wire.MaxResults
	}
	return nil
}

// SocialPost is a normalized post or tweet. Optional fields encode as null when unknown.
type SocialPost struct {
	Platform      Platform   `json:"platform"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	URL           string     `json:"url"`
	Score         *int       `json:"score"`
	Date          string     `json:"date"`
	Author        *string    `json:"author"`
	CommentsCount *int       `json:"comments_count"`
	Provenance    Provenance `json:"provenance"`
}

// ScrapeResponse is returned by the single platform and fan-out scrapes.
type ScrapeResponse struct {
	Ticker    string            `json:"ticker"`
	Posts     []SocialPost      `json:"posts"`
	Source    string            `json:"source"`
	Timestamp string            `json:"timestamp"`
	Fallback  bool              `json:"fallback"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func containsFallback(posts []SocialPost) bool {
	for _, post := range posts {
		if post.Provenance == FromFallback {
			return true
		}
	}
	return false
}
