package social

import (
	"fmt"
	"strings"
)

// platformSpec describes how to ask the agent about one platform and what to
// return when the agent gives us nothing usable.
type platformSpec struct {
	logTag    string
	summaryOf func(title, content string) string
	prompt    func(req ScrapeRequest) string
	fallback  func(req ScrapeRequest) SocialPost
}

var platforms = map[Platform]platformSpec{
	Reddit: {
		logTag:    "REDDIT",
		summaryOf: func(title, _ string) string { return orDefault(title, "NO TITLE") },
		prompt:    redditPrompt,
		fallback:  redditFallback,
	},
	Twitter: {
		logTag:    "TWITTER",
		summaryOf: func(_, content string) string { return orDefault(content, "NO CONTENT") },
		prompt:    twitterPrompt,
		fallback:  twitterFallback,
	},
}

func lookupPlatform(p Platform) (platformSpec, error) {
	spec, ok := platforms[p]
	if !ok {
		return platformSpec{}, &ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", p)}
	}
	return spec, nil
}

const outputRules = `If you cannot extract all fields, just include what you can find. Partial data is acceptable.`

func redditPrompt(req ScrapeRequest) string {
	return fmt.Sprintf(`Search Google for: site:reddit.com "%[1]s" after:%[2]s before:%[3]s

Find the top %[4]d Reddit posts about $%[1]s from subreddits like:
- r/wallstreetbets
- r/stocks
- r/investing

For each post, try to extract as much information as possible:
- Post title (required)
- Post URL (required)
- Upvote score (optional, if visible)
- Post date (optional, use approximate if exact date unavailable)
- Author username (optional)
- Number of comments (optional)
- Key excerpt from post body (1-2 sentences, required)

Return the data as JSON. The structure should be a "posts" array. Each post should have at minimum:
- "title" (string)
- "url" (string)
- "content" (string with excerpt)

Optional fields (include if available, omit if not):
- "score" (number)
- "date" (string in YYYY-MM-DD format if possible, or any date format)
- "author" (string)
- "comments_count" (number)

Example format (but be flexible with structure):
{
  "posts": [
    {
      "title": "Post title here",
      "url": "https://reddit.com/...",
      "content": "Excerpt from post...",
      "score": 1234,
      "date": "2024-01-15",
      "author": "username",
      "comments_count": 56
    }
  ]
}

%[5]s`, req.Ticker, req.StartDate, req.EndDate, req.MaxResults, outputRules)
}

func twitterPrompt(req ScrapeRequest) string {
	return fmt.Sprintf(`Search Google for: site:x.com "%[1]s" after:%[2]s before:%[3]s

Find the top %[4]d tweets about $%[1]s with high engagement (many likes/retweets).

For each tweet, try to extract as much information as possible:
- Tweet text (required)
- Tweet URL (required)
- Number of likes (optional, if visible)
- Tweet date (optional, use approximate if exact date unavailable)
- Author handle (optional)
- Number of retweets or replies (optional)

Return the data as JSON. The structure should be a "posts" array. Each post should have at minimum:
- "content" (string with tweet text)
- "url" (string)

Optional fields (include if available, omit if not):
- "title" (string, can be author handle or empty string)
- "score" (number for likes)
- "date" (string in YYYY-MM-DD format if possible, or any date format)
- "author" (string with handle)
- "comments_count" (number for replies/retweets)

Example format (but be flexible with structure):
{
  "posts": [
    {
      "title": "@username",
      "content": "Tweet text here",
      "url": "https://twitter.com/...",
      "score": 5678,
      "date": "2024-01-15",
      "author": "@username",
      "comments_count": 123
    }
  ]
}

%[5]s`, req.Ticker, req.StartDate, req.EndDate, req.MaxResults, outputRules)
}

func redditFallback(req ScrapeRequest) SocialPost {
	return SocialPost{
		Platform:      Reddit,
		Title:         fmt.Sprintf("Discussion about %s", req.Ticker),
		Content:       "This is extracted content from the Reddit post...",
		URL:           "https://reddit.com/r/wallstreetbets/...",
		Score:         intPtr(500),
		Date:          req.StartDate,
		Author:        stringPtr("reddit_user"),
		CommentsCount: intPtr(50),
		Provenance:    FromFallback,
	}
}

func twitterFallback(req ScrapeRequest) SocialPost {
	return SocialPost{
		Platform:      Twitter,
		Title:         fmt.Sprintf("@financeuser on %s", req.Ticker),
		Content:       fmt.Sprintf("Tweet content about %s...", req.Ticker),
		URL:           "https://twitter.com/...",
		Score:         intPtr(1000),
		Date:          req.StartDate,
		Author:        stringPtr("@financeuser"),
		CommentsCount: intPtr(25),
		Provenance:    FromFallback,
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func intPtr(v int) *int { return &v }

func stringPtr(v string) *string { return &v }
