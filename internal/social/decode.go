package social

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errNoOutput   = errors.New("agent returned no output")
	errNoJSON     = errors.New("agent output missing json payload")
	errNotAnArray = errors.New("agent output posts is not an array")
)

// decodePosts maps the agent's raw output into posts for the given platform.
// Posts without a date inherit defaultDate.
func decodePosts(platform Platform, output *string, defaultDate string) ([]SocialPost, error) {
	if output == nil {
		return nil, errNoOutput
	}

	payload := extractJSON(*output)
	if payload == "" {
		return nil, errNoJSON
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode agent output: %w", err)
	}

	rawPosts, ok := decoded["posts"]
	if !ok || isNull(rawPosts) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawPosts, &items); err != nil {
		return nil, errNotAnArray
	}

	posts := make([]SocialPost, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		posts = append(posts, SocialPost{
			Platform:      platform,
			Title:         stringField(fields, "title"),
			Content:       stringField(fields, "content"),
			URL:           stringField(fields, "url"),
			Score:         intField(fields, "score"),
			Date:          orDefault(stringField(fields, "date"), defaultDate),
			Author:        optionalString(fields, "author"),
			CommentsCount: intField(fields, "comments_count"),
			Provenance:    FromAgent,
		})
	}

	return posts, nil
}

// extractJSON returns the outermost {...} span of content, tolerating prose
// or code fences around it.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(fields map[string]json.RawMessage, key string) string {
	if v := optionalString(fields, key); v != nil {
		return *v
	}
	return ""
}

func optionalString(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

// intField accepts JSON numbers and human formatted counts such as "1,234" or "1.2k".
func intField(fields map[string]json.RawMessage, key string) *int {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return roundedInt(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return parseCount(s)
}

func parseCount(s string) *int {
	s = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	if s == "" {
		return nil
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier, s = 1e3, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier, s = 1e6, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "b"):
		multiplier, s = 1e9, strings.TrimSuffix(s, "b")
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return roundedInt(f * multiplier)
}

func roundedInt(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32*1000.0 || f < -math.MaxInt32*1000.0 {
		return nil
	}
	v := int(math.Round(f))
	return &v
}
