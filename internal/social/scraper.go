package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"athenascraper/internal/browseruse"
)

// DefaultModel is the LLM the agent runs with unless configured otherwise.
const DefaultModel = "gemini-flash-latest"

// ResponseCache stores finished scrape responses.
type ResponseCache interface {
	Get(ctx context.Context, key string) (ScrapeResponse, bool, error)
	Set(ctx context.Context, key string, resp ScrapeResponse) error
}

// Scraper asks the browser agent for social posts about a ticker and
// normalizes whatever it returns.
type Scraper struct {
	Runner browseruse.TaskRunner
	Model  string
	Cache  ResponseCache
	Logger *slog.Logger
	Now    func() time.Time
}

// Scrape runs one agent task for platform. Unusable agent output is replaced by a
// single fallback post; only configuration and agent call failures are errors.
func (s Scraper) Scrape(ctx context.Context, platform Platform, req ScrapeRequest) (ScrapeResponse, error) {
	spec, err := lookupPlatform(platform)
	if err != nil {
		return ScrapeResponse{}, err
	}

	logger := s.logger().With(slog.String("platform", string(platform)))
	logger.Info("scraping",
		slog.String("ticker", req.Ticker),
		slog.String("start_date", req.StartDate),
		slog.String("end_date", req.EndDate))

	if s.Runner == nil {
		return ScrapeResponse{}, ErrNotConfigured
	}

	key := CacheKey(platform, req)
	if cached, ok := s.cached(ctx, logger, key); ok {
		cached.Ticker = req.Ticker
		return cached, nil
	}

	handle, err := s.Runner.Submit(ctx, spec.prompt(req), s.model())
	if err != nil {
		logger.Error("task submission failed", slog.String("error", err.Error()))
		return ScrapeResponse{}, &UpstreamError{Platform: platform, Err: err}
	}
	logger.Info(fmt.Sprintf("[%s] task created, waiting for completion", spec.logTag), slog.String("task_id", handle.ID))

	result, err := s.Runner.Await(ctx, handle)
	if err != nil {
		logger.Error("task failed", slog.String("task_id", handle.ID), slog.String("error", err.Error()))
		return ScrapeResponse{}, &UpstreamError{Platform: platform, Err: err}
	}
	logger.Info(fmt.Sprintf("[%s] task finished", spec.logTag),
		slog.String("task_id", handle.ID),
		slog.String("status", result.Status),
		slog.String("output", rawOutput(result.Output)))

	posts, err := decodePosts(platform, result.Output, req.StartDate)
	switch {
	case err != nil:
		logger.Warn(fmt.Sprintf("[%s] parse failed, using mock data", spec.logTag), slog.String("error", err.Error()))
		posts = []SocialPost{spec.fallback(req)}
	case len(posts) == 0:
		logger.Warn(fmt.Sprintf("[%s] agent returned no posts, using mock data", spec.logTag))
		posts = []SocialPost{spec.fallback(req)}
	default:
		for i, post := range posts {
			logger.Info(fmt.Sprintf("[%s] post %d", spec.logTag, i+1),
				slog.String("summary", truncate(spec.summaryOf(post.Title, post.Content), 100)))
		}
	}

	resp := s.newResponse(req.Ticker, string(platform), posts)
	logger.Info(fmt.Sprintf("[%s] returning posts", spec.logTag), slog.Int("count", len(posts)), slog.Bool("fallback", resp.Fallback))

	if !resp.Fallback && s.Cache != nil {
		if err := s.Cache.Set(ctx, key, resp); err != nil {
			logger.Warn("cache store failed", slog.String("error", err.Error()))
		}
	}

	return resp, nil
}

// ScrapeBoth scrapes Reddit and Twitter concurrently and merges the posts,
// Reddit first. A failing platform is left out and reported in Errors.
func (s Scraper) ScrapeBoth(ctx context.Context, req ScrapeRequest) ScrapeResponse {
	order := []Platform{Reddit, Twitter}
	results := make([]ScrapeResponse, len(order))
	errs := make([]error, len(order))

	var wg sync.WaitGroup
	for i, platform := range order {
		wg.Add(1)
		go func(i int, platform Platform) {
			defer wg.Done()
			results[i], errs[i] = s.Scrape(ctx, platform, req)
		}(i, platform)
	}
	wg.Wait()

	var posts []SocialPost
	failures := make(map[string]string)
	for i, platform := range order {
		if errs[i] != nil {
			s.logger().Error(fmt.Sprintf("%s scraping failed", platform), slog.String("error", errs[i].Error()))
			failures[string(platform)] = errs[i].Error()
			continue
		}
		posts = append(posts, results[i].Posts...)
	}

	resp := s.newResponse(req.Ticker, CombinedSource, posts)
	if len(failures) > 0 {
		resp.Errors = failures
	}
	return resp
}

// CacheKey identifies a scrape by everything that shapes the agent prompt.
// The ticker is kept verbatim since it is echoed back and quoted in the prompt.
func CacheKey(platform Platform, req ScrapeRequest) string {
	return fmt.Sprintf("scrape:%s:%q:%q:%q:%d", platform, req.Ticker, req.StartDate, req.EndDate, req.MaxResults)
}

func (s Scraper) cached(ctx context.Context, logger *slog.Logger, key string) (ScrapeResponse, bool) {
	if s.Cache == nil {
		return ScrapeResponse{}, false
	}
	resp, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		return ScrapeResponse{}, false
	}
	if !ok {
		return ScrapeResponse{}, false
	}
	logger.Info("serving cached scrape", slog.String("key", key), slog.Int("count", len(resp.Posts)))
	resp.Timestamp = s.now().Format(time.RFC3339)
	return resp, true
}

func (s Scraper) newResponse(ticker, source string, posts []SocialPost) ScrapeResponse {
	if posts == nil {
		posts = []SocialPost{}
	}
	return ScrapeResponse{
		Ticker:    ticker,
		Posts:     posts,
		Source:    source,
		Timestamp: s.now().Format(time.RFC3339),
		Fallback:  containsFallback(posts),
	}
}

func (s Scraper) model() string {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

func (s Scraper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Scraper) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func rawOutput(output *string) string {
	if output == nil {
		return "NO OUTPUT"
	}
	return *output
}

func truncate(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
