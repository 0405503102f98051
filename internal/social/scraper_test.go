package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"athenascraper/internal/browseruse"
)

type fakeRunner struct {
	mu        sync.Mutex
	outputs   map[string]*string
	submitErr map[string]error
	awaitErr  error
	prompts   []string
	models    []string
}

// platformOf guesses the platform a prompt targets from its site directive.
func platformOf(prompt string) string {
	if strings.Contains(prompt, "site:x.com") {
		return "twitter"
	}
	return "reddit"
}

func (f *fakeRunner) Submit(ctx context.Context, prompt, model string) (browseruse.TaskHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	p := platformOf(prompt)
	if err := f.submitErr[p]; err != nil {
		return browseruse.TaskHandle{}, err
	}
	return browseruse.TaskHandle{ID: "task-" + p}, nil
}

func (f *fakeRunner) Await(ctx context.Context, handle browseruse.TaskHandle) (browseruse.TaskResult, error) {
	if f.awaitErr != nil {
		return browseruse.TaskResult{}, f.awaitErr
	}
	p := strings.TrimPrefix(handle.ID, "task-")
	return browseruse.TaskResult{ID: handle.ID, Status: browseruse.StatusFinished, Output: f.outputs[p]}, nil
}

func output(s string) *string { return &s }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScraper(runner browseruse.TaskRunner) Scraper {
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	return Scraper{
		Runner: runner,
		Logger: quietLogger(),
		Now:    func() time.Time { return fixed },
	}
}

var aaplRequest = ScrapeRequest{Ticker: "AAPL", StartDate: "2024-01-01", EndDate: "2024-01-31", MaxResults: 3}

func TestScrapeMapsAgentPosts(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"reddit": output(`{"posts":[{"title":"t","url":"u","content":"c"}]}`),
	}}
	s := testScraper(runner)

	resp, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	if resp.Ticker != "AAPL" || resp.Source != "reddit" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Timestamp != "2024-02-01T12:00:00Z" {
		t.Errorf("unexpected timestamp: %s", resp.Timestamp)
	}
	if len(resp.Posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(resp.Posts))
	}
	post := resp.Posts[0]
	if post.Platform != Reddit || post.Title != "t" || post.Content != "c" || post.URL != "u" {
		t.Errorf("unexpected post: %+v", post)
	}
	if post.Date != "2024-01-01" {
		t.Errorf("expected date to default to start date, got %q", post.Date)
	}
	if post.Score != nil || post.Author != nil || post.CommentsCount != nil {
		t.Errorf("optional fields should be unset: %+v", post)
	}
	if post.Provenance != FromAgent || resp.Fallback {
		t.Errorf("expected agent provenance")
	}

	if len(runner.models) != 1 || runner.models[0] != DefaultModel {
		t.Errorf("unexpected model: %v", runner.models)
	}
	prompt := runner.prompts[0]
	for _, want := range []string{`site:reddit.com "AAPL"`, "after:2024-01-01", "before:2024-01-31", "top 3 Reddit posts", "r/wallstreetbets"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestScrapeKeepsOwnDatesAndOptionalFields(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"twitter": output("Here you go:\n```json\n" + `{"posts":[
			{"content":"to the moon","url":"https://x.com/a/1","date":"2024-01-05","score":"1.2k","author":"@a","comments_count":12},
			{"content":"bearish","url":"https://x.com/b/2","score":77},
			"not a post"
		]}` + "\n```"),
	}}
	s := testScraper(runner)

	resp, err := s.Scrape(context.Background(), Twitter, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if resp.Source != "twitter" {
		t.Errorf("unexpected source %s", resp.Source)
	}
	if len(resp.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(resp.Posts))
	}

	first, second := resp.Posts[0], resp.Posts[1]
	if first.Date != "2024-01-05" {
		t.Errorf("first post should keep its date, got %q", first.Date)
	}
	if first.Score == nil || *first.Score != 1200 {
		t.Errorf("unexpected score: %v", first.Score)
	}
	if first.Author == nil || *first.Author != "@a" || first.CommentsCount == nil || *first.CommentsCount != 12 {
		t.Errorf("unexpected optional fields: %+v", first)
	}
	if second.Date != "2024-01-01" {
		t.Errorf("second post should default its date, got %q", second.Date)
	}
	for _, post := range resp.Posts {
		if post.Platform != Twitter {
			t.Errorf("unexpected platform %s", post.Platform)
		}
	}
	if !strings.Contains(runner.prompts[0], `site:x.com "AAPL"`) {
		t.Errorf("twitter prompt should target x.com")
	}
}

func TestScrapeFallsBackOnUnusableOutput(t *testing.T) {
	cases := map[string]*string{
		"nil output":  nil,
		"not json":    output("I could not find anything"),
		"broken json": output(`{"posts": [`),
		"empty posts": output(`{"posts": []}`),
		"no posts":    output(`{"results": [{"title":"x"}]}`),
		"posts map":   output(`{"posts": {"title":"x"}}`),
	}

	for name, out := range cases {
		for _, platform := range []Platform{Reddit, Twitter} {
			t.Run(name+"/"+string(platform), func(t *testing.T) {
				runner := &fakeRunner{outputs: map[string]*string{string(platform): out}}
				s := testScraper(runner)

				resp, err := s.Scrape(context.Background(), platform, aaplRequest)
				if err != nil {
					t.Fatalf("expected fallback, got error: %v", err)
				}
				if len(resp.Posts) != 1 {
					t.Fatalf("expected exactly one fallback post, got %d", len(resp.Posts))
				}
				post := resp.Posts[0]
				if post.Platform != platform || post.Date != "2024-01-01" {
					t.Errorf("unexpected fallback post: %+v", post)
				}
				if post.Provenance != FromFallback || !resp.Fallback {
					t.Errorf("fallback should be flagged")
				}
				if !strings.Contains(post.Title, "AAPL") {
					t.Errorf("fallback title should mention ticker: %q", post.Title)
				}
			})
		}
	}
}

func TestScrapeFallbackPostsAreDeterministic(t *testing.T) {
	s := testScraper(&fakeRunner{})

	reddit, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	got := reddit.Posts[0]
	if got.Title != "Discussion about AAPL" || got.URL != "https://reddit.com/r/wallstreetbets/..." ||
		*got.Score != 500 || *got.Author != "reddit_user" || *got.CommentsCount != 50 {
		t.Errorf("unexpected reddit fallback: %+v", got)
	}

	twitter, err := s.Scrape(context.Background(), Twitter, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	got = twitter.Posts[0]
	if got.Title != "@financeuser on AAPL" || got.Content != "Tweet content about AAPL..." ||
		*got.Score != 1000 || *got.Author != "@financeuser" || *got.CommentsCount != 25 {
		t.Errorf("unexpected twitter fallback: %+v", got)
	}
}

func TestScrapeErrors(t *testing.T) {
	s := testScraper(nil)
	if _, err := s.Scrape(context.Background(), Reddit, aaplRequest); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	boom := errors.New("agent unreachable")
	s = testScraper(&fakeRunner{submitErr: map[string]error{"reddit": boom}})
	_, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || !errors.Is(err, boom) {
		t.Fatalf("expected upstream error wrapping cause, got %v", err)
	}
	if upstream.Platform != Reddit || err.Error() != "agent unreachable" {
		t.Errorf("unexpected upstream error: %+v", upstream)
	}

	s = testScraper(&fakeRunner{awaitErr: boom})
	if _, err := s.Scrape(context.Background(), Twitter, aaplRequest); !errors.As(err, &upstream) {
		t.Fatalf("expected upstream error from await, got %v", err)
	}

	var invalid *ValidationError
	if _, err := testScraper(&fakeRunner{}).Scrape(context.Background(), Platform("mastodon"), aaplRequest); !errors.As(err, &invalid) {
		t.Fatalf("expected validation error for unknown platform, got %v", err)
	}
}

func TestScrapePassesRequestThrough(t *testing.T) {
	cases := []ScrapeRequest{
		{Ticker: " TSLA ", StartDate: "2024-1-5", EndDate: "2024-01-31", MaxResults: 0},
		{Ticker: "", StartDate: "", EndDate: "", MaxResults: -1},
	}
	for _, req := range cases {
		runner := &fakeRunner{}
		resp, err := testScraper(runner).Scrape(context.Background(), Twitter, req)
		if err != nil {
			t.Fatalf("Scrape(%+v): %v", req, err)
		}
		if resp.Ticker != req.Ticker {
			t.Errorf("ticker should be echoed verbatim: got %q, want %q", resp.Ticker, req.Ticker)
		}
		if resp.Posts[0].Date != req.StartDate {
			t.Errorf("fallback date = %q, want %q", resp.Posts[0].Date, req.StartDate)
		}
		want := fmt.Sprintf("Find the top %d tweets about $%s", req.MaxResults, req.Ticker)
		if !strings.Contains(runner.prompts[0], want) {
			t.Errorf("prompt should carry the request as given, missing %q", want)
		}
	}
}

func TestScrapeBothMergesInOrder(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"reddit":  output(`{"posts":[{"title":"r1","url":"u","content":"c"},{"title":"r2","url":"u","content":"c"}]}`),
		"twitter": output(`{"posts":[{"title":"t1","url":"u","content":"c"}]}`),
	}}
	s := testScraper(runner)

	resp := s.ScrapeBoth(context.Background(), aaplRequest)
	if resp.Source != CombinedSource || resp.Ticker != "AAPL" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	var titles []string
	for _, p := range resp.Posts {
		titles = append(titles, p.Title)
	}
	if strings.Join(titles, ",") != "r1,r2,t1" {
		t.Errorf("unexpected merge order: %v", titles)
	}
	if resp.Errors != nil {
		t.Errorf("expected no errors, got %v", resp.Errors)
	}
}

func TestScrapeBothIsolatesFailures(t *testing.T) {
	boom := errors.New("twitter agent down")
	runner := &fakeRunner{
		outputs:   map[string]*string{"reddit": output(`{"posts":[{"title":"r1","url":"u","content":"c"}]}`)},
		submitErr: map[string]error{"twitter": boom},
	}
	s := testScraper(runner)

	resp := s.ScrapeBoth(context.Background(), aaplRequest)
	if len(resp.Posts) != 1 || resp.Posts[0].Platform != Reddit {
		t.Fatalf("expected only reddit posts, got %+v", resp.Posts)
	}
	if resp.Errors["twitter"] != "twitter agent down" {
		t.Errorf("expected twitter failure to be reported, got %v", resp.Errors)
	}

	both := testScraper(&fakeRunner{submitErr: map[string]error{"reddit": boom, "twitter": boom}})
	resp = both.ScrapeBoth(context.Background(), aaplRequest)
	if resp.Posts == nil || len(resp.Posts) != 0 {
		t.Errorf("expected empty, non-nil posts, got %#v", resp.Posts)
	}
	if len(resp.Errors) != 2 {
		t.Errorf("expected both failures reported, got %v", resp.Errors)
	}
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]ScrapeResponse
	err   error
}

func (m *memoryCache) Get(ctx context.Context, key string) (ScrapeResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ScrapeResponse{}, false, m.err
	}
	resp, ok := m.items[key]
	return resp, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, resp ScrapeResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.items == nil {
		m.items = make(map[string]ScrapeResponse)
	}
	m.items[key] = resp
	return nil
}

func TestScrapeUsesCacheForAgentResults(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"reddit": output(`{"posts":[{"title":"t","url":"u","content":"c"}]}`),
	}}
	cache := &memoryCache{}
	s := testScraper(runner)
	s.Cache = cache

	for i := 0; i < 2; i++ {
		resp, err := s.Scrape(context.Background(), Reddit, aaplRequest)
		if err != nil {
			t.Fatalf("Scrape: %v", err)
		}
		if len(resp.Posts) != 1 || resp.Posts[0].Title != "t" {
			t.Fatalf("unexpected posts: %+v", resp.Posts)
		}
	}
	if len(runner.prompts) != 1 {
		t.Errorf("expected a single agent task, got %d", len(runner.prompts))
	}
	if _, ok := cache.items[CacheKey(Reddit, aaplRequest)]; !ok {
		t.Errorf("expected response to be cached under %s", CacheKey(Reddit, aaplRequest))
	}
}

func TestScrapeDoesNotCacheFallbacks(t *testing.T) {
	cache := &memoryCache{}
	s := testScraper(&fakeRunner{})
	s.Cache = cache

	if _, err := s.Scrape(context.Background(), Twitter, aaplRequest); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(cache.items) != 0 {
		t.Errorf("fallback responses must not be cached")
	}
}

func TestScrapeIgnoresCacheErrors(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"reddit": output(`{"posts":[{"title":"t","url":"u","content":"c"}]}`),
	}}
	s := testScraper(runner)
	s.Cache = &memoryCache{err: errors.New("valkey down")}

	resp, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	if err != nil {
		t.Fatalf("cache errors should not fail scrapes: %v", err)
	}
	if resp.Fallback {
		t.Errorf("expected agent data")
	}
}

func TestScrapeCacheKeepsTickerVerbatim(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]*string{
		"reddit": output(`{"posts":[{"title":"t","url":"u","content":"c"}]}`),
	}}
	s := testScraper(runner)
	s.Cache = &memoryCache{}

	upper, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	lower := aaplRequest
	lower.Ticker = "aapl"
	resp, err := s.Scrape(context.Background(), Reddit, lower)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	if upper.Ticker != "AAPL" || resp.Ticker != "aapl" {
		t.Errorf("tickers not echoed: %q then %q", upper.Ticker, resp.Ticker)
	}
	if len(runner.prompts) != 2 {
		t.Fatalf("differently cased tickers should not share a cache entry, agent calls = %d", len(runner.prompts))
	}
	if !strings.Contains(runner.prompts[1], "$aapl") {
		t.Errorf("second prompt should quote the lower case ticker")
	}
	if CacheKey(Reddit, aaplRequest) == CacheKey(Reddit, lower) {
		t.Errorf("cache keys should differ by ticker case")
	}
}

func TestScrapeCacheHitEchoesRequestTicker(t *testing.T) {
	runner := &fakeRunner{}
	cache := &memoryCache{items: map[string]ScrapeResponse{
		CacheKey(Reddit, aaplRequest): {Ticker: "stale", Source: "reddit", Posts: []SocialPost{{Platform: Reddit, Title: "cached"}}},
	}}
	s := testScraper(runner)
	s.Cache = cache

	resp, err := s.Scrape(context.Background(), Reddit, aaplRequest)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if resp.Ticker != "AAPL" || resp.Posts[0].Title != "cached" {
		t.Errorf("unexpected cached response: %+v", resp)
	}
	if len(runner.prompts) != 0 {
		t.Errorf("cache hit should not reach the agent")
	}
}
