package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"athenascraper/internal/social"
)

// Valkey stores scrape responses in Valkey with a TTL.
type Valkey struct {
	client valkey.Client
	ttl    time.Duration
}

var _ social.ResponseCache = (*Valkey)(nil)

// Options configure the Valkey connection.
type Options struct {
	Addr     string
	Password string
	TTL      time.Duration
}

// NewValkey connects to Valkey and verifies the connection with a PING.
func NewValkey(ctx context.Context, opts Options) (*Valkey, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("cache: valkey address is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{opts.Addr},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping valkey: %w", err)
	}

	slog.Info("[Cache] connected to valkey", slog.String("addr", opts.Addr), slog.Duration("ttl", opts.TTL))
	return &Valkey{client: client, ttl: opts.TTL}, nil
}

// Get returns the cached response for key, if any.
func (v *Valkey) Get(ctx context.Context, key string) (social.ScrapeResponse, bool, error) {
	raw, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return social.ScrapeResponse{}, false, nil
	}
	if err != nil {
		return social.ScrapeResponse{}, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return social.ScrapeResponse{}, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return resp, true, nil
}

// Set stores resp under key and refreshes its expiry.
func (v *Valkey) Set(ctx context.Context, key string, resp social.ScrapeResponse) error {
	payload, err := encodeResponse(resp)
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}

	completed := []valkey.Completed{
		v.client.B().Set().Key(key).Value(payload).Build(),
		v.client.B().Expire().Key(key).Seconds(int64(v.ttl / time.Second)).Build(),
	}
	for _, res := range v.client.DoMulti(ctx, completed...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("cache: set %s: %w", key, err)
		}
	}
	return nil
}

// Close releases the underlying connections.
func (v *Valkey) Close() {
	v.client.Close()
}

func encodeResponse(resp social.ScrapeResponse) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeResponse(raw string) (social.ScrapeResponse, error) {
	var resp social.ScrapeResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return social.ScrapeResponse{}, fmt.Errorf("decode cached response: %w", err)
	}
	if resp.Posts == nil {
		resp.Posts = []social.SocialPost{}
	}
	return resp, nil
}
