package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"driftwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a couple of hours of 1Hz samples plus slack
	defaultStreamMaxLen = 8192
	defaultLatestTTL    = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate per-series stream cap, 0 = default
}

// Publisher mirrors engine output into Redis: a stream per series for
// history, a latest key for pollers, and pubsub channels for push
// subscribers. External consumers tail these without attaching to the
// WebSocket hub.
type Publisher struct {
	client *goredis.Client
	maxLen int64
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher creates a new Publisher and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, maxLen: maxLen}, nil
}

// writePoint performs the pipelined writes for one engine point:
// XADD to the series stream, SET the latest key, PUBLISH for subscribers.
func (p *Publisher) writePoint(ctx context.Context, pt *model.Point) error {
	jsonData := string(pt.JSON())
	pubsubCh := "pub:sample:" + pt.Series

	if pt.Live {
		// Peek previews: pubsub only, no stream history, no latest key
		return p.client.Publish(ctx, pubsubCh, jsonData).Err()
	}

	pipe := p.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "sig:stream:" + pt.Series,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, "sig:latest:"+pt.Series, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	return err
}

// writeAnomaly appends a flagged anomaly to the series anomaly stream and
// publishes it for push subscribers.
func (p *Publisher) writeAnomaly(ctx context.Context, a *model.Anomaly) error {
	jsonData := string(a.JSON())

	pipe := p.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: a.StreamKey(),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:anomaly:"+a.Series, jsonData)

	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
