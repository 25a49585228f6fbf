// Package redispub mirrors freshly built candles and fired signals into
// Redis Streams for dashboards and downstream consumers. The CSV and JSON
// stores stay the source of truth; Redis being down never fails a cycle.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradesignals/internal/model"
)

const (
	// Streams hold roughly two sessions of candles.
	candleStreamMaxLen = 1000
	signalStreamMaxLen = 500
	latestTTL          = 30 * time.Minute
)

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes candles and signals to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
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

	log.Printf("[redispub] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishCandles XADDs a batch of finished candles to the per-timeframe
// stream and refreshes the latest-candle key. Errors are logged, not
// returned; publication is best-effort.
func (p *Publisher) PublishCandles(ctx context.Context, tf model.Timeframe, kind model.DatasetKind, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}

	streamKey := fmt.Sprintf("candle:%s:%s:%s", tf, candles[0].Symbol, kind)
	pipe := p.client.Pipeline()
	var lastJSON []byte
	for i := range candles {
		data, err := json.Marshal(&candles[i])
		if err != nil {
			continue
		}
		lastJSON = data
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: candleStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
	}
	if lastJSON != nil {
		latestKey := fmt.Sprintf("candle:%s:latest:%s:%s", tf, candles[0].Symbol, kind)
		pipe.Set(ctx, latestKey, string(lastJSON), latestTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redispub] candle pipeline error for %s: %v", streamKey, err)
	}
}

// PublishSignal XADDs a fired signal, refreshes the latest-signal key, and
// publishes to the live pubsub channel.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		log.Printf("[redispub] signal marshal error: %v", err)
		return
	}
	jsonData := string(data)

	streamKey := "signals:" + sig.Symbol
	latestKey := "signals:latest:" + sig.Symbol
	pubsubCh := "pub:signals:" + sig.Symbol

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, latestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redispub] signal pipeline error for %s: %v", streamKey, err)
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
