package publisher

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fortuna/pennant/internal/league"
)

// Stream names.
const (
	StreamGameFinal        = "games.final.npb"
	StreamStandingsUpdated = "standings.updated.npb"
)

// streamMaxLen caps each stream; older entries are trimmed approximately.
const streamMaxLen = 10000

// GameFinalEvent is published when a canonical record first becomes COMPLETED.
type GameFinalEvent struct {
	Game league.Game `json:"game"`
}

// StandingsEvent is published after a league table is recomputed.
type StandingsEvent struct {
	League    league.League          `json:"league"`
	Standings []league.StandingEntry `json:"standings"`
}

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client}
}

// PublishGameFinal publishes a completed game.
func (p *RedisStreamPublisher) PublishGameFinal(ctx context.Context, g league.Game) error {
	return p.publish(ctx, StreamGameFinal, GameFinalEvent{Game: g})
}

// PublishStandings publishes a recomputed league table.
func (p *RedisStreamPublisher) PublishStandings(ctx context.Context, lg league.League, entries []league.StandingEntry) error {
	return p.publish(ctx, StreamStandingsUpdated, StandingsEvent{League: lg, Standings: entries})
}

func (p *RedisStreamPublisher) publish(ctx context.Context, stream string, payload interface{}) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", stream)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	return errors.Wrapf(err, "xadd %s", stream)
}

// Message is one stream entry as delivered to subscribers.
type Message struct {
	Stream string
	ID     string
	Data   []byte
}

// Subscribe tails the given streams from new entries on and calls fn for each one
// until ctx is cancelled.
func (p *RedisStreamPublisher) Subscribe(ctx context.Context, fn func(Message), streams ...string) error {
	last := make(map[string]string, len(streams))
	for _, s := range streams {
		last[s] = "$"
	}

	for {
		args := make([]string, 0, 2*len(streams))
		args = append(args, streams...)
		for _, s := range streams {
			args = append(args, last[s])
		}

		res, err := p.client.XRead(ctx, &redis.XReadArgs{
			Streams: args,
			Block:   5 * time.Second,
			Count:   100,
		}).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "xread")
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				last[stream.Stream] = msg.ID
				data, _ := msg.Values["data"].(string)
				fn(Message{Stream: stream.Stream, ID: msg.ID, Data: []byte(data)})
			}
		}
	}
}
