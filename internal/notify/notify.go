// Package notify publishes slot changes so UIs holding cached availability
// can refresh. Delivery is best effort and never affects a commit.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sprintbook/internal/config"
)

const DefaultChannel = "sprintbook.changes"

// Change describes one committed slot update.
type Change struct {
	Type         string `json:"type"`
	QuarterID    string `json:"quarter_id"`
	AssignmentID string `json:"assignment_id"`
	Tribe        string `json:"tribe"`
	ResourceName string `json:"resource_name"`
	Role         string `json:"role"`
	Sprints      []int  `json:"sprints"`
	TS           string `json:"ts"`
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Nop drops every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

// Redis publishes changes as JSON on a pub/sub channel.
type Redis struct {
	Client  *redis.Client
	Channel string
}

// NewRedis connects using the notify section of the config.
func NewRedis(cfg config.NotifyConfig) *Redis {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		Channel: channel,
	}
}

func (r *Redis) Publish(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := r.Client.Publish(ctx, r.Channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.Channel, err)
	}
	return nil
}

// Subscribe streams changes until ctx is done. Malformed messages are skipped.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Change, error) {
	sub := r.Client.Subscribe(ctx, r.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.Channel, err)
	}
	out := make(chan Change)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error { return r.Client.Close() }
