package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/pairswap/internal/constants"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/storage"
)

// ChannelAll carries every session's events.
const ChannelAll = constants.PubSubChannelSessions

// SessionChannel is the channel carrying one session's events.
func SessionChannel(id string) string { return fmt.Sprintf(constants.PubSubChannelSession, id) }

// PublishEvent publishes ev to the firehose and to its session's channel.
func (r *RedisCache) PublishEvent(ctx context.Context, ev *models.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	pipe := r.client.Pipeline()
	for _, ch := range []string{ChannelAll, SessionChannel(ev.SessionID)} {
		pipe.Publish(ctx, ch, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// SubscribeEvents streams the firehose. The channel closes when ctx ends.
func (r *RedisCache) SubscribeEvents(ctx context.Context) (<-chan *models.SessionEvent, error) {
	return r.subscribe(ctx, ChannelAll)
}

// SubscribeSession streams the events of one session.
func (r *RedisCache) SubscribeSession(ctx context.Context, id string) (<-chan *models.SessionEvent, error) {
	return r.subscribe(ctx, SessionChannel(id))
}

// Listen calls handler for every event on the session channels until ctx
// ends.
func (r *RedisCache) Listen(ctx context.Context, handler storage.EventHandler) error {
	ps := r.client.PSubscribe(ctx, constants.PubSubChannelPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", constants.PubSubChannelPattern, err)
	}
	r.logger.WithField("pattern", constants.PubSubChannelPattern).Info("subscribed to session events")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			// Each event arrives on the firehose and on its session channel.
			if msg.Channel == ChannelAll {
				continue
			}
			var ev models.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.WithError(err).Warn("error unmarshaling session event")
				continue
			}
			handler(&ev)
		}
	}
}

func (r *RedisCache) subscribe(ctx context.Context, channel string) (<-chan *models.SessionEvent, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan *models.SessionEvent, 64)
	go func() {
		defer close(out)
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.WithError(err).Warn("error unmarshaling session event")
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
