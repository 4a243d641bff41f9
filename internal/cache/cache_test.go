package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionCache struct {
	published  []*models.SessionEvent
	recent     []*models.SessionEvent
	publishErr error
}

func (f *fakeSessionCache) AddRecentEvent(_ context.Context, ev *models.SessionEvent) error {
	f.recent = append(f.recent, ev)
	return nil
}

func (f *fakeSessionCache) GetRecentEvents(context.Context, int64) ([]*models.SessionEvent, error) {
	return f.recent, nil
}

func (f *fakeSessionCache) PublishEvent(_ context.Context, ev *models.SessionEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeSessionCache) SubscribeEvents(context.Context) (<-chan *models.SessionEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSessionCache) Ping(context.Context) error { return nil }
func (f *fakeSessionCache) Close() error               { return nil }

type fakeHistory struct {
	records []*models.StepRecord
	err     error
}

func (f *fakeHistory) InsertStep(_ context.Context, rec *models.StepRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistory) RecentSteps(context.Context, int) ([]*models.StepRecord, error) {
	return f.records, nil
}

func (f *fakeHistory) Ping(context.Context) error { return nil }
func (f *fakeHistory) Close() error               { return nil }

func TestFeedSink_PublishesAndRecords(t *testing.T) {
	fc := &fakeSessionCache{}
	sink := NewFeedSink(fc)
	ev := &models.SessionEvent{SessionID: "s1", State: "running"}

	require.NoError(t, sink.HandleEvent(context.Background(), ev))
	assert.Len(t, fc.published, 1)
	assert.Len(t, fc.recent, 1)

	// A failed publish still records the event.
	fc.publishErr = errors.New("redis down")
	err := sink.HandleEvent(context.Background(), ev)
	assert.ErrorContains(t, err, "redis down")
	assert.Len(t, fc.recent, 2)
}

func TestHistorySink_OnlyFinishedSteps(t *testing.T) {
	h := &fakeHistory{}
	sink := NewHistorySink(h)
	ctx := context.Background()

	for _, status := range []string{"pending", "submitted", "confirmed", "failed", ""} {
		require.NoError(t, sink.HandleEvent(ctx, &models.SessionEvent{
			SessionID:  "s1",
			StepIndex:  2,
			StepKind:   "mint",
			StepStatus: status,
			Timestamp:  time.Unix(10, 0),
		}))
	}
	require.Len(t, h.records, 2)
	assert.Equal(t, "confirmed", h.records[0].Status)
	assert.Equal(t, "failed", h.records[1].Status)
	assert.Equal(t, 2, h.records[0].StepIndex)
	assert.Equal(t, time.Unix(10, 0), h.records[0].FinishedAt)

	h.err = errors.New("insert failed")
	err := sink.HandleEvent(ctx, &models.SessionEvent{SessionID: "s2", StepStatus: "confirmed"})
	assert.ErrorContains(t, err, "s2")
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func newTestCache(t *testing.T, maxRecent int64) *RedisCache {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRedisCacheFromClient(setupTestRedis(t), RedisConfig{MaxRecent: maxRecent, Logger: logger})
}

func TestRedisCache_RecentIsBoundedNewestFirst(t *testing.T) {
	rc := newTestCache(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rc.AddRecentEvent(ctx, &models.SessionEvent{SessionID: fmt.Sprintf("s%d", i)}))
	}

	events, err := rc.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "s4", events[0].SessionID)
	assert.Equal(t, "s2", events[2].SessionID)

	events, err = rc.GetRecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRedisCache_PublishSubscribe(t *testing.T) {
	rc := newTestCache(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all, err := rc.SubscribeEvents(ctx)
	require.NoError(t, err)
	one, err := rc.SubscribeSession(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, rc.PublishEvent(ctx, &models.SessionEvent{SessionID: "abc", State: "succeeded"}))

	for _, ch := range []<-chan *models.SessionEvent{all, one} {
		select {
		case ev := <-ch:
			assert.Equal(t, "abc", ev.SessionID)
			assert.True(t, ev.Terminal())
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}
