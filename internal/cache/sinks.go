package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/pairswap/internal/constants"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/storage"
)

// FeedSink publishes session events and keeps them in the recent list.
type FeedSink struct {
	cache storage.SessionCache
}

func NewFeedSink(c storage.SessionCache) *FeedSink { return &FeedSink{cache: c} }

func (s *FeedSink) HandleEvent(ctx context.Context, ev *models.SessionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, constants.PublishTimeout)
	defer cancel()

	var errs []error
	if err := s.cache.PublishEvent(ctx, ev); err != nil {
		errs = append(errs, err)
	}
	if err := s.cache.AddRecentEvent(ctx, ev); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HistorySink records steps that reached a final status.
type HistorySink struct {
	store storage.HistoryStore
}

func NewHistorySink(store storage.HistoryStore) *HistorySink { return &HistorySink{store: store} }

func (s *HistorySink) HandleEvent(ctx context.Context, ev *models.SessionEvent) error {
	rec := models.StepRecordFromEvent(ev)
	if rec == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, constants.InsertTimeout)
	defer cancel()
	if err := s.store.InsertStep(ctx, rec); err != nil {
		return fmt.Errorf("record step %d of %s: %w", rec.StepIndex, rec.SessionID, err)
	}
	return nil
}
