package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/pairswap/internal/models"
)

// SessionCache is the live feed of orchestrator transitions.
type SessionCache interface {
	// AddRecentEvent pushes an event onto the bounded recent list
	AddRecentEvent(ctx context.Context, ev *models.SessionEvent) error

	// GetRecentEvents returns up to limit events, newest first
	GetRecentEvents(ctx context.Context, limit int64) ([]*models.SessionEvent, error)

	// PublishEvent fans an event out to the session channels
	PublishEvent(ctx context.Context, ev *models.SessionEvent) error

	// SubscribeEvents streams every published event until ctx ends
	SubscribeEvents(ctx context.Context) (<-chan *models.SessionEvent, error)

	Ping(ctx context.Context) error
	io.Closer
}

// HistoryStore keeps finished steps for auditing. It is never read back to
// resume a session.
type HistoryStore interface {
	InsertStep(ctx context.Context, rec *models.StepRecord) error
	RecentSteps(ctx context.Context, limit int) ([]*models.StepRecord, error)
	Ping(ctx context.Context) error
	io.Closer
}

// EventHandler processes one session event.
type EventHandler func(*models.SessionEvent)
