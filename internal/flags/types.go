package flags

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("flag not found")
	ErrInvalidKey = errors.New("invalid flag key")
)

// Kill switches checked before a session starts. A missing flag counts as
// enabled so a fresh deployment works without seeding Redis.
const (
	SwapsEnabled     = "swaps.enabled"
	LiquidityEnabled = "liquidity.enabled"
)

type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
