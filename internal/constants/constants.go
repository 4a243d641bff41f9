package constants

import "time"

// Redis keys
const (
	RedisKeyRecentSessions = "sessions:recent"
	RedisKeyFlagIndex      = "pairswap:flags:index"
	RedisKeyFlagPrefix     = "pairswap:flags:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelSessions = "sessions:all"
	PubSubChannelSession  = "sessions:%s" // one session's events
	PubSubChannelPattern  = "sessions:*"
)

// Limits
const (
	MaxRecentSessionEvents = 200
)

// Timeouts for store round trips made from the event path
const (
	PublishTimeout = 3 * time.Second
	InsertTimeout  = 5 * time.Second
)
