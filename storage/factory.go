package storage

import (
	"github.com/sirupsen/logrus"
)

// Config selects and configures a gateway implementation.
type Config struct {
	RedisEnabled bool
	Redis        RedisConfig
}

// New returns a Redis-backed gateway when one is configured and reachable,
// falling back to the in-memory gateway otherwise. The fallback is
// deliberate: persistence is a convenience layer and must never prevent
// the client from starting.
func New(cfg Config) Gateway {
	if !cfg.RedisEnabled {
		return NewMemoryGateway()
	}

	gw, err := NewRedisGateway(cfg.Redis)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"address":  cfg.Redis.Address,
			"error":    err.Error(),
		}).Warn("Redis unavailable, falling back to in-memory storage")
		return NewMemoryGateway()
	}
	return gw
}
