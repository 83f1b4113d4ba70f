package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"blaze/internal/platform/config"
)

func TestApplyPool(t *testing.T) {
	opts := &redis.Options{PoolSize: 10, DialTimeout: 5 * time.Second}
	applyPool(opts, config.RedisConfig{PoolSize: 32, ReadTimeout: time.Second})

	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 5*time.Second, opts.DialTimeout, "zero keeps the existing value")
}
