package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"

	"github.com/shiva/seatline/config"
)

func TestHealthCheck(t *testing.T) {
	client, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, HealthCheck(context.Background(), client))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.Error(t, HealthCheck(context.Background(), client))
}

func TestOptions(t *testing.T) {
	opts := options(config.RedisConfig{
		Host:         "cache.internal",
		Port:         6380,
		DB:           2,
		PoolSize:     32,
		MinIdleConns: 4,
		DialTimeout:  time.Second,
		ReadTimeout:  300 * time.Millisecond,
		WriteTimeout: 400 * time.Millisecond,
	})

	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, 4, opts.MinIdleConns)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 300*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 400*time.Millisecond, opts.WriteTimeout)
	assert.True(t, opts.ContextTimeoutEnabled)
}
