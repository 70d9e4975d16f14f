package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, TransportHTTP, cfg.VisionTransport)
	assert.Equal(t, 30*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 10<<20, cfg.MaxImageBytes)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.MQTTBroker)
	assert.False(t, cfg.AuthDisabled)
}

func TestFromViperReadsEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_DSN", "postgres://u:p@db/recycle")
	t.Setenv("VISION_TRANSPORT", "grpc")
	t.Setenv("VISION_ENDPOINT", "vision:50051")
	t.Setenv("VISION_TIMEOUT", "5s")
	t.Setenv("MAX_IMAGE_BYTES", "1024")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_DISABLED", "true")

	cfg, err := FromViper(New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, TransportGRPC, cfg.VisionTransport)
	assert.Equal(t, "vision:50051", cfg.VisionEndpoint)
	assert.Equal(t, 5*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 1024, cfg.MaxImageBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.AuthDisabled)
}

func TestValidateListsEveryProblem(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("VISION_TRANSPORT", "carrier-pigeon")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("MAX_IMAGE_BYTES", "0")

	_, err := FromViper(New())
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_DRIVER")
	assert.Contains(t, msg, "VISION_TRANSPORT")
	assert.Contains(t, msg, "LOG_LEVEL")
	assert.Contains(t, msg, "MAX_IMAGE_BYTES")
}
