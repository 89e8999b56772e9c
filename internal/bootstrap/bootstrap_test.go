package bootstrap

import (
	"context"
	"io"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/infra"
	"tasvir/internal/providers/sms"
)

func memoryConfig() *infra.Config {
	return &infra.Config{
		StoreDriver:    infra.StoreDriverMemory,
		PublicBaseURL:  "http://localhost:8080",
		CallbackSecret: "secret",
		SnowflakeNode:  1,
	}
}

func TestBuildMemory(t *testing.T) {
	d, err := Build(context.Background(), memoryConfig(), zerolog.New(io.Discard))
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.Generation)
	assert.NotNil(t, d.Billing)
	assert.Nil(t, d.Redis)
	assert.Nil(t, d.Credentials)
	assert.Empty(t, d.Checks)
	_, isLog := d.SMS.(*sms.LogSender)
	assert.True(t, isLog, "without an sms key codes are only logged")
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.SMSAPIKey = "kavenegar-key"

	d, err := Build(context.Background(), cfg, zerolog.New(io.Discard))
	require.NoError(t, err)
	defer d.Close()

	require.NotNil(t, d.Redis)
	_, isClient := d.SMS.(*sms.Client)
	assert.True(t, isClient)

	require.Contains(t, d.Checks, "redis")
	require.NoError(t, d.Checks["redis"](context.Background()))
	mr.SetError("ERR server unavailable")
	assert.Error(t, d.Checks["redis"](context.Background()))
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "mongo"
	_, err := Build(context.Background(), cfg, zerolog.New(io.Discard))
	require.Error(t, err)
}
