package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/bootstrap"
	"tasvir/internal/infra"
)

func TestSchedulerRegistersMaintenanceJobs(t *testing.T) {
	cfg := &infra.Config{
		AppEnv:         "test",
		StoreDriver:    infra.StoreDriverMemory,
		PublicBaseURL:  "http://localhost:8080",
		CallbackSecret: "secret",
		KieBaseURL:     "http://127.0.0.1:1",
		SnowflakeNode:  1,
	}
	logger := zerolog.Nop()
	deps, err := bootstrap.Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	sched, err := newScheduler(deps, time.Minute, logger)
	require.NoError(t, err)
	assert.Len(t, sched.Entries(), 2)
}
