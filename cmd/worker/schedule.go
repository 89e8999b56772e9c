package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tasvir/internal/bootstrap"
	"tasvir/internal/infra"
)

const (
	monthlyResetSpec = "@daily"
	staleSweepSpec   = "@every 5m"
	jobTimeout       = 2 * time.Minute
)

// newScheduler registers the periodic maintenance jobs: the monthly usage
// reset and the stale task sweep.
func newScheduler(deps *bootstrap.Deps, staleAfter time.Duration, logger infra.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger: logger})))

	if _, err := c.AddFunc(monthlyResetSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := deps.Ledger.ResetMonthly(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("worker: monthly reset failed")
			return
		}
		logger.Info().Int("users", n).Msg("worker: monthly usage reset")
	}); err != nil {
		return nil, fmt.Errorf("register monthly reset: %w", err)
	}

	if _, err := c.AddFunc(staleSweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := deps.Generation.SweepStale(ctx, staleAfter)
		if err != nil {
			logger.Error().Err(err).Msg("worker: stale sweep failed")
			return
		}
		if n > 0 {
			logger.Info().Int("tasks", n).Msg("worker: stale tasks re-checked")
		}
	}); err != nil {
		return nil, fmt.Errorf("register stale sweep: %w", err)
	}
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger infra.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger infra.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
