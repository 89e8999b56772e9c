package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"tasvir/internal/bootstrap"
	"tasvir/internal/generation"
	"tasvir/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(infra.LogOptions{Env: cfg.AppEnv, Level: cfg.LogLevel, Service: "worker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to initialise dependencies")
	}
	defer deps.Close()

	var srv *asynq.Server
	if deps.Redis != nil {
		redisOpt := infra.AsynqRedisOpt(cfg)
		queue := generation.NewAsynqQueue(redisOpt)
		defer queue.Close()
		deps.Generation.SetQueue(queue)

		srv = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues:      map[string]int{generation.PollQueue: 1},
			Logger:      asynqLogger{logger: logger},
		})
		mux := asynq.NewServeMux()
		deps.Generation.RegisterHandlers(mux)
		if err := srv.Start(mux); err != nil {
			logger.Fatal().Err(err).Msg("worker: asynq server failed to start")
		}
		logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: consuming generation polls")
	} else {
		logger.Warn().Msg("worker: REDIS_ADDR not set, running scheduled jobs only")
	}

	sched, err := newScheduler(deps, cfg.PollStaleAfter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to register scheduled jobs")
	}
	sched.Start()
	logger.Info().Msg("worker started")

	<-ctx.Done()

	logger.Info().Msg("worker stopping")
	<-sched.Stop().Done()
	if srv != nil {
		srv.Shutdown()
	}
	logger.Info().Msg("worker stopped")
}
