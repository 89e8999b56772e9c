package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tasvir/internal/auth"
	"tasvir/internal/bootstrap"
	"tasvir/internal/generation"
	"tasvir/internal/http/handlers"
	"tasvir/internal/http/httpapi"
	"tasvir/internal/infra"
	"tasvir/internal/infra/geoip"
	"tasvir/internal/middleware"
	"tasvir/internal/providers/kie"
	"tasvir/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(infra.LogOptions{Env: cfg.AppEnv, Level: cfg.LogLevel, Service: "api"})

	ctx := context.Background()
	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer deps.Close()

	tokens, err := auth.NewTokens(cfg.JWTSecret, "tasvir", cfg.JWTTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid jwt configuration")
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
		defer resolver.Close()
	}

	app := &handlers.App{
		Config:        cfg,
		Logger:        &deps.Logger,
		Generation:    deps.Generation,
		Users:         deps.Users,
		Discounts:     deps.DiscountSvc,
		Billing:       deps.Billing,
		Storage:       store,
		ParseCallback: kie.ParseCallback,
		Readiness:     deps.Checks,
	}

	opts := httpapi.Options{
		Tokens:      tokens,
		Country:     countryLookup,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		AdminToken:  cfg.AdminToken,
		StaticDir:   store.BasePath(),
	}

	if deps.Redis != nil {
		queue := generation.NewAsynqQueue(infra.AsynqRedisOpt(cfg))
		defer queue.Close()
		deps.Generation.SetQueue(queue)

		app.OTP, err = auth.NewOTP(auth.OTPOptions{
			Redis:  deps.Redis,
			Sender: deps.SMS,
			Users:  deps.Users,
			Tokens: tokens,
			Logger: &deps.Logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise otp")
		}
		opts.Limiter = middleware.NewRedisLimiter(deps.Redis, "rl:api", cfg.RateLimitPerMin, time.Minute)
		opts.OTPLimiter = middleware.NewRedisLimiter(deps.Redis, "rl:otp", cfg.OTPRateLimit, time.Minute)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set: otp login disabled, polls rely on clients and the sweeper")
		opts.Limiter = middleware.NewMemoryLimiter(cfg.RateLimitPerMin, time.Minute)
		opts.OTPLimiter = middleware.NewMemoryLimiter(cfg.OTPRateLimit, time.Minute)
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, opts), logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(runCtx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
		return
	}
	logger.Info().Msg("server stopped")
}
