package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gridcast/internal/api"
	"gridcast/internal/config"
	"gridcast/internal/console"
	"gridcast/internal/events"
	"gridcast/internal/policy"
	"gridcast/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// Load config
	if _, err := config.Load(config.GetConfigPath()); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.Get()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event fan-out: websocket clients always, the redis stream when reachable
	hub := events.NewHub(logger.Named("hub"))
	defer hub.Close()
	bus := events.NewBus(hub)

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, events go to websocket clients only",
			zap.String("addr", redisCfg.Addr), zap.Error(err))
	} else {
		bus.Subscribe(events.NewStreamPublisher(redisClient, redisCfg.Stream, logger.Named("stream")))
		logger.Info("Publishing events to Redis stream", zap.String("stream", redisCfg.Stream))
	}
	cancelPing()

	// Initialize predictor client
	predictor := api.NewPredictorClient(cfg.Predictor.BaseURL, cfg.Predictor.Timeout)

	con := console.New(predictor, console.Options{
		Range:    cfg.DefaultRange(),
		Logger:   logger.Named("console"),
		Notifier: bus,
	})
	defer con.Close()

	agg := policy.NewAggregator(predictor, policy.Options{
		Debounce: cfg.Policy.Debounce,
		Policy:   cfg.PolicyParams(),
		Cities:   cfg.CityWeather(),
		Logger:   logger.Named("policy"),
		Notifier: bus,
	})
	defer agg.Close()

	// Initial views load in the background so the API is up while the predictor warms
	go func() {
		con.LoadBaseline(ctx)
		if _, err := con.SelectRange(ctx, cfg.DefaultRange(), 0); err != nil && !errors.Is(err, console.ErrSuperseded) {
			logger.Warn("Initial forecast fetch failed", zap.Error(err))
		}
	}()
	go func() {
		if _, err := agg.Recompute(ctx); err != nil && !errors.Is(err, policy.ErrSuperseded) {
			logger.Warn("Initial aggregation failed", zap.Error(err))
		}
	}()

	srv := server.NewServer(server.Options{
		Console:    con,
		Aggregator: agg,
		Predictor:  predictor,
		Events:     hub,
		Logger:     logger.Named("http"),
	})

	if err := srv.Start(ctx, cfg.Server.Addr, cfg.Server.AllowedOrigins); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func newLogger() (*zap.Logger, error) {
	if config.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
