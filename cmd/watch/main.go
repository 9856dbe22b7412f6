package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gridcast/internal/config"
	"gridcast/internal/events"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	group := flag.String("group", "gridcast_watchers", "consumer group")
	consumer := flag.String("consumer", "watcher-1", "consumer name")
	flag.Parse()

	// Load config; the redis settings fall back to the environment when it is missing
	if _, err := config.Load(config.GetConfigPath()); err != nil {
		log.Printf("Config not loaded, using environment: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	stream := redisCfg.Stream

	// Create consumer group if it doesn't exist
	err = redisClient.XGroupCreateMkStream(context.Background(), stream, *group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		logger.Fatal("Failed to create consumer group", zap.String("group", *group), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching event stream, press Ctrl+C to stop",
		zap.String("stream", stream), zap.String("group", *group), zap.String("consumer", *consumer))

	// Read from stream in a loop
	for {
		msgs, err := redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    *group,
			Consumer: *consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if ctx.Err() != nil {
			break
		}

		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("Error reading from Redis", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			for _, m := range msg.Messages {
				e, err := decodeEntry(m.Values)
				if err != nil {
					logger.Warn("Skipping malformed entry", zap.String("id", m.ID), zap.Error(err))
				} else {
					logger.Info("Event",
						zap.String("kind", string(e.Kind)),
						zap.String("event_id", e.ID),
						zap.Time("at", e.At),
						zap.String("summary", summarize(e)))
				}

				// Acknowledge the message
				redisClient.XAck(context.Background(), stream, *group, m.ID)
			}
		}
	}

	logger.Info("Watcher stopped")
}

// decodeEntry rebuilds an event from a stream entry written by the server
func decodeEntry(values map[string]interface{}) (events.Event, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return events.Event{}, fmt.Errorf("entry has no data field")
	}

	var e events.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return events.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if kind, ok := values["kind"].(string); ok && e.Kind == "" {
		e.Kind = events.Kind(kind)
	}
	return e, nil
}

// summarize picks the headline figure of an event for the log line
func summarize(e events.Event) string {
	payload, ok := e.Payload.(map[string]interface{})
	if !ok {
		return ""
	}

	switch e.Kind {
	case events.AggregateUpdated:
		result, _ := payload["result"].(map[string]interface{})
		total, _ := result["total_mw"].(float64)
		overloaded, _ := payload["overloaded"].(bool)
		if overloaded {
			return fmt.Sprintf("%.1f MW OVERLOADED", total)
		}
		return fmt.Sprintf("%.1f MW", total)
	case events.ForecastUpdated, events.SimulationFallback, events.BaselineLoaded:
		series, _ := payload["series"].([]interface{})
		return fmt.Sprintf("%v, %d points", payload["range"], len(series))
	}
	return ""
}
