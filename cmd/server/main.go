package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hong-lou/chatrelay/internal/auth"
	"github.com/hong-lou/chatrelay/internal/config"
	"github.com/hong-lou/chatrelay/internal/fanout"
	"github.com/hong-lou/chatrelay/internal/logging"
	"github.com/hong-lou/chatrelay/internal/postgres"
	"github.com/hong-lou/chatrelay/internal/redis"
	"github.com/hong-lou/chatrelay/internal/server"
	"github.com/hong-lou/chatrelay/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, bridge *fanout.Bridge) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// The bridge outlives in-flight sessions until here so no fanout is
		// lost mid-drain; it is the last thing to go.
		bridge.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port,
		"version", build.Version, "commit", build.Commit)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// Transport collaborators
	pubsub := redis.NewPubSub(redisClient)
	presenceStore := redis.NewPresenceStore(redisClient)
	unread := redis.NewUnreadCounters(redisClient)

	// Persistence and auth collaborators
	membership := postgres.NewMembershipRepo(pool)
	messages := postgres.NewMessageRepo(pool)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	// Fanout core. The bridge is constructed here and owned by this
	// function's lifecycle; it is passed down, never looked up.
	registry := fanout.NewRegistry()
	bridge := fanout.NewBridge(pubsub, registry)
	if err := bridge.Start(context.Background()); err != nil {
		slog.Error("Failed to start fanout bridge", "error", err)
		os.Exit(1)
	}

	presence := fanout.NewPresenceTracker(presenceStore, pubsub, clock, cfg.PresenceTTL, cfg.HeartbeatInterval)
	sessions := fanout.NewSessionController(verifier, membership, registry, presence, clock, fanout.SessionConfig{
		QueueSize:            cfg.OutboundQueueSize,
		FrameBurstCapacity:   cfg.FrameBurstCapacity,
		FrameRefillPerSecond: cfg.FrameRefillPerSecond,
	})

	srv := server.NewServer(cfg, sessions, verifier, membership, messages, pubsub, unread, pool, redisClient)

	done := runGracefulShutdown(srv, bridge)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
