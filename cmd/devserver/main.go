package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"grievance-chat/internal/devserver"
	"grievance-chat/internal/observability"
)

func main() {
	_ = godotenv.Load(".env")
	log := observability.WithFields("service", "devserver")

	// 1. Config & Flags
	addr := flag.String("addr", ":8000", "http service address")
	seed := flag.Bool("seed", true, "create demo users and a demo grievance")
	flag.Parse()
	observability.SetLevel(os.Getenv("LOG_LEVEL"))

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-change-me"
		log.Warn("⚠️ JWT_SECRET is not set, using the dev default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage: PostgreSQL when DB_DSN is set, memory otherwise
	var repo devserver.Repository
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		pg, err := devserver.OpenPostgres(ctx, dsn)
		if err != nil {
			log.Error("❌ Failed to connect to DB", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		log.Info("✅ Connected to PostgreSQL")

		if err := pg.AutoMigrate(ctx); err != nil {
			log.Error("❌ Migration failed", "err", err)
			os.Exit(1)
		}
		log.Info("✅ Database Schema Initialized")
		repo = pg
	} else {
		repo = devserver.NewMemoryRepository()
		log.Info("✅ Using in-memory storage")
	}

	// 3. Fanout: Redis pub/sub when REDIS_ADDR is set, in-process otherwise
	var broker devserver.Broker = devserver.NewLocalBroker()
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("❌ Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		broker = devserver.NewRedisBroker(redisClient, log)
		log.Info("✅ Connected to Redis")
	}

	// 4. Auth & seed data
	auth := devserver.NewAuth(repo, jwtSecret)
	if *seed {
		if err := devserver.SeedDemo(ctx, repo, auth); err != nil {
			log.Error("❌ Seeding failed", "err", err)
			os.Exit(1)
		}
		log.Info("✅ Demo users ready", "users", len(devserver.DemoUsers))
	}

	// 5. Start the Hub Engine
	hub := devserver.NewHub(broker, log)
	go hub.Run(ctx)

	// 6. Routes
	srv := devserver.NewServer(repo, auth, hub, log, devserver.Config{RequestLogging: true})
	httpServer := &http.Server{Addr: *addr, Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("🚀 Server starting", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
