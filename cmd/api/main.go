// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/idempotency"
	"bookstore/internal/notify"
	"bookstore/internal/pricing"
	"bookstore/internal/server"
	"bookstore/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Failed to flush traces: %v", err)
		}
	}()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	var guard idempotency.Guard = idempotency.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		guard = idempotency.NewRedisGuard(rdb)
		log.Printf("Idempotency keys stored in Redis at %s", cfg.RedisAddr)
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(cfg.SMTP)
	}

	app, err := server.NewApp(server.Deps{
		DB:                  db,
		Tokens:              auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Guard:               guard,
		Sender:              sender,
		NotifyRatePerMinute: cfg.NotifyRatePerMinute,
		Policy:              pricing.DefaultPolicy(),
	})
	if err != nil {
		log.Fatalf("Failed to build API: %v", err)
	}

	if cfg.AdminEmail != "" {
		if err := app.Members.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to provision admin account: %v", err)
		}
	}

	srv := server.New(":"+cfg.Port, app.Router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Bookstore API listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
