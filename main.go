package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sridharsr7/personal-task-manager/auth"
	"github.com/sridharsr7/personal-task-manager/cache"
	"github.com/sridharsr7/personal-task-manager/config"
	"github.com/sridharsr7/personal-task-manager/handlers"
	"github.com/sridharsr7/personal-task-manager/store"
	"github.com/sridharsr7/personal-task-manager/store/memstore"
	"github.com/sridharsr7/personal-task-manager/store/mongostore"
	"github.com/sridharsr7/personal-task-manager/store/sqlstore"
	"github.com/sridharsr7/personal-task-manager/tasks"
	"github.com/sridharsr7/personal-task-manager/telemetry"
)

const connectTimeout = 10 * time.Second

// setUpStore opens the backend named by cfg.StoreDriver.
func setUpStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverPostgres, config.DriverSQLite:
		return sqlstore.Open(ctx, cfg.StoreDriver, cfg.DBSource)
	case config.DriverMemory:
		log.Println("WARN: using the in-memory store; data is lost on exit")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// setUpCache dials Redis when an address is configured.
func setUpCache(ctx context.Context, cfg config.Config) (cache.Cache, func() error, error) {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, task cache disabled.")
		return cache.Nop{}, func() error { return nil }, nil
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	rc, err := cache.Dial(ctx, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return rc, rc.Close, nil
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("WARN: telemetry shutdown: %v", err)
		}
	}()

	st, err := setUpStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Printf("WARN: closing store: %v", err)
		}
	}()

	taskCache, closeCache, err := setUpCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.NewHandlers(
		auth.NewService(st, tokens, cfg.BcryptCost),
		tasks.NewService(st, taskCache),
		cfg.RequestTimeout,
	)
	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: handlers.NewRouter(h, handlers.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			AccessLog:      os.Stdout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func main() {
	log.SetPrefix("[TASKS] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: could not load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}
