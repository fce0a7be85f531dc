// Command bentoauthd runs the BENTO authentication service: the engine
// behind PostgreSQL and Redis, exposed over the HTTP API.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/httpapi"
	"github.com/ProjectSCARS/bentoauth/postgres"
	"github.com/ProjectSCARS/bentoauth/session"
)

func main() {
	configPath := flag.String("config", "bentoauthd.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("bentoauthd failed", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	fileCfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	engineCfg, err := fileCfg.engineConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(fileCfg.DatabaseURL); err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, fileCfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fileCfg.Redis.Addr,
		Password: fileCfg.Redis.Password,
		DB:       fileCfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return err
	}

	engine, err := bentoauth.New().
		WithConfig(engineCfg).
		WithStore(postgres.NewStore(pool)).
		WithSessionStore(session.NewStore(pool, nil)).
		WithRedis(redisClient).
		WithLogger(logger).
		WithAuditSink(bentoauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	server := &http.Server{
		Addr:         fileCfg.ListenAddr,
		Handler:      httpapi.NewServer(engine, logger).Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", fileCfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
