/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the CalAIM visit engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the YAML config
  2. Initialize the structured logger
  3. Open the SQLite store
  4. Build the member source (static, redis, or caspio)
  5. Wire the lifecycle service and reconciliation builder
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (default: config.yaml).
           A missing file is fine; built-in defaults apply.
  -addr    Listen address, overrides the config when set
  -db      SQLite database path, overrides the config when set.
           Use ":memory:" for an in-memory database.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with a file database and static roster
  ./server -db="./data/visits.db"

  # Run against the portal's redis member cache
  ./server -config=./deploy/config.yaml

SEE ALSO:
  - config/config.go: Config file format
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jcbloome/calaim-visit-engine/api"
	"github.com/jcbloome/calaim-visit-engine/config"
	"github.com/jcbloome/calaim-visit-engine/member"
	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/store/sqlite"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Member source
	members, err := buildMemberSource(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build member source", zap.Error(err))
	}

	// Domain services
	svc := visit.NewService(store, members, logger)
	builder := reconcile.NewBuilder(store, store, store, logger)
	builder.PageSize = cfg.Scan.PageSize
	builder.MaxPages = cfg.Scan.MaxPages

	// HTTP
	router := api.NewRouter(api.NewHandler(svc, builder, logger))
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // summary runs can take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.String("db", cfg.DBPath),
			zap.String("member_source", cfg.MemberSource.Mode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// buildMemberSource selects the roster backend from config.
func buildMemberSource(cfg *config.Config, logger *zap.Logger) (member.Source, error) {
	switch cfg.MemberSource.Mode {
	case config.SourceStatic:
		// Empty roster; every lookup is a not-found. Useful for local
		// API exploration and the summary endpoints.
		return member.NewStaticSource(), nil

	case config.SourceRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.MemberSource.RedisAddr,
			DB:   cfg.MemberSource.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.MemberSource.RedisAddr, err)
		}
		return member.NewRedisSource(client, cfg.MemberSource.KeyPrefix, logger), nil

	case config.SourceCaspio:
		token := cfg.MemberSource.CaspioToken
		return member.NewCaspioSource(cfg.MemberSource.CaspioBaseURL,
			member.TokenFunc(func(context.Context) (string, error) { return token, nil }),
			logger), nil

	default:
		return nil, fmt.Errorf("unknown member source mode %q", cfg.MemberSource.Mode)
	}
}
