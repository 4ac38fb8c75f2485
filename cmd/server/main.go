package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/pkgmirror/core/internal/adapter/chanqueue"
	"github.com/pkgmirror/core/internal/adapter/diskblob"
	"github.com/pkgmirror/core/internal/adapter/memkv"
	"github.com/pkgmirror/core/internal/adapter/rediskv"
	"github.com/pkgmirror/core/internal/adapter/sqlstore"
	"github.com/pkgmirror/core/internal/api/middleware"
	"github.com/pkgmirror/core/internal/artifact"
	"github.com/pkgmirror/core/internal/clockutil"
	"github.com/pkgmirror/core/internal/config"
	"github.com/pkgmirror/core/internal/httpapi"
	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/metadata"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/pkg/logger"
	"github.com/pkgmirror/core/internal/pkg/tracing"
	"github.com/pkgmirror/core/internal/ports"
	"github.com/pkgmirror/core/internal/sync"
)

func main() {
	log.Println("pkgmirror starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	stdLogger := logger.StdLogger()
	stdLogger.Info("configuration loaded", "port", cfg.Port, "db_driver", cfg.DBDriver, "storage_driver", cfg.StorageDriver, "cache_driver", cfg.CacheDriver, "queue_driver", cfg.QueueDriver)

	shutdownTracing, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		stdLogger.Warn("tracing init failed, continuing without it", "error", err)
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	clock := clockutil.System{}

	db, err := sqlstore.Open(cfg.DBDriver, cfg.DBURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var kv ports.KVCache
	switch cfg.CacheDriver {
	case "redis":
		addr, password, dbIndex := parseRedisURL(cfg.CacheURL)
		redisCache := rediskv.New(addr, password, dbIndex)
		if err := redisCache.Ping(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		kv = redisCache
	default:
		memCache, err := memkv.New(100_000)
		if err != nil {
			log.Fatalf("failed to create memory cache: %v", err)
		}
		kv = memCache
	}

	blob, err := diskblob.New(cfg.StoragePath)
	if err != nil {
		log.Fatalf("failed to open blob store: %v", err)
	}

	syncEngine := sync.New(db, kv, clock, sync.Config{
		EncryptionKey:   cfg.EncryptionKey,
		UpstreamTimeout: time.Duration(cfg.UpstreamTimeoutSec) * time.Second,
	}, stdLogger)

	jobProcessor := jobs.NewProcessor(db, syncEngine, stdLogger)

	if cfg.QueueDriver == "channel" {
		queue := chanqueue.New(256, cfg.JobWorkerPoolSize, jobProcessor.Execute, stdLogger)
		jobProcessor.SetQueue(queue)
		defer queue.Close()
	}

	metadataResolver := metadata.New(db, kv, clock, jobProcessor, metadata.Config{
		EncryptionKey:             cfg.EncryptionKey,
		PackagistBaseURL:          cfg.PackagistBaseURL,
		PackagistMirroringEnabled: cfg.PackagistMirroringEnabled,
		UpstreamTimeout:           time.Duration(cfg.UpstreamTimeoutSec) * time.Second,
	}, stdLogger)

	artifactServer := artifact.New(db, blob, clock, jobProcessor, artifact.Config{
		EncryptionKey:             cfg.EncryptionKey,
		PackagistBaseURL:          cfg.PackagistBaseURL,
		PackagistMirroringEnabled: cfg.PackagistMirroringEnabled,
		UpstreamTimeout:           time.Duration(cfg.UpstreamTimeoutSec) * time.Second,
	}, stdLogger)

	if err := ensurePackagistRepository(ctx, db, clock, cfg); err != nil {
		stdLogger.Warn("failed to seed packagist repository", "error", err)
	}

	handler := httpapi.NewHandler(metadataResolver, artifactServer, jobProcessor, db, clock, cfg.EncryptionKey, stdLogger, cfg.PublicBaseURL)

	router := mux.NewRouter()
	httpapi.SetupRoutes(router, handler)

	var actualPort int
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		body := map[string]any{"status": "healthy", "service": "pkgmirror"}
		if actualPort != 0 {
			body["port"] = actualPort
		}
		_ = json.NewEncoder(w).Encode(body)
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(middleware.SecureHeaders)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery)
	router.Use(middleware.Tracing)
	router.Use(middleware.Auth(db, kv, clock, jobProcessor))
	router.Use(middleware.RateLimit(kv, clock))
	router.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))
	router.Use(middleware.StructuredLog)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "If-Modified-Since"},
		AllowCredentials: true,
	})
	handlerWithCORS := c.Handler(router)

	readTimeout := 15 * time.Second
	writeTimeout := 15 * time.Second
	if cfg.RequestTimeoutSec > 0 {
		readTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
		writeTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	}
	shutdownTimeout := 10 * time.Second
	if cfg.ShutdownTimeoutSec > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	}

	// Bind to first available port in [cfg.Port, cfg.Port+99], cap at 8199.
	maxPort := cfg.Port + 99
	if maxPort > 8199 {
		maxPort = 8199
	}
	var listener net.Listener
	for port := cfg.Port; port <= maxPort; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			var errno *syscall.Errno
			if errors.As(err, &errno) && *errno == syscall.EADDRINUSE {
				continue
			}
			log.Fatalf("failed to listen: %v", err)
		}
		listener = l
		actualPort = port
		break
	}
	if listener == nil {
		log.Fatalf("no port available in range %d..%d", cfg.Port, maxPort)
	}
	defer listener.Close()

	srv := &http.Server{
		Handler:      handlerWithCORS,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		stdLogger.Info("server listening", "port", actualPort)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stdLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		stdLogger.Warn("server forced to shutdown", "error", err)
	}

	stdLogger.Info("server exited gracefully")
}

// parseRedisURL splits a "host:port" or "host:port/db" CACHE_URL into the
// pieces adapter/rediskv.New wants. A bare address with no db suffix uses
// database 0 and no password; auth is carried in the URL userinfo.
func parseRedisURL(raw string) (addr, password string, db int) {
	s := raw
	if at := strings.LastIndex(s, "@"); at != -1 {
		password = s[:at]
		s = s[at+1:]
	}
	if slash := strings.LastIndex(s, "/"); slash != -1 {
		if n, err := fmt.Sscanf(s[slash+1:], "%d", &db); err == nil && n == 1 {
			s = s[:slash]
		}
	}
	addr = s
	return addr, password, db
}

// ensurePackagistRepository seeds the well-known public-registry singleton
// (models.PackagistRepoID) on first boot so the Metadata Resolver and
// Artifact Server always have a repository row to fall back to for
// upstream Packagist mirroring (spec.md §4.3/§4.4). A no-op once the row
// exists.
func ensurePackagistRepository(ctx context.Context, db ports.Database, clock ports.Clock, cfg *config.Config) error {
	existing, err := db.GetRepository(ctx, models.PackagistRepoID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return db.UpsertRepository(ctx, &models.Repository{
		ID:         models.PackagistRepoID,
		URL:        cfg.PackagistBaseURL,
		SourceKind: models.SourceComposer,
		Status:     models.RepoActive,
		CreatedAt:  clock.NowUnix(),
	})
}
