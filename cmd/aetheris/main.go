package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/config"
	"github.com/aetheris-os/aetheris/internal/db"
	dbRedis "github.com/aetheris-os/aetheris/internal/db/redis"
	"github.com/aetheris-os/aetheris/internal/domain"
	logpkg "github.com/aetheris-os/aetheris/internal/logger"
	"github.com/aetheris-os/aetheris/internal/metrics"
	"github.com/aetheris-os/aetheris/internal/repository/embcache"
	recordrepo "github.com/aetheris-os/aetheris/internal/repository/record"
	vectorrepo "github.com/aetheris-os/aetheris/internal/repository/vector"
	chiTransport "github.com/aetheris-os/aetheris/internal/transport/chi"
	openaiTransport "github.com/aetheris-os/aetheris/internal/transport/openai"
	"github.com/aetheris-os/aetheris/internal/transport/weather"
	healthuc "github.com/aetheris-os/aetheris/internal/usecase/health"
	indexuc "github.com/aetheris-os/aetheris/internal/usecase/index"
	intentuc "github.com/aetheris-os/aetheris/internal/usecase/intent"
	planneruc "github.com/aetheris-os/aetheris/internal/usecase/planner"
	strategyuc "github.com/aetheris-os/aetheris/internal/usecase/strategy"
	thermaluc "github.com/aetheris-os/aetheris/internal/usecase/thermal"
	"github.com/aetheris-os/aetheris/internal/version"
)

func main() {
	// Local .env loading, ignored when the file is absent
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting aetheris engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEngineMetrics()

	ctx := context.Background()

	// Storage: redis carries both halves of the index plus the embedding
	// cache; embedded runs chromem vectors and a sqlite metadata file
	// in-process.
	// kvStore stays a nil interface for the embedded driver.
	// Go gotcha: a typed nil pointer wrapped in an interface != nil.
	var (
		vectorStore vectorrepo.Store
		recordStore recordrepo.Store
		pinger      healthuc.Pinger
		kvStore     db.KVStore
	)
	switch cfg.Database.Driver {
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")

		vectorStore = vectorrepo.NewRedis(store, cfg.Database.KeyPrefix, cfg.Embedding.Dimensions).
			WithHNSW(vectorrepo.HNSWConfig{
				M:           cfg.Embedding.HNSWM,
				EFConstruct: cfg.Embedding.HNSWEFConstruct,
			})
		recordStore = recordrepo.NewRedis(store, cfg.Database.KeyPrefix)
		pinger = store
		kvStore = store

	case "embedded":
		chromemStore, err := vectorrepo.NewChromem(cfg.Database.Path+".vec", cfg.Embedding.Dimensions)
		if err != nil {
			logger.Fatal("Failed to open embedded vector store", zap.Error(err))
		}
		sqliteStore, err := recordrepo.NewSQLite(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to open embedded record store", zap.Error(err))
		}
		defer sqliteStore.Close()

		vectorStore = chromemStore
		recordStore = sqliteStore
		pinger = sqliteStore

	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}

	if err := vectorStore.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder := buildEmbedder(baseEmbedder, kvStore, &cfg, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	var narrator strategyuc.Narrator
	if cfg.Embedding.ChatModel != "" {
		narrator = openaiTransport.NewNarrator(&openaiTransport.Config{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Logger:  logger,
		}, cfg.Embedding.ChatModel)
	}

	forecastClient := weather.NewClient(&weather.Config{
		BaseURL:   cfg.Weather.BaseURL,
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Timeout:   time.Duration(cfg.Weather.TimeoutSec) * time.Second,
		Logger:    logger,
	})

	indexSvc := indexuc.New(vectorStore, recordStore, embedder)
	intentSvc := intentuc.NewResolver(embedder, nil, cfg.Intent.MinConfidence)
	tracker := thermaluc.NewTracker(thermaluc.Config{
		CO2FactorKgPerKWh: cfg.Thermal.CO2FactorKgPerKWh,
		BaselineKWh:       cfg.Thermal.BaselineKWh,
		MaxInterval:       time.Duration(cfg.Thermal.MaxIntervalSec) * time.Second,
	})
	plannerSvc := planneruc.New(planneruc.Config{
		ColdBelowC:             cfg.Planner.ColdBelowC,
		HotAboveC:              cfg.Planner.HotAboveC,
		OvercastCloudPct:       cfg.Planner.OvercastCloudPct,
		NeedPerDegree:          cfg.Planner.NeedPerDegree,
		ContinuityBonus:        cfg.Planner.ContinuityBonus,
		HeatAffinityWeight:     cfg.Planner.HeatAffinityWeight,
		WattsPerIntensityPoint: cfg.Thermal.WattsPerIntensityPoint,
	}, forecastClient, indexSvc, tracker)
	strategySvc := strategyuc.New(indexSvc, tracker, narrator, cfg.Thermal.WattsPerIntensityPoint)
	healthSvc := healthuc.NewChecker(pinger, baseEmbedder)

	server := chiTransport.NewServer(indexSvc, intentSvc, plannerSvc, strategySvc, tracker, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
// The cache needs a KV store, so the embedded driver runs uncached.
func buildEmbedder(base domain.Embedder, kv db.KVStore, cfg *config.Config, logger *zap.Logger) domain.Embedder {
	embedder := base
	if kv != nil {
		embedder = embcache.New(
			base, kv,
			cfg.Database.KeyPrefix,
			time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal,
			logger,
		)
	}

	// Instruction prefix outermost so the cache key includes it
	if cfg.Embedding.Instruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.Embedding.Instruction)
	}
	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
