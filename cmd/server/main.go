package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overlay-studio/internal/converter"
	"overlay-studio/internal/overlays"
	"overlay-studio/internal/platform/config"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	streamsDir := config.GetEnv("STREAMS_DIR", "./streams")
	ffmpegBin := config.GetEnv("FFMPEG_BIN", "ffmpeg")
	convertTimeout := config.GetEnvDuration("CONVERT_TIMEOUT", 30*time.Second)
	redisAddr := config.GetEnv("REDIS_ADDR", "")
	overlayTTL := config.GetEnvDuration("OVERLAY_TTL", 24*time.Hour)

	log := logger.New(logLevel, logFormat)

	if err := os.MkdirAll(streamsDir, 0o755); err != nil {
		log.Error("create streams dir", "error", err)
		os.Exit(1)
	}

	var store overlays.Store
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		store = overlays.NewRedisStore(client, overlays.WithTTL(overlayTTL))
		log.Info("overlay store", "backend", "redis", "addr", redisAddr)
	} else {
		store = overlays.NewInMemoryStore()
		log.Info("overlay store", "backend", "memory")
	}

	repo := overlays.NewRepositoryWithStore(store)
	svc := overlays.NewService(repo)
	met := metrics.New()
	oh := overlays.NewHandler(svc, log, met)

	conv := converter.New(converter.Config{
		FFmpegBin:  ffmpegBin,
		OutputRoot: streamsDir,
		PublicBase: "/streams",
		Timeout:    convertTimeout,
	}, log)
	ch := converter.NewHandler(conv, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveStreams(conv.ActiveCount()) }).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/convert", ch.Convert)
	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", oh.List)
		r.Post("/", oh.Create)
		r.Put("/{id}", oh.Update)
		r.Delete("/{id}", oh.Delete)
	})
	r.Handle("/streams/*", http.StripPrefix("/streams/", http.FileServer(http.Dir(streamsDir))))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"streams_dir", streamsDir,
		"convert_timeout", convertTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	conv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
