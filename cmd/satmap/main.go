package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/star/satmap/internal/api"
	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/observability"
	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/stream"
	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/tracking"
	"github.com/star/satmap/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("SATMAP_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg, err := loadTLEConfig(logger)
	if err != nil {
		logger.Error("invalid TLE configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	getter := httputil.NewGetter(httputil.WithMinInterval(tleCfg.FetchDelay))

	catalog := tle.NewCatalog(tle.Bundled()...)
	if tleCfg.CatalogFile != "" {
		if err := loadCatalogFile(catalog, tleCfg.CatalogFile, logger); err != nil {
			logger.Warn("failed to load catalog file", "path", tleCfg.CatalogFile, "error", err)
		}
	}
	er := catalog.EpochRange()
	logger.Info("catalog loaded",
		"count", catalog.Len(),
		"epoch_min", er.Min.Format(time.RFC3339),
		"epoch_max", er.Max.Format(time.RFC3339),
	)

	var source tle.Source
	switch tleCfg.Source {
	case tle.SourceN2YO:
		source = tle.NewN2YO(tleCfg.N2YOURL, tleCfg.N2YOKey, getter)
	case tle.SourceCelestrak:
		source = tle.NewCelestrak(tleCfg.CelestrakURL, getter)
	}
	if source != nil && tleCfg.CacheDir != "" {
		source = tle.NewCachedSource(source, tle.NewCache(tleCfg.CacheDir, tleCfg.CacheMaxFiles), logger)
	}

	broker := stream.NewBroker(logger)
	sessCfg, trackIDs := loadSessionConfig(logger)
	opts := []tracking.Option{tracking.WithSink(broker)}
	if source != nil {
		opts = append(opts, tracking.WithSource(source))
	}
	session := tracking.New(sessCfg, catalog, logger, opts...)
	for _, id := range trackIDs {
		session.Select(id, "")
	}

	var lookup *passes.Lookup
	if passClient := passes.NewClient(tleCfg.N2YOURL, tleCfg.N2YOKey, getter); passClient.Configured() {
		lookup = passes.NewLookup(passClient, catalog, logger)
	} else {
		logger.Info("pass lookups disabled: SATMAP_N2YO_API_KEY not set")
	}

	streamHandler := stream.NewHandler(broker, session, loadStreamConfig(logger), logger)

	srv := api.NewServer(addr, logger, api.Deps{
		Catalog: catalog,
		Session: session,
		Stream:  streamHandler,
		Pool:    propagation.NewWorkerPool(loadWorkers(logger), logger),
		Passes:  lookup,
		Web:     web.Content,
		Auth:    authCfg,
	})

	session.Start(ctx)

	// Keep the catalog view current alongside the tracked satellites.
	if source != nil {
		go func() {
			tle.RefreshCatalog(ctx, catalog, source, tleCfg.FetchDelay, logger)
			ticker := time.NewTicker(sessCfg.ElementsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					tle.RefreshCatalog(ctx, catalog, source, tleCfg.FetchDelay, logger)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Background goroutine to update catalog gauges.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			metrics.SetCatalog(catalog.Len(), catalog.AgeSeconds())
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"tle_source", tleCfg.Source,
			"tracked", len(trackIDs),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	session.Stop()
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	logger.Info("server stopped")
}

func loadCatalogFile(catalog *tle.Catalog, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := tle.Parse(f, tle.SourceFile, logger)
	if err != nil {
		return err
	}
	for _, e := range entries {
		catalog.Put(e)
	}
	logger.Info("loaded catalog file", "path", path, "count", len(entries))
	return nil
}

func loadLogLevel() slog.Level {
	var level slog.Level
	if v := os.Getenv("SATMAP_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo
		}
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SATMAP_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SATMAP_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATMAP_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATMAP_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type tleConfig struct {
	Source        string // celestrak | n2yo | none
	N2YOKey       string
	N2YOURL       string
	CelestrakURL  string
	CacheDir      string
	CacheMaxFiles int
	CatalogFile   string
	FetchDelay    time.Duration
}

func loadTLEConfig(logger *slog.Logger) (tleConfig, error) {
	cfg := tleConfig{
		Source:        tle.SourceCelestrak,
		N2YOKey:       os.Getenv("SATMAP_N2YO_API_KEY"),
		N2YOURL:       os.Getenv("SATMAP_N2YO_URL"),
		CelestrakURL:  os.Getenv("SATMAP_CELESTRAK_URL"),
		CacheDir:      "/tmp/satmap/tle",
		CacheMaxFiles: 5,
		CatalogFile:   os.Getenv("SATMAP_CATALOG_FILE"),
		FetchDelay:    100 * time.Millisecond,
	}

	if v := os.Getenv("SATMAP_TLE_SOURCE"); v != "" {
		switch v = strings.ToLower(v); v {
		case tle.SourceCelestrak, tle.SourceN2YO, "none":
			cfg.Source = v
		default:
			logger.Warn("invalid SATMAP_TLE_SOURCE value, using default", "value", v, "default", cfg.Source)
		}
	}
	if cfg.Source == tle.SourceN2YO && cfg.N2YOKey == "" {
		return cfg, errors.New("SATMAP_N2YO_API_KEY is required when SATMAP_TLE_SOURCE=n2yo")
	}

	if v, ok := os.LookupEnv("SATMAP_TLE_CACHE_DIR"); ok {
		cfg.CacheDir = v
	}

	if v := os.Getenv("SATMAP_TLE_CACHE_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATMAP_TLE_CACHE_MAX_FILES value, using default", "value", v, "default", cfg.CacheMaxFiles)
		} else {
			cfg.CacheMaxFiles = n
		}
	}

	if v := os.Getenv("SATMAP_FETCH_DELAY_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid SATMAP_FETCH_DELAY_MS value, using default", "value", v, "default", 100)
		} else {
			cfg.FetchDelay = time.Duration(n) * time.Millisecond
		}
	}

	logger.Info("TLE config",
		"source", cfg.Source,
		"n2yo_key_set", cfg.N2YOKey != "",
		"cache_dir", cfg.CacheDir,
		"catalog_file", cfg.CatalogFile,
		"fetch_delay_ms", cfg.FetchDelay.Milliseconds(),
	)

	return cfg, nil
}

// envDuration reads a Go duration ("90m") or a whole number of seconds.
func envDuration(logger *slog.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	logger.Warn("invalid "+key+" value, using default", "value", v, "default", def.String())
	return def
}

func loadSessionConfig(logger *slog.Logger) (tracking.Config, []int) {
	cfg := tracking.DefaultConfig()
	cfg.PositionInterval = envDuration(logger, "SATMAP_POSITION_INTERVAL", cfg.PositionInterval)
	cfg.TrajectoryInterval = envDuration(logger, "SATMAP_TRAJECTORY_INTERVAL", cfg.TrajectoryInterval)
	cfg.ElementsInterval = envDuration(logger, "SATMAP_ELEMENTS_INTERVAL", cfg.ElementsInterval)
	cfg.PastSpan = envDuration(logger, "SATMAP_TRACK_PAST", cfg.PastSpan)
	cfg.FutureSpan = envDuration(logger, "SATMAP_TRACK_FUTURE", cfg.FutureSpan)
	cfg.TrackStep = envDuration(logger, "SATMAP_TRACK_STEP", cfg.TrackStep)

	if v := os.Getenv("SATMAP_FETCH_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FetchDelay = time.Duration(n) * time.Millisecond
		}
	}

	var ids []int
	if v := os.Getenv("SATMAP_TRACK_IDS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.Atoi(s)
			if err != nil || id <= 0 {
				logger.Warn("ignoring invalid SATMAP_TRACK_IDS entry", "value", s)
				continue
			}
			ids = append(ids, id)
		}
	}

	logger.Info("session config",
		"position_interval", cfg.PositionInterval.String(),
		"trajectory_interval", cfg.TrajectoryInterval.String(),
		"elements_interval", cfg.ElementsInterval.String(),
		"past_span", cfg.PastSpan.String(),
		"future_span", cfg.FutureSpan.String(),
		"track_step", cfg.TrackStep.String(),
		"track_ids", ids,
	)

	return cfg, ids
}

func loadWorkers(logger *slog.Logger) int {
	workers := runtime.NumCPU()
	if v := os.Getenv("SATMAP_PROP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATMAP_PROP_WORKERS value, using default", "value", v, "default", workers)
		} else {
			workers = n
		}
	}
	return workers
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("SATMAP_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATMAP_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	cfg.KeepaliveInterval = envDuration(logger, "SATMAP_STREAM_KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)

	if v := os.Getenv("SATMAP_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATMAP_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.TracingConfig{
		ServiceName: "satmap",
		Exporter:    "stdout",
		Endpoint:    os.Getenv("SATMAP_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}

	if v := os.Getenv("SATMAP_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATMAP_TRACING_ENABLED value, defaulting to false", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("SATMAP_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("SATMAP_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("SATMAP_TRACING_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			logger.Warn("invalid SATMAP_TRACING_SAMPLE_RATIO value, using default", "value", v, "default", 1)
		} else {
			cfg.SampleRatio = ratio
		}
	}

	return cfg
}
