package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warranty/internal/auth"
	"warranty/internal/cache"
	"warranty/internal/config"
	"warranty/internal/httpserver"
	"warranty/internal/httpserver/handlers"
	"warranty/internal/logger"
	"warranty/internal/metrics"
	"warranty/internal/services/device"
	"warranty/internal/services/passport"
	"warranty/internal/services/user"
	"warranty/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed the default admin and serve the HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		lg := logger.New(cfg.LogLevel)
		defer lg.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, lg)
	},
}

// openStore falls back to the in-memory store when no database is configured.
func openStore(ctx context.Context, cfg config.Config, lg *zap.SugaredLogger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		lg.Warnw("DATABASE_URL is empty, using in-memory store; data is lost on exit")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}

func openCache(ctx context.Context, cfg config.Config, lg *zap.SugaredLogger) (cache.PassportCache, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, func() {}
	}
	client, err := cache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		lg.Warnw("passport cache disabled", "error", err)
		return cache.Nop{}, func() {}
	}
	rc := cache.NewRedis(client, cfg.PassportCacheTTL, lg)
	return rc, func() { _ = rc.Close() }
}

func serve(ctx context.Context, cfg config.Config, lg *zap.SugaredLogger) error {
	st, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer closeStore()
	pc, closeCache := openCache(ctx, cfg, lg)
	defer closeCache()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	passports := passport.New(st, lg, passport.WithCache(pc), passport.WithMetrics(m))
	users := user.New(st, auth.Hasher{}, lg, user.WithMetrics(m))
	devices := device.New(st, passports, lg, device.WithMetrics(m))

	if _, err := users.EnsureAdmin(ctx, user.AdminSeed(cfg.Admin)); err != nil {
		return errors.Wrap(err, "seed default admin")
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Audit:     st.Audit(),
		Passports: passports,
		Devices:   devices,
		Users:     users,
		Sessions:  auth.NewSessionManager(auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiresIn), st.Sessions()),
		Metrics:   m,
		Paging:    handlers.Paging{Default: cfg.PageSize, Max: cfg.MaxPageSize},
		Logger:    lg,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Infow("listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		lg.Infow("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
