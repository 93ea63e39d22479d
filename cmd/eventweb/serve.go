package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	web "github.com/Strob0t/eventweb/internal/adapter/http"
	"github.com/Strob0t/eventweb/internal/adapter/memory"
	cfnats "github.com/Strob0t/eventweb/internal/adapter/nats"
	"github.com/Strob0t/eventweb/internal/adapter/natskv"
	cfotel "github.com/Strob0t/eventweb/internal/adapter/otel"
	"github.com/Strob0t/eventweb/internal/adapter/postgres"
	"github.com/Strob0t/eventweb/internal/adapter/ristretto"
	"github.com/Strob0t/eventweb/internal/adapter/tiered"
	"github.com/Strob0t/eventweb/internal/config"
	"github.com/Strob0t/eventweb/internal/logger"
	"github.com/Strob0t/eventweb/internal/port/cache"
	"github.com/Strob0t/eventweb/internal/port/eventbus"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
	"github.com/Strob0t/eventweb/internal/resilience"
	"github.com/Strob0t/eventweb/internal/todos"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, flags, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.NewHolder(cfg, path), flags)
		},
	}
}

func serve(ctx context.Context, holder *config.Holder, flags config.CLIFlags) error {
	cfg := holder.Get()

	log, closer := logger.New(cfg.Logging)
	prev := slog.Default()
	slog.SetDefault(log)
	defer func() {
		closer.Close()
		slog.SetDefault(prev)
	}()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"store", cfg.Store.Driver,
	)

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	var bus *cfnats.Bus
	if cfg.NATS.URL != "" && cfg.NATS.PublishEvents {
		bus, err = cfnats.Connect(ctx, cfnats.Options{
			URL:             cfg.NATS.URL,
			Stream:          cfg.NATS.Stream,
			Prefix:          cfg.NATS.SubjectPrefix,
			DuplicateWindow: cfg.NATS.DuplicateWindow,
		})
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := bus.Close(); err != nil {
				slog.Warn("nats close", "error", err)
			}
		}()
		breaker := resilience.NewBreaker("event-publish", cfg.NATS.BreakerFailures, cfg.NATS.BreakerCooldown)
		store = eventbus.NewPublishingStore(store, bus, breaker)
	}

	apiOpts := []todos.Option{
		todos.WithMetrics(metrics),
		todos.WithBodyLimit(cfg.HTTP.BodyLimit),
	}
	if cfg.Idempotency.Enabled {
		idem, closeIdem, err := openIdempotencyCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeIdem()
		apiOpts = append(apiOpts, todos.WithIdempotency(idem, cfg.Idempotency.TTL))
	}

	// --- HTTP ---

	api := todos.New(store, apiOpts...)
	apis := []web.WebAPISetup{health(pool, bus), api.Routes}
	if cfg.Legacy.Enabled {
		sunset, err := cfg.Legacy.SunsetTime()
		if err != nil {
			return fmt.Errorf("legacy sunset: %w", err)
		}
		apis = append(apis, api.LegacyRoutes(sunset, cfg.Legacy.Link))
	}

	weak := cfg.HTTP.WeakETags
	var middlewares []func(http.Handler) http.Handler
	if cfg.Telemetry.Enabled {
		middlewares = append(middlewares, cfotel.HTTPMiddleware(cfg.Telemetry.ServiceName))
	}

	handler := web.GetApplication(web.Options{
		APIs:                  apis,
		EnableSecurityHeaders: cfg.HTTP.SecurityHeaders,
		EnableCORS:            cfg.HTTP.CORS,
		CORS:                  web.CORSOptions{AllowOrigins: cfg.Server.CORSOrigins},
		EnableETag:            cfg.HTTP.ETag,
		ETag:                  web.ETagOptions{Weak: &weak},
		EnableLogger:          cfg.HTTP.RequestLog,
		Logger:                log,
		DisableProblemDetails: !cfg.HTTP.ProblemDetails,
		ProblemObservers:      []web.ProblemObserver{metrics},
		Middlewares:           middlewares,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		watchReload(gctx, holder, flags)
		return nil
	})
	return g.Wait()
}

// openStore returns the configured event store and, for postgres, its pool.
func openStore(ctx context.Context, cfg *config.Config) (eventstore.Store, *pgxpool.Pool, error) {
	if cfg.Store.Driver != config.StorePostgres {
		slog.Info("using in-memory event store")
		return memory.NewEventStore(), nil, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected", "serverless", postgres.UseServerless(cfg.Postgres))

	if cfg.Postgres.Migrate {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
	}
	return postgres.NewEventStore(pool), pool, nil
}

// openIdempotencyCache builds the in-process L1 cache and, when NATS is
// configured, tiers it over a JetStream KV bucket.
func openIdempotencyCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Idempotency.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency l1: %w", err)
	}
	if cfg.NATS.URL == "" {
		return l1, l1.Close, nil
	}

	l2, err := natskv.Open(ctx, cfg.NATS.URL, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		l1.Close()
		return nil, nil, fmt.Errorf("idempotency l2: %w", err)
	}
	slog.Info("nats kv connected", "bucket", cfg.Idempotency.Bucket)

	closeAll := func() {
		if err := l2.Close(); err != nil {
			slog.Warn("nats close", "error", err)
		}
		l1.Close()
	}
	return tiered.New(l1, l2, cfg.Idempotency.L1TTL), closeAll, nil
}

// watchReload re-reads the config file on SIGHUP. Only the log level takes
// effect without a restart.
func watchReload(ctx context.Context, holder *config.Holder, flags config.CLIFlags) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			if flags.LogLevel == nil {
				logger.SetLevel(holder.Get().Logging.Level)
			}
			slog.Info("config reloaded", "log_level", holder.Get().Logging.Level)
		}
	}
}

// health registers liveness and readiness probes. Readiness pings the
// database and checks the NATS connection when they are configured.
func health(pool *pgxpool.Pool, bus *cfnats.Bus) web.WebAPISetup {
	type status struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres,omitempty"`
		NATS     string `json:"nats,omitempty"`
	}

	return func(r *web.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) error {
			web.SendOK(w, r, web.ResponseOptions{Body: status{Status: "ok"}})
			return nil
		})
		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) error {
			st := status{Status: "ok"}
			code := http.StatusOK
			if pool != nil {
				st.Postgres = "ok"
				if err := pool.Ping(r.Context()); err != nil {
					slog.WarnContext(r.Context(), "readiness: postgres ping failed", "error", err)
					st.Status, st.Postgres = "degraded", "unavailable"
					code = http.StatusServiceUnavailable
				}
			}
			// A NATS outage pauses publishing; it does not fail readiness.
			if bus != nil {
				st.NATS = "ok"
				if !bus.IsConnected() {
					st.NATS = "disconnected"
				}
			}
			web.Send(w, code, web.ResponseOptions{Body: st})
			return nil
		})
	}
}
