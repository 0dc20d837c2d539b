package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"electa/internal/election/cache"
	"electa/internal/election/handler"
	electionmetrics "electa/internal/election/metrics"
	"electa/internal/election/outbox"
	"electa/internal/election/service"
	"electa/internal/election/store"
	jwttoken "electa/internal/jwt_token"
	"electa/internal/member"
	"electa/internal/platform/config"
	"electa/internal/platform/httpserver"
	"electa/internal/platform/kafka"
	"electa/internal/platform/logger"
	"electa/internal/platform/metrics"
	"electa/internal/platform/postgres"
	"electa/internal/platform/redis"
	"electa/pkg/platform/httputil"
	"electa/pkg/platform/middleware/admin"
	"electa/pkg/platform/middleware/auth"
	"electa/pkg/platform/middleware/request"
)

func serveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

// electionStore is what both the service and the relay need from storage.
type electionStore interface {
	service.Store
	outbox.Store
}

type infra struct {
	store  electionStore
	ping   []func(context.Context) error
	closer []func()
}

func (i *infra) close() {
	for n := len(i.closer) - 1; n >= 0; n-- {
		i.closer[n]()
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	electionMetrics := electionmetrics.New()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(electionMetrics),
		service.WithPolicy(service.Policy{AllowSelfNomination: cfg.AllowSelfNomination}),
		service.WithSubmitTimeout(cfg.SubmitTimeout),
	}

	redisClient, err := redis.New(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		deps.closer = append(deps.closer, func() { _ = redisClient.Close() })
		deps.ping = append(deps.ping, redisClient.Health)
		opts = append(opts, service.WithQuotaCache(
			cache.NewRedisQuotaCache(redisClient.Client, cache.WithTTL(cfg.QuotaCacheTTL))))
	} else {
		log.Info("quota cache disabled", "reason", "ELECTA_REDIS_URL not set")
	}

	directory, err := newDirectory(cfg, log)
	if err != nil {
		return err
	}
	svc, err := service.New(deps.store, directory, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	if producer != nil {
		deps.closer = append(deps.closer, producer.Close)
		relay, err := outbox.NewRelay(deps.store, producer,
			outbox.WithLogger(log),
			outbox.WithMetrics(electionMetrics),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return relay.Run(ctx) })
	} else {
		log.Info("outbox relay disabled", "reason", "ELECTA_KAFKA_BROKERS not set")
	}

	router := newRouter(cfg, log, svc, deps.ping)
	srv := httpserver.New(cfg.Addr, router,
		httpserver.WithErrorLog(log),
		httpserver.WithWriteTimeout(cfg.SubmitTimeout+10*time.Second),
	)

	g.Go(func() error {
		log.Info("starting electa", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openInfra picks PostgreSQL when a database URL is configured and the
// in-memory store otherwise.
func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	if cfg.Database.URL == "" {
		log.Warn("using in-memory election store", "reason", "ELECTA_DATABASE_URL not set")
		return &infra{store: store.NewInMemory()}, nil
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(db)
	return &infra{
		store:  pg,
		ping:   []func(context.Context) error{pg.Ping},
		closer: []func(){func() { _ = db.Close() }},
	}, nil
}

func newDirectory(cfg config.Config, log *slog.Logger) (member.Directory, error) {
	if cfg.MemberDirectoryURL == "" {
		log.Warn("using empty static member directory", "reason", "ELECTA_MEMBER_DIRECTORY_URL not set")
		return member.NewStaticDirectory(), nil
	}
	return member.NewHTTPDirectory(cfg.MemberDirectoryURL, cfg.MemberDirectoryTimeout)
}

func newRouter(cfg config.Config, log *slog.Logger, svc *service.Service, ping []func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(metrics.LatencyMiddleware(metrics.New()))

	r.Get("/healthz", healthHandler(ping))
	r.Handle("/metrics", promhttp.Handler())

	h := handler.New(svc, log)
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		h.RegisterAdmin(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireMember(tokens, log))
		h.RegisterMember(r)
	})
	return r
}

func healthHandler(ping []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range ping {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
