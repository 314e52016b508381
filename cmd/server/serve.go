package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/eventdesk/internal/config"
	"github.com/iliyamo/eventdesk/internal/database"
	"github.com/iliyamo/eventdesk/internal/handler"
	"github.com/iliyamo/eventdesk/internal/middleware"
	"github.com/iliyamo/eventdesk/internal/queue"
	"github.com/iliyamo/eventdesk/internal/ratelimit"
	"github.com/iliyamo/eventdesk/internal/repository"
	"github.com/iliyamo/eventdesk/internal/router"
	"github.com/iliyamo/eventdesk/internal/service"
	"github.com/iliyamo/eventdesk/internal/utils"
)

var (
	autoMigrate bool
	withWorker  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	serveCmd.Flags().BoolVar(&withWorker, "worker", false, "also run the notification worker in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()
	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if autoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Notify.Enabled {
		pub := queue.NewPublisher(cfg.Notify.URL, cfg.Notify.Queue, log)
		defer pub.Close()
		out := queue.NewOutbox(pub, 256, log)
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := out.Close(cctx); err != nil {
				log.WithError(err).Warn("Pending notifications not flushed")
			}
		}()
		notifier = out
	}

	st := repository.NewStore(db)
	tokens := utils.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, nil)
	auth := service.NewAuthService(service.AuthDeps{
		Store:        st,
		Tokens:       tokens,
		Limiter:      limiter,
		Notifier:     notifier,
		Log:          log,
		BcryptCost:   cfg.BcryptCost,
		ResetCodeTTL: cfg.ResetCodeTTL,
	})
	events := service.NewEventService(st, notifier, log, nil)
	ratings := service.NewRatingService(st, log, nil)

	e := router.New(router.Deps{
		Log:      log,
		Verifier: auth,
		DB:       db,
		Auth:     handler.NewAuthHandler(auth),
		Events:   handler.NewEventHandler(events),
		Ratings:  handler.NewRatingHandler(ratings, auth),

		IPExtractor: middleware.IPExtractor(cfg.TrustProxy, cfg.TrustedProxies),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("Starting API server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down API server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if withWorker && cfg.Notify.Enabled {
		g.Go(func() error {
			err := newConsumer(cfg).Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// newLimiter picks the rate limiter backend. A Redis server that does not
// answer at startup degrades to the in-process limiter, which only
// counts attempts seen by this instance.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func()) {
	noop := func() {}
	if !cfg.RateLimit.Enabled {
		log.Warn("Rate limiting disabled")
		return ratelimit.Noop{}, noop
	}
	policy := ratelimit.Policy{Limit: cfg.RateLimit.Max, Window: cfg.RateLimit.Window}

	if cfg.RateLimit.Backend == config.BackendRedis {
		rdb, err := config.NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			log.WithField("addr", cfg.Redis.Addr).Info("Using Redis rate limiter")
			return ratelimit.NewRedis(rdb, policy, cfg.RateLimit.Prefix, nil), func() { _ = rdb.Close() }
		}
		log.WithError(err).Warn("Redis unavailable, falling back to in-memory rate limiter")
	}
	return ratelimit.NewMemory(policy, nil), noop
}
