package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/marketplace/internal/eventbus"
	"github.com/Checker-Finance/marketplace/internal/jobs"
	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/payout"
	"github.com/Checker-Finance/marketplace/internal/publisher"
	"github.com/Checker-Finance/marketplace/internal/rabbitmq"
	"github.com/Checker-Finance/marketplace/internal/rate"
	internalsecrets "github.com/Checker-Finance/marketplace/internal/secrets"
	"github.com/Checker-Finance/marketplace/internal/store"
	"github.com/Checker-Finance/marketplace/ledger-service/internal/api"
	"github.com/Checker-Finance/marketplace/ledger-service/internal/feed"
	"github.com/Checker-Finance/marketplace/ledger-service/pkg/config"
	"github.com/Checker-Finance/marketplace/pkg/logger"
	"github.com/Checker-Finance/marketplace/pkg/secrets"
	"github.com/Checker-Finance/marketplace/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	apiLog := logger.Named("api")
	logg.Info("starting [ledger-service]...")

	reward, err := ledger.ParseAmount(cfg.RewardPerPurchase)
	if err != nil {
		logg.Fatalw("invalid REWARD_PER_PURCHASE", "error", err)
	}

	// --- Store (Redis + optional Postgres) ---
	st, err := store.NewHybrid(store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logger.Named("store"))
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	var journal ledger.Journal = ledger.NewMemoryJournal()
	if st.PG != nil {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		if err := store.Migrate(ctx, st.PG); err != nil {
			logg.Fatalw("failed to migrate schema", "error", err)
		}
		journal = store.NewPGJournal(st.PG, logger.Named("journal"))
	} else {
		logg.Warn("DATABASE_URL not configured; ledger state is in memory only")
	}

	// --- Signing keys for bearer tokens ---
	var keys *internalsecrets.SigningKeys
	stopCleaner := make(chan struct{})
	switch {
	case cfg.JWTSecret != "":
		keys = internalsecrets.StaticSigningKeys([]byte(cfg.JWTSecret))
	case cfg.JWTSecretName != "":
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		keyCache := secrets.NewCache[[]byte](cfg.CacheTTL)
		go keyCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
		keys = internalsecrets.NewSigningKeys(logger.Named("secrets"), cfg.JWTSecretName, awsProvider, keyCache)
		if _, err := keys.Key(ctx); err != nil {
			logg.Fatalw("failed to resolve signing key", "error", err)
		}
	default:
		logg.Fatal("JWT_SECRET or JWT_SECRET_NAME must be set")
	}

	// --- Event fan-out ---
	bus := eventbus.New()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	pub, err := publisher.New(nc, cfg.EventSubjectPrefix, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}
	bus.SubscribeAll(pub.Handle)

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		logg.Info("connection to broker: ", utils.MaskDSN(cfg.RabbitMQURL))
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init rabbitmq publisher", "error", err)
		}
		bus.SubscribeAll(rabbit.Handle)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := feed.NewHub(logger.Named("feed"), cfg.EventSubjectPrefix)
	go hub.Run(hubCtx)
	bus.SubscribeAll(hub.Handle)

	// --- Payout rail ---
	var rail ledger.Payout
	if cfg.PayoutURL != "" {
		rail = payout.NewGateway(payout.Config{
			URL:      cfg.PayoutURL,
			RetryMax: cfg.PayoutRetryMax,
			Timeout:  cfg.PayoutTimeout,
			Rate: rate.Config{
				RequestsPerSecond: cfg.PayoutRPS,
				Burst:             cfg.PayoutBurst,
			},
		}, logger.Named("payout"))
	} else {
		logg.Warn("PAYOUT_URL not configured; withdrawals settle internally")
	}

	// --- Ledger ---
	svc, err := ledger.New(ctx, ledger.Options{
		RewardPerPurchase: reward,
		MaxProducts:       cfg.MaxProducts,
		Journal:           journal,
		Payout:            rail,
		Events:            bus,
		Logger:            logger.Named("ledger"),
	})
	if err != nil {
		logg.Fatalw("failed to initialize ledger", "error", err)
	}

	if st.PG != nil {
		projector := store.NewProjector(st.PG, svc, logger.Named("projector"))
		bus.SubscribeAll(projector.Handle)
	}

	// --- Solvency auditor ---
	auditor := jobs.NewAuditor(logger.Named("auditor"), svc, bus, cfg.AuditInterval)
	go auditor.Start(ctx)

	// --- Payout reconciler ---
	reconciler := jobs.NewReconciler(logger.Named("reconciler"), svc, cfg.ReconcileInterval)
	go reconciler.Start(ctx)

	// --- Per-caller rate limiting ---
	limiter := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(10 * time.Minute); n > 0 {
					logg.Debugw("rate.pruned", "limiters", n)
				}
			}
		}
	}()

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(api.RequestLogger(apiLog))

	handler := api.NewLedgerHandler(apiLog, svc)
	api.RegisterRoutes(app, handler, api.Middleware{
		Auth:        api.Auth(keys, apiLog),
		RateLimit:   api.RateLimit(limiter),
		Idempotency: api.Idempotency(store.NewIdempotency(st.Redis(), cfg.IdempotencyTTL), apiLog),
	}, map[string]api.HealthCheck{
		"store": st.HealthCheck,
		"nats": func(context.Context) error {
			if !pub.Connected() {
				return errors.New("disconnected")
			}
			return nil
		},
	}, feed.Upgrade, hub.Handler())

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[ledger-service] running",
		"env", cfg.Env,
		"nats", utils.MaskDSN(cfg.NATSURL),
		"journal", fmt.Sprintf("%T", journal),
		"seq", svc.Seq(),
		"products", svc.Count())

	<-ctx.Done()
	logg.Info("shutting down [ledger-service]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	auditor.Stop()
	reconciler.Stop()
	close(stopCleaner)

	// let in-flight events reach the publishers before they close
	bus.Wait()
	stopHub()
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
