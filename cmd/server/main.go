// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sebenza/internal/audit"
	auditHandler "sebenza/internal/audit/handler"
	"sebenza/internal/checklist"
	checklistHandler "sebenza/internal/checklist/handler"
	"sebenza/internal/events"
	eventsHandler "sebenza/internal/events/handler"
	jwttoken "sebenza/internal/jwt_token"
	"sebenza/internal/limiter"
	"sebenza/internal/platform/config"
	"sebenza/internal/platform/httpserver"
	"sebenza/internal/platform/kafka"
	"sebenza/internal/platform/logger"
	"sebenza/internal/platform/metrics"
	"sebenza/internal/platform/postgres"
	platformredis "sebenza/internal/platform/redis"
	"sebenza/internal/session"
	sessionHandler "sebenza/internal/session/handler"
	httptransport "sebenza/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	m := metrics.New()

	readyChecks := map[string]func(ctx context.Context) error{}

	// Stores: postgres when a DSN is configured, in-memory otherwise.
	var (
		sessionStore   session.Store
		checklistStore checklist.Store
		auditStore     audit.Store
		txRunner       session.TxRunner = session.NopTx{}
	)
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		sessionStore = session.NewPostgresStore(db)
		checklistStore = checklist.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		txRunner = newPostgresTx(db)
		readyChecks["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		sessionStore = session.NewInMemoryStore()
		checklistStore = checklist.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.Kafka.Brokers) > 0 {
		feed, err := kafka.NewPublisher(ctx, cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer feed.Close()
		auditOpts = append(auditOpts, audit.WithPublisher(feed))
		log.Info("audit feed enabled", "topic", cfg.Kafka.AuditTopic)
	}
	auditSvc, err := audit.NewService(auditStore, auditOpts...)
	if err != nil {
		return err
	}

	checklistOpts := []checklist.Option{
		checklist.WithLogger(log),
		checklist.WithMetrics(m),
		checklist.WithTxRunner(txRunner),
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache := checklist.NewStatusCache(redisClient.Client, cfg.Redis.StatusTTL, log)
		checklistOpts = append(checklistOpts, checklist.WithStatusCache(cache))
		readyChecks["redis"] = redisClient.Health
		log.Info("checklist status cache enabled")
	}
	checklistSvc, err := checklist.NewService(checklistStore, auditSvc, checklistOpts...)
	if err != nil {
		return err
	}

	sessionSvc, err := session.NewService(sessionStore, checklistSvc, auditSvc,
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithTxRunner(txRunner),
		session.WithRestartResetsResponses(cfg.Onboarding.RestartResetsResponses),
	)
	if err != nil {
		return err
	}

	limiterSvc, err := limiter.New(sessionStore, auditSvc, sessionSvc.Locks(),
		limiter.WithLogger(log),
		limiter.WithMetrics(m),
		limiter.WithTxRunner(txRunner),
	)
	if err != nil {
		return err
	}

	eventRouter, err := events.NewRouter(sessionSvc, auditSvc,
		events.WithLogger(log),
		events.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, "sebenza", "sebenza-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Handlers: []httptransport.Registrar{
			sessionHandler.New(sessionSvc, limiterSvc, log),
			checklistHandler.New(checklistSvc, log),
			auditHandler.New(auditSvc, log),
			eventsHandler.New(eventRouter, log),
		},
		Validator:   jwtService,
		Logger:      log,
		Metrics:     m,
		ReadyChecks: readyChecks,
	})

	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
