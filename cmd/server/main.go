package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tranche/internal/accesscontrol"
	"tranche/internal/admin"
	"tranche/internal/allowance"
	"tranche/internal/balance"
	clearinghandler "tranche/internal/clearing/handler"
	clearingservice "tranche/internal/clearing/service"
	clearingstore "tranche/internal/clearing/store"
	"tranche/internal/compliance"
	"tranche/internal/events"
	"tranche/internal/hold"
	"tranche/internal/issuance"
	jwttoken "tranche/internal/jwt_token"
	"tranche/internal/platform/clock"
	"tranche/internal/platform/config"
	"tranche/internal/platform/httpserver"
	"tranche/internal/platform/logger"
	"tranche/internal/platform/metrics"
	platformredis "tranche/internal/platform/redis"
	"tranche/internal/rebase"
)

// main wires the stores, the clearing engine, and the HTTP surface. Business
// rules live in the internal services; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	balances := balance.NewInMemoryStore()
	allowances := allowance.NewInMemoryStore()
	access := accesscontrol.NewService()
	holds := hold.NewInMemoryStore()
	register := rebase.NewRegister()
	ledger := clearingstore.NewInMemoryStore()
	systemClock := clock.System{}
	m := metrics.New(prometheus.DefaultRegisterer)

	// Compliance reads go through Redis when configured; the in-memory store
	// stays authoritative either way.
	complianceStore := compliance.NewInMemoryStore()
	var complianceReads compliance.Registry = complianceStore
	var complianceWrites compliance.MutableRegistry = complianceStore
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cached := compliance.NewCachedRegistry(complianceStore, redisClient, config.ComplianceCacheTTL)
		complianceReads = cached
		complianceWrites = compliance.NewInvalidatingRegistry(complianceStore, cached)
		log.Info("compliance cache enabled", "ttl", config.ComplianceCacheTTL.String())
	}

	// Event sinks: always the in-process log (it backs the history endpoint),
	// plus Kafka and the postgres outbox when configured.
	eventLog := events.NewLog()
	sinks := events.Fanout{eventLog}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Info("kafka publisher enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.DatabaseURL != "" {
		outbox, err := events.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer outbox.Close()
		sinks = append(sinks, outbox)
		log.Info("postgres event outbox enabled")
	}

	engine, err := clearingservice.New(clearingservice.Config{
		Ledger:         ledger,
		Balances:       balances,
		Allowances:     allowances,
		Operators:      access,
		Roles:          access,
		Compliance:     complianceReads,
		Pause:          access,
		Holds:          holds,
		Rebase:         register,
		Clock:          systemClock,
		Publisher:      sinks,
		MultiPartition: cfg.MultiPartition,
	})
	if err != nil {
		return err
	}
	// The subsystem ships activated; deactivation is an operational action.
	if err := engine.Activate(context.Background()); err != nil {
		return err
	}

	issuer, err := issuance.New(issuance.Config{
		Balances:       balances,
		Roles:          access,
		Compliance:     complianceReads,
		Pause:          access,
		Rebase:         register,
		Clock:          systemClock,
		Publisher:      sinks,
		MultiPartition: cfg.MultiPartition,
	})
	if err != nil {
		return err
	}

	holdSvc, err := hold.NewService(holds, balances, register, systemClock)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "tranche", "tranche-api")

	router := chi.NewRouter()
	clearinghandler.New(engine, log, m, jwtService).Register(router)
	admin.New(admin.Config{
		Logger:       log,
		Access:       access,
		Compliance:   complianceWrites,
		Allowances:   allowances,
		Issuer:       issuer,
		Toggle:       engine,
		Holds:        holdSvc,
		History:      eventLog,
		Rebase:       register,
		Clock:        systemClock,
		JWTValidator: jwtService,
	}).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("clearing service listening",
			"addr", cfg.Addr,
			"multi_partition", cfg.MultiPartition,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
