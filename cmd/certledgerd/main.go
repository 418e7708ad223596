package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/archive"
	"certledger/internal/infra/cache"
	"certledger/internal/infra/db"
	httpinfra "certledger/internal/infra/http"
	"certledger/internal/infra/ledger"
	"certledger/internal/infra/metrics"
	"certledger/internal/infra/policy"
	"certledger/internal/infra/ratelimit"
	"certledger/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	log := newLogger(cfg.LogLevel)

	store, err := db.NewStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init store")
	}
	if err := store.Migrate(); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	archiver, err := archive.NewClient(cfg.ArchiveBaseURL, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		log.WithError(err).Fatal("failed to init archive client")
	}
	ledgerClient, err := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerNetwork, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		log.WithError(err).Fatal("failed to init ledger client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policyEngine, err := newPolicyEngine(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init transition policy")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var verifyCache domain.VerificationCache
	var limiter domain.RateLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisCache, err := cache.NewRedis(client)
		if err != nil {
			log.WithError(err).Fatal("failed to init verification cache")
		}
		verifyCache = redisCache
		redisLimiter, err := ratelimit.NewRedisLimiter(client, nil)
		if err != nil {
			log.WithError(err).Fatal("failed to init rate limiter")
		}
		limiter = redisLimiter
	} else {
		verifyCache = cache.NewMemory()
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitMaxKeys, nil)
	}

	body := domain.CertificationBody{Code: cfg.BodyCode, Name: cfg.BodyName}
	issueUC := &usecase.IssueCertificate{
		Archiver:            archiver,
		Ledger:              ledgerClient,
		Recorder:            store.Transactions,
		Index:               store.Certificates,
		Body:                body,
		Network:             cfg.LedgerNetwork,
		ConfirmationTimeout: cfg.ConfirmationTimeout(),
		Metrics:             m,
		Log:                 log,
	}
	verifyUC := &usecase.VerifyCertificate{
		Index:    store.Certificates,
		Ledger:   ledgerClient,
		Archiver: archiver,
		Cache:    verifyCache,
		CacheTTL: cfg.VerifyCacheTTL(),
		Metrics:  m,
		Log:      log,
	}
	statusUC := &usecase.StatusService{
		Ledger:              ledgerClient,
		Recorder:            store.Transactions,
		Index:               store.Certificates,
		Policy:              policyEngine,
		Network:             cfg.LedgerNetwork,
		ConfirmationTimeout: cfg.ConfirmationTimeout(),
		Metrics:             m,
		Log:                 log,
	}
	worker := &usecase.ConfirmWorker{
		Recorder:  store.Transactions,
		Ledger:    ledgerClient,
		Index:     store.Certificates,
		Interval:  cfg.ConfirmationSweepInterval(),
		BatchSize: cfg.ConfirmationSweepBatch,
		Metrics:   m,
		Log:       log,
	}
	go worker.Run(ctx)

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Issue:       issueUC,
		Verify:      verifyUC,
		Status:      statusUC,
		Index:       store.Certificates,
		Recorder:    store.Transactions,
		Gatherer:    registry,
		Log:         log,
		RateLimiter: limiter,
		Healthcheck: func() error {
			sqlDB, err := store.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
	})

	log.WithField("addr", cfg.HTTPAddr).Info("certledgerd listening")
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func newPolicyEngine(ctx context.Context, cfg config.Config) (domain.TransitionPolicy, error) {
	if cfg.PolicyBundlePath != "" {
		return policy.NewEngineFromPath(ctx, cfg.PolicyBundlePath)
	}
	return policy.NewEngine(ctx)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
