package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"call-scoring-go/internal/aggregate"
	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/config"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/registry"
	"call-scoring-go/internal/scoring"
	"call-scoring-go/internal/secrets"
	"call-scoring-go/internal/server"
	"call-scoring-go/internal/store"
	"call-scoring-go/internal/types"
	"call-scoring-go/internal/worker"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-scoring-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := store.Connect(cfg.Postgres)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()
	log.WithField("database", cfg.Postgres.Database).Info("postgres connected")

	encryptor, err := secrets.NewEncryptor(cfg.Crypto.EncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("invalid encryption key")
	}

	calls := store.NewCallRepository(db)
	scores := store.NewScoreRepository(db)
	metrics := store.NewAgentMetricRepository(db)
	credentials := store.NewCredentialRepository(db)
	reg := registry.New(store.NewDashboardRepository(db))

	// the decrypted key exists only for the duration of one LLM call
	apiKey := func(ctx context.Context, companyID string) (string, error) {
		sealed, err := credentials.Get(ctx, companyID, store.LLMAPIKeyName)
		if err != nil {
			if apperr.Is(err, apperr.ErrNotFound) {
				return "", apperr.Wrap(apperr.ErrLLMNotConfigured, "no api key stored")
			}
			return "", err
		}
		key, err := encryptor.Decrypt(sealed, companyID)
		if err != nil {
			return "", apperr.Wrap(apperr.ErrDecryptionFailure, err.Error())
		}
		return key, nil
	}

	engine := scoring.NewEngine(calls, scores, reg,
		scoring.NewLLMScorer(cfg.LLM, apiKey),
		scoring.NewRuleScorer(),
		cfg.Scoring.Workers,
	)
	aggregator := aggregate.NewService(calls, metrics)
	engine.OnScored(func(ctx context.Context, call *types.Call) {
		if err := aggregator.Recompute(ctx, call.CompanyID, call.AgentID); err != nil {
			log.WithError(err).WithField("agent_id", call.AgentID).Error("rollup after score failed")
		}
	})

	srv := &server.Server{
		Calls:       calls,
		Scores:      scores,
		Metrics:     metrics,
		Credentials: credentials,
		Registry:    reg,
		Engine:      engine,
		Aggregator:  aggregator,
		Encryptor:   encryptor,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner := worker.NewScanner(calls, reg, engine, aggregator, cfg.Scoring)
	cr, err := scanner.Start(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to start scan worker")
	}

	addr := ":" + cfg.App.Port
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Mux(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	<-cr.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
		os.Exit(1)
	}
}
