package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/obiekwelu/chatwallet/internal/api"
	"github.com/obiekwelu/chatwallet/internal/config"
	"github.com/obiekwelu/chatwallet/internal/gateway"
	"github.com/obiekwelu/chatwallet/internal/store"
	"github.com/obiekwelu/chatwallet/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logCfg := zap.NewDevelopmentConfig()
	if cfg.Env == "production" {
		logCfg = zap.NewProductionConfig()
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		lvl, err := zap.ParseAtomicLevel(raw)
		if err != nil {
			log.Fatalf("Invalid LOG_LEVEL %q: %v", raw, err)
		}
		logCfg.Level = lvl
	}
	logger, err := logCfg.Build()
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Layers
	var walletStore wallet.Store
	switch cfg.StoreDriver {
	case "memory":
		walletStore = store.NewMemoryStore()
		logger.Warn("using in-memory store; balances will not survive a restart")
	default:
		pg, err := store.NewPostgresStore(cfg.DBSource)
		if err != nil {
			logger.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Db.Close()
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		walletStore = pg
	}

	gatewayClient := gateway.New(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		Secret:  cfg.GatewaySecret,
		Timeout: cfg.GatewayTimeout,
	}, logger)

	engine := wallet.NewEngine(walletStore, gatewayClient, cfg.Currency, logger)
	handler := api.NewHandler(walletStore, engine, cfg.Currency, cfg.WebhookSecret, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r)

	logger.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.String("currency", cfg.Currency),
	)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
