package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afiq90/sora2api/internal/config"
	"github.com/afiq90/sora2api/internal/db"
	"github.com/afiq90/sora2api/internal/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	store := db.New(cfg.DatabaseURL)
	if !store.Configured() {
		log.Printf("no DATABASE_URL configured; running without persistence")
	} else {
		firstStartup, err := db.Migrate(store)
		if err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}

		overrides, err := config.LoadBootstrap(cfg.SettingPath)
		if err != nil {
			log.Printf("warning: ignoring bootstrap overrides: %v", err)
			overrides = nil
		}
		if err := db.NewConfigStore(store).EnsureDefaults(overrides, firstStartup); err != nil {
			log.Fatalf("failed to ensure config defaults: %v", err)
		}
		if firstStartup {
			log.Printf("config tables seeded (first startup)")
		}
	}

	metrics.Init()
	db.StartPoolStatsWorker(store)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Fatalf("metrics server error: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := store.Close(); err != nil {
		log.Printf("warning: closing database pool: %v", err)
	}
}
