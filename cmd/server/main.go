package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/the-medo/swu-collection-sub005/internal/config"
	"github.com/the-medo/swu-collection-sub005/internal/db"
	"github.com/the-medo/swu-collection-sub005/internal/handlers"
	"github.com/the-medo/swu-collection-sub005/internal/logger"
	"github.com/the-medo/swu-collection-sub005/internal/models"
	"github.com/the-medo/swu-collection-sub005/internal/services"
)

func main() {
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	// Database connection
	database, err := db.Connect(db.NewConfig())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		log.Fatal("database health check failed", zap.Error(err))
	}
	log.Info("database connection established")

	// Services
	blobs := services.NewFSBlobStore(cfg.BlobRoot)
	scraper := services.NewCardmarketAdapter(log)
	pairing := services.NewPairingEngine(database, log)
	ingestion := services.NewIngestionService(
		[]services.BulkFeedAdapter{
			services.NewTCGplayerAdapter(cfg.TCGplayerBaseURL, blobs, log),
		},
		blobs, pairing, log,
	)
	priceService := services.NewCardPriceService(database, scraper, log)

	// Handlers
	priceHandler := handlers.NewPriceHandler(priceService, ingestion, log)

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "swu-collection-backend",
		})
	})

	r.HandleFunc("/card-prices/bulk-load", priceHandler.HandleBulkLoad).Methods(http.MethodPost)
	r.HandleFunc("/card-prices/history", priceHandler.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/card-prices/fetch-price", priceHandler.HandleFetchPrice).Methods(http.MethodPost)
	r.HandleFunc("/card-prices", priceHandler.HandleCardPrice).Methods(http.MethodGet, http.MethodDelete)

	admin := r.PathPrefix("/card-prices").Subrouter()
	admin.Use(requireAdmin(cfg.AdminToken, log))
	admin.HandleFunc("/create-source", priceHandler.HandleCreateSource).Methods(http.MethodPost)
	admin.HandleFunc("/recompute", priceHandler.HandleRecompute).Methods(http.MethodPost)

	// Scheduled ingestion, one sequential run per bulk-feed source.
	if cfg.IngestionCron != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.IngestionCron, func() {
			if _, err := ingestion.RunIngestion(context.Background(), models.SourceTCGplayer, false); err != nil {
				log.Error("scheduled ingestion failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Fatal("invalid ingestion cron expression", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, corsHandler(r)); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// requireAdmin guards admin-only endpoints with a shared secret. Full
// authentication lives outside this service.
func requireAdmin(token string, log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Admin-Token") != token {
				log.Warn("rejected admin request", zap.String("path", r.URL.Path))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
