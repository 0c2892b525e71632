package main

import (
	"log"
	"net/http"

	"veriform/config"
	"veriform/database"
	"veriform/handlers"
	"veriform/metrics"
	"veriform/middleware"
	"veriform/registry"
	"veriform/stats"
	"veriform/storage"
	"veriform/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	config.ValidateConfig(cfg)

	if err := utils.InitializeJWT(cfg.JWTSecret); err != nil {
		log.Fatal("Failed to initialize JWT:", err)
	}

	db, err := database.Initialize(cfg.DatabaseURL, cfg.UploadDir)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// The store owns the upload directory; the registry gets the handle so
	// there is no ambient global storage state.
	store, err := storage.Initialize(cfg.UploadDir, cfg.MaxUploadBytes, db)
	if err != nil {
		log.Fatal("Failed to initialize attachment store:", err)
	}

	reg := registry.New(db, store)
	agg := stats.New(db)
	m := metrics.New()

	h := handlers.NewHandlers(db, cfg, store, reg, agg, m)

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.CORS)
	r.Use(middleware.RateLimit)

	// Public routes
	r.HandleFunc("/api/register", h.Register).Methods("POST")
	r.HandleFunc("/api/login", h.Login).Methods("POST")
	r.HandleFunc("/api/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Submission intake (public, anonymous applicants)
	r.HandleFunc("/api/registration", h.SubmitRegistration).Methods("POST")
	r.HandleFunc("/api/trading-application", h.SubmitTradingApplication).Methods("POST")

	// Protected admin routes
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.JWTAuth)
	admin.Use(middleware.AdminAuth)

	admin.HandleFunc("/submissions", h.ListSubmissions).Methods("GET")
	admin.HandleFunc("/submissions/{id:[0-9]+}", h.GetSubmission).Methods("GET")
	admin.HandleFunc("/submissions/{id:[0-9]+}", h.DeleteSubmission).Methods("DELETE")
	admin.HandleFunc("/submissions/{id:[0-9]+}/status", h.UpdateSubmissionStatus).Methods("PATCH")
	admin.HandleFunc("/submissions/{id:[0-9]+}/download/{slot}", h.DownloadFile).Methods("GET")
	admin.HandleFunc("/submissions/{id:[0-9]+}/view/{slot}", h.ViewFile).Methods("GET")
	admin.HandleFunc("/statistics", h.GetStatistics).Methods("GET")
	admin.HandleFunc("/audit-logs", h.GetAuditLogs).Methods("GET")

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Upload dir: %s", cfg.UploadDir)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
