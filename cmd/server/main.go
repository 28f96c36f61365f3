package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fleettrack/backend/docs"
	"github.com/fleettrack/backend/internal/config"
	"github.com/fleettrack/backend/internal/database"
	mW "github.com/fleettrack/backend/internal/middleware"
	"github.com/fleettrack/backend/internal/services"
	"github.com/fleettrack/backend/internal/storage"
	"github.com/fleettrack/backend/internal/ws"
)

// @title Fleet Tracking Backend API
// @version 1.0
// @description API for GPS fleet tracking, attendance and subscription payments
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	viper.BindEnv("storage.json_path", "STORAGE_JSON_PATH")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("cards.bin_table_path", "CARDS_BIN_TABLE_PATH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Fleet Tracking Backend API"
	docs.SwaggerInfo.Description = "API for GPS fleet tracking, attendance and subscription payments"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	trackingCfg := config.LoadTrackingConfig()

	// Initialize services
	viper.SetDefault("storage.backend", "postgres")

	var db *sql.DB
	if viper.GetString("storage.backend") == "postgres" {
		db = database.InitDatabase()
		defer db.Close()
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	stores, err := storage.Open(db)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	binTable := services.LoadBINTable(viper.GetString("cards.bin_table_path"))
	cardValidator := services.NewCardValidator(binTable)

	hub := ws.NewHub()

	cardService := services.NewCardService(cardValidator)
	attendanceService := services.NewAttendanceService(stores.Attendance, stores.Locations, trackingCfg)
	locationService := services.NewLocationService(stores.Locations, stores.Telemetry, redisClient, hub, trackingCfg)
	reportService := services.NewReportService(stores.Attendance, stores.Locations, stores.Telemetry, stores.Reports, trackingCfg)
	receiptService := services.NewReceiptQRService(redisClient, trackingCfg.PaymentTokenTTL)
	paymentService := services.NewPaymentService(stores.Payments, cardValidator, receiptService)
	settlementService := services.NewSettlementService(stores.Payments, trackingCfg.SettlementBICCode)
	voiceService := services.NewVoiceNotesService()
	defer voiceService.Close()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/cards/validate", cardService.ValidateCard)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			// Attendance endpoints
			r.Post("/attendance/check-in", attendanceService.CheckIn)
			r.Post("/attendance/check-out", attendanceService.CheckOut)
			r.Get("/attendance/status", attendanceService.GetCurrentStatus)
			r.Get("/attendance/history", attendanceService.GetHistory)

			// Location endpoints
			r.Post("/locations", locationService.StoreLocation)
			r.Post("/locations/batch", locationService.StoreBatch)
			r.Get("/locations/history", locationService.GetHistory)
			r.Get("/locations/latest", locationService.GetLatest)

			// Report endpoints
			r.Get("/reports/daily", reportService.GetDailyReport)

			// Payment endpoints
			r.Post("/payments", paymentService.InitiatePayment)
			r.Get("/payments/{id}", paymentService.GetPayment)
			r.Post("/payments/receipts/verify", paymentService.VerifyReceipt)

			// Settlement endpoints
			r.Post("/settlements/export", settlementService.ExportSettlements)
			r.Post("/settlements/{id}/ack", settlementService.AcknowledgePayment)

			// Voice note endpoints
			r.Post("/voice-notes/transcribe", voiceService.TranscribeNote)

			// Live position stream
			r.Get("/ws/positions", hub.ServeWS)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
