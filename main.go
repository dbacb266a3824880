package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drinkLogAPI/handlers"
	"drinkLogAPI/internal/config"
	"drinkLogAPI/internal/notify"
	"drinkLogAPI/internal/stats"
	"drinkLogAPI/internal/store"
	"drinkLogAPI/middleware"
	"drinkLogAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	clerk.SetKey(cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	recordStore, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	cancel()
	if err != nil {
		log.Fatal("Failed to open record store: ", err)
	}
	defer func() {
		log.Println("Closing record store...")
		recordStore.Close()
	}()
	log.Printf("Record store ready (driver=%s)", cfg.StoreDriver)

	feed := notify.NewFeed(0)
	devices := notify.NewDevices()
	notifiers := notify.Multi{notify.LogNotifier{}, feed}

	fcm, err := notify.NewFCMNotifier(context.Background(), cfg.FCMCredentialsJSON, cfg.FCMCredentialsFile, devices)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		dispatcher := notify.NewDispatcher(fcm, 5, 100)
		defer dispatcher.Stop()
		notifiers = append(notifiers, dispatcher)
		log.Println("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus()

	engine := stats.Engine{WeekStart: cfg.WeekStart}
	manager := services.NewDrinkLogManager(recordStore, engine, notifiers, cfg.SessionIdleTTL)
	defer manager.CloseAll()

	drinkHandler := handlers.NewDrinkHandler(manager, cfg.Location)
	streamHandler := handlers.NewStreamHandler(manager)
	notificationHandler := handlers.NewNotificationHandler(feed, devices)

	done := make(chan struct{})
	defer close(done)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Cleanup(done)
	go manager.Cleanup(done)

	r := mux.NewRouter()

	// Websocket upgrades bypass the monitoring wrapper, which does not
	// implement http.Hijacker.
	r.Handle("/api/v1/drinks/stream", middleware.ClerkAuthMiddleware(http.HandlerFunc(streamHandler.Stream))).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := recordStore.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "record store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "drinkLog-api"}`))
	}).Methods("GET")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/drinks", drinkHandler.GetDrinks).Methods("GET")
	protected.HandleFunc("/drinks/stats", drinkHandler.GetStats).Methods("GET")
	protected.HandleFunc("/drinks/import", drinkHandler.ImportDrinks).Methods("POST")
	protected.HandleFunc("/drinks/export", drinkHandler.ExportDrinks).Methods("GET")
	protected.HandleFunc("/drinks/export/template", drinkHandler.ExportTemplate).Methods("GET")
	protected.HandleFunc("/drinks/calendar", drinkHandler.GetCalendar).Methods("GET")
	protected.HandleFunc("/drinks/heatmap", drinkHandler.GetHeatmap).Methods("GET")
	protected.HandleFunc("/drinks/chart", drinkHandler.GetChart).Methods("GET")
	protected.HandleFunc("/drinks/{date}", drinkHandler.SetDrinks).Methods("PUT")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length", "Content-Disposition"}),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      gorilllaHandlers.CombinedLoggingHandler(os.Stdout, corsHandler(r)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
