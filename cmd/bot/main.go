package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/azure/linkedin-content-bot/internal/app"
	"github.com/azure/linkedin-content-bot/internal/chat"
	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/azure/linkedin-content-bot/internal/notifications"
	"github.com/azure/linkedin-content-bot/internal/pipeline"
	"github.com/azure/linkedin-content-bot/internal/scheduler"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting LinkedIn Content Bot")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer components.Close(context.Background())

	telegram := chat.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.ExternalCallTimeout, cfg.RetryCount)
	notificationService := notifications.NewService(cfg, telegram)

	pipelineService := pipeline.NewService(cfg, pipeline.Deps{
		Users:     components.Users,
		Store:     components.Store,
		Learner:   components.Learner,
		Indexer:   components.Indexer,
		Retriever: components.Retriever,
		Trends:    components.Trends,
		Writer:    components.Generator,
		Notifier:  notificationService,
		LinkedIn:  components.LinkedIn,
	})

	schedulerService := scheduler.NewService(cfg, pipelineService, components.Users)

	bot, err := chat.NewBot(cfg, chat.Deps{
		Messenger: telegram,
		Users:     components.Users,
		Store:     components.Store,
		Learner:   components.Learner,
		Indexer:   components.Indexer,
		Runner:    pipelineService,
		Scheduler: schedulerService,
		Publisher: components.LinkedIn,
		Auth:      components.OAuth,
		Trends:    components.Trends,
		Archive:   components.Blobs,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize bot: %v", err)
	}

	// Start scheduler
	if err := schedulerService.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Start polling Telegram
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		telegram.Poll(ctx, bot.Handle)
	}()

	// Set up HTTP server for health checks, metrics and the OAuth callback
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Run counters
	router.HandleFunc("/status", statusHandler(pipelineService)).Methods("GET")

	// Manual trigger endpoint (for testing)
	router.HandleFunc("/trigger", triggerHandler(pipelineService)).Methods("POST")

	// LinkedIn OAuth redirect
	router.HandleFunc("/callback", callbackHandler(components.OAuth, bot)).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	stop()
	<-pollDone

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	bot.Wait()
	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func statusHandler(pipelineService *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := pipelineService.GetMetrics()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(metrics))
	}
}

func triggerHandler(pipelineService *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"chat_id query parameter is required"}`))
			return
		}

		go func() {
			if _, err := pipelineService.Run(context.Background(), chatID, pipeline.TriggerManual, ""); err != nil {
				logrus.WithField("chat_id", chatID).Errorf("Manual trigger failed: %v", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Post run triggered"}`))
	}
}

func callbackHandler(oauth *linkedin.OAuth, bot *chat.Bot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "LinkedIn authorization failed: %s\n", q.Get("error_description"))
			return
		}

		chatID, ok := oauth.ValidateState(q.Get("state"))
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("This authorization link is invalid or expired. Send /auth in the chat to get a new one.\n"))
			return
		}

		code := q.Get("code")
		if err := bot.CompleteAuth(r.Context(), chatID, code); err != nil {
			logrus.WithField("chat_id", chatID).Errorf("OAuth callback failed: %v", err)
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintf(w, "Could not connect LinkedIn. You can send this code in the chat with /authcode %s\n", code)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("LinkedIn connected. You can close this window and return to the chat.\n"))
	}
}
