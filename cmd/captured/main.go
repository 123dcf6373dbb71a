package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mpesa-capture/internal/api/handlers"
	"mpesa-capture/internal/api/middleware"
	"mpesa-capture/internal/dispatch"
	"mpesa-capture/internal/host"
	"mpesa-capture/internal/logger"
	"mpesa-capture/internal/notify"
	"mpesa-capture/internal/pending/bolt"
)

func main() {
	// Parse command-line flags
	var (
		port   = flag.String("port", envOr("CAPTURED_PORT", "8080"), "HTTP server port (or set CAPTURED_PORT env)")
		dbPath = flag.String("db", envOr("CAPTURED_DB", "pending.db"), "path to the pending-transactions store (or set CAPTURED_DB env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	// Open the durable pending store
	store, err := bolt.Open(*dbPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("Failed to open pending store")
	}
	defer store.Close()

	// Wire the capture pipeline. The notifier and the coordinator
	// reference each other (presenter one way, outcome router the
	// other), so the router is bound after construction.
	channel := host.NewChannel(log)
	notifier := notify.NewNotifier(notify.NewLogSink(log), nil, log)
	coordinator := dispatch.NewCoordinator(channel, store, notifier, log)
	notifier.Bind(coordinator)

	// The daemon is headless: overlay sessions need an embedding host
	// with a display, so the bridge runs without a session opener and
	// capture goes through the notification surface.
	bridge := host.NewBridge(store, nil, log)

	// Initialize handlers
	messagesHandler := handlers.NewMessagesHandler(coordinator, log)
	pendingHandler := handlers.NewPendingHandler(store, log)
	actionsHandler := handlers.NewActionsHandler(notifier, log)
	hostHandler := handlers.NewHostHandler(bridge, channel, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			messagesHandler.Receive(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/pending", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			pendingHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/pending/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			pendingHandler.Clear(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/pending/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			code := strings.TrimPrefix(r.URL.Path, "/api/pending/")
			if code == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Transaction code is required")
				return
			}
			pendingHandler.Remove(w, r, code)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/host/invoke", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			hostHandler.Invoke(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/host/attach", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			hostHandler.Attach(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/host/detach", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			hostHandler.Detach(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			actionsHandler.Handle(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("db", *dbPath).Msg("Starting capture daemon")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
