package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizadmin/auth"
	"quizadmin/config"
	"quizadmin/fallback"
	httpserver "quizadmin/http"
	"quizadmin/persist"
	"quizadmin/quiz"
	"quizadmin/store"
	"quizadmin/ws"
)

func main() {
	log.Println("Starting quiz admin server...")

	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded - Server port: %s, DB path: %s, Fallback dir: %s", cfg.ServerPort, cfg.DBPath, cfg.FallbackDir)

	// The fallback store must exist even when the primary is down; it is
	// the degraded-mode data path.
	fb, err := fallback.NewStore(cfg.FallbackDir)
	if err != nil {
		log.Fatalf("Failed to initialize fallback store: %v", err)
	}

	// Open the primary store and bring its schema up to date. An
	// unreachable primary is not fatal: the coordinator starts degraded
	// and an operator can trigger a sync once the database returns.
	var primary store.Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Printf("Primary store unavailable, starting in fallback mode: %v", err)
		primary = store.Unavailable{}
	} else {
		defer sqliteStore.Close()
		results, err := store.EnsureSchema(sqliteStore.DB(), cfg.AdminUsername, cfg.AdminPassword)
		for _, res := range results {
			if res.Err != nil {
				log.Printf("Schema init: %s failed: %v", res.Name, res.Err)
			} else if res.Applied {
				log.Printf("Schema init: %s applied", res.Name)
			}
		}
		if err != nil {
			if errors.Is(err, store.ErrManualMigrationRequired) {
				log.Fatalf("Schema init: %v", err)
			}
			log.Printf("Schema init incomplete: %v", err)
		}
		primary = sqliteStore
	}

	// Initialize services
	coord := persist.New(primary, fb, cfg.ProbeTimeout)
	hub := ws.NewHub()
	coord.SetListener(hub)

	sessionManager := auth.NewSessionManager(cfg.SessionSecret)
	authService := auth.NewService(coord, sessionManager)
	quizService := quiz.NewService(coord)

	// Initialize HTTP server
	server := httpserver.NewServer(authService, quizService, coord, fb, hub)
	srv := server.GetHTTPServer(cfg.ServerPort)

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on http://localhost%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
