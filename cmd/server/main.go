package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/oigen/internal/config"
	"github.com/rpattn/oigen/internal/db"
	"github.com/rpattn/oigen/internal/middleware"
	"github.com/rpattn/oigen/internal/pipeline"
	"github.com/rpattn/oigen/internal/report"
	"github.com/rpattn/oigen/internal/repository"
	"github.com/rpattn/oigen/internal/reprocess"

	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	recordRepo := repository.NewRecordRepository(conn.Pool)

	pipelineService := pipeline.NewService(recordRepo, cfg.Generator)
	reportService := report.NewService(recordRepo)
	reprocessService := reprocess.NewService(recordRepo, cfg.Generator)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/ingest", pipeline.NewHTTPHandler(pipelineService))
	mux.Handle("/report", report.NewHTTPHandler(reportService))
	mux.Handle("/reprocess", reprocess.NewHTTPHandler(reprocessService))
	mux.Handle("/reprocess/export", reprocess.NewHTTPHandler(reprocessService))

	handler := corsHandler.Handler(middleware.LoggingMiddleware(mux))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting import generator server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
