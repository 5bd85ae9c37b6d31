package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/http-ssh-server/backend/api/handlers"
	"github.com/http-ssh-server/backend/internal/broker"
	"github.com/http-ssh-server/backend/internal/config"
	"github.com/http-ssh-server/backend/internal/db"
	"github.com/http-ssh-server/backend/internal/repository"
	"github.com/http-ssh-server/backend/internal/shell"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	startDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to determine working directory: %v", err)
	}

	// Initialize command history, if configured
	var history *repository.HistoryRepository
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
		database, err := db.InitDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.CloseDB()
		history = repository.NewHistoryRepository(database)
	}

	// Initialize the broker and its execution pool
	executor := shell.New(cfg.ExecTimeout)
	b := broker.New(executor, history, broker.Config{
		StartDir:    startDir,
		ExecWorkers: cfg.ExecWorkers,
	})

	brokerCtx, stopBroker := context.WithCancel(context.Background())
	defer stopBroker()
	go b.Run(brokerCtx)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(b)
	healthHandler := handlers.NewHealthHandler()
	filesHandler := handlers.NewFilesHandler(startDir)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	healthHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	// API routes
	api := r.Group("/api")
	{
		filesHandler.RegisterRoutes(api)
		if history != nil {
			handlers.NewHistoryHandler(history).RegisterRoutes(api)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		stopBroker()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on port %s (command timeout %s)", cfg.Port, executor.Timeout())
	log.Printf("Health check endpoint: http://127.0.0.1:%s/health", cfg.Port)
	log.Printf("WebSocket endpoint: ws://127.0.0.1:%s/ws/{room_id}", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
