/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pantry engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (YAML file, then PANTRY_* env, then flags)
  2. Initialize SQLite store
  3. Build the suggestion client (disabled without a token)
  4. Create the planner engine and load persisted state
  5. Start the expiry sweeper
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: pantry.yaml, optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the sweeper (waits for a running sweep)
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/pantry.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Enable recipe suggestions
  PANTRY_LLM_TOKEN=... ./server

SEE ALSO:
  - config/config.go: Config file and environment
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pantry-engine/api"
	"github.com/warp/pantry-engine/config"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/metrics"
	"github.com/warp/pantry-engine/planner"
	"github.com/warp/pantry-engine/store/sqlite"
	"github.com/warp/pantry-engine/suggest"
)

func main() {
	// Flags
	configPath := flag.String("config", "pantry.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid time zone: %v", err)
	}
	generic.Location = loc

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	client := newSuggestionClient(cfg.Suggestions)

	engine := planner.New(planner.Options{
		Store:              store,
		Client:             client,
		Metrics:            metrics.New(),
		LeftoverExpiryDays: cfg.Planner.LeftoverExpiryDays,
		SuggestionTimeout:  cfg.Suggestions.Timeout,
	})
	if err := engine.Load(context.Background()); err != nil {
		log.Fatalf("Failed to load pantry state: %v", err)
	}

	sweeper := api.NewSweeper(engine)
	sweeper.Interval = cfg.Sweeper.Interval
	sweeper.Enabled = cfg.Sweeper.Enabled
	sweeper.Start()

	handler := api.NewHandler(engine, store)
	handler.Sweeper = sweeper

	// Create router
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.Suggestions.Timeout > server.WriteTimeout {
		server.WriteTimeout = cfg.Suggestions.Timeout + 5*time.Second
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// newSuggestionClient returns the LLM-backed client, or a disabled one when
// no token is configured or the model cannot be built.
func newSuggestionClient(cfg config.SuggestionsConfig) suggest.Client {
	if !cfg.Enabled() {
		log.Println("🍳 Recipe suggestions disabled (no PANTRY_LLM_TOKEN)")
		return suggest.Disabled{}
	}
	model, err := suggest.NewOpenAIModel(suggest.OpenAIConfig{
		Token:   cfg.Token,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		log.Printf("Warning: suggestions disabled: %v", err)
		return suggest.Disabled{}
	}
	log.Printf("🍳 Recipe suggestions via %s", cfg.Model)
	return suggest.NewLLMClient(model,
		suggest.WithTemperature(cfg.Temperature),
		suggest.WithMaxTokens(cfg.MaxTokens),
	)
}
