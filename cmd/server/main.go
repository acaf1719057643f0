/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the jewels loyalty ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Seed a default earn rule if none is configured
  4. Create API handler with dependencies
  5. Start the expiry sweep scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: jewels.db)
                   Use ":memory:" for an in-memory database
  -sweep-interval  How often to run the expiry sweep (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/jewels.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Sweep every ten minutes
  ./server -sweep-interval=10m

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/villaluz/jewels-engine/api"
	"github.com/villaluz/jewels-engine/jewels"
	"github.com/villaluz/jewels-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "jewels.db", "SQLite database path")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "Expiry sweep interval")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Seed the default earn rule so awards work out of the box.
	ctx := context.Background()
	if _, err := store.ActiveRule(ctx); errors.Is(err, jewels.ErrRuleNotFound) {
		if err := store.SaveRule(ctx, jewels.DefaultEarnRule()); err != nil {
			log.Fatalf("Failed to seed default earn rule: %v", err)
		}
		log.Println("Seeded default earn rule")
	} else if err != nil {
		log.Fatalf("Failed to load earn rules: %v", err)
	}

	// Initialize handler. The store backs the option catalog, the rule
	// store, and the sweep audit trail as well as the ledger.
	handler := api.NewHandler(store, store, store, store, jewels.DefaultTiers)

	// Start the expiry sweep scheduler
	sweeper := jewels.NewSweeper(store, handler.Agg, store)
	scheduler := api.NewExpiryScheduler(sweeper)
	scheduler.Interval = *sweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api/loyalty", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
