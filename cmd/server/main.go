/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the TOIL engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize the record store (SQLite or shared-directory JSON)
  3. Build the engine: calculator, throttle, cache, event synchronizer
  4. Configure HTTP router and maintenance scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: toil.db)
           Use ":memory:" for an in-memory database
  -data    Shared data directory. When set, records live in JSON files
           in this directory instead of SQLite, and multiple server
           instances pointed at the same directory stay in sync.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the maintenance scheduler, close the engine and store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/toil.db"

  # Run two instances sharing one data directory
  ./server -port=8080 -data="./shared"
  ./server -port=8081 -data="./shared"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: SQLite store
  - store/shared/shared.go: Shared-directory JSON store
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

	"github.com/warp/toil-engine/accrual"
	"github.com/warp/toil-engine/api"
	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
	"github.com/warp/toil-engine/store/shared"
	"github.com/warp/toil-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "toil.db", "SQLite database path")
	dataDir := flag.String("data", "", "Shared data directory (overrides -db)")
	flag.Parse()

	// Initialize store and change notifier
	var (
		recordStore engine.RecordStore
		notifier    engine.ChangeNotifier
		closeStore  func()
	)
	if *dataDir != "" {
		st, err := shared.New(*dataDir, shared.DefaultConfig())
		if err != nil {
			log.Fatalf("Failed to open shared data directory: %v", err)
		}
		n := shared.NewNotifier(st, 200*time.Millisecond)
		recordStore = st
		notifier = n
		closeStore = n.Close
		log.Printf("Using shared data directory %s", *dataDir)
	} else {
		st, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		recordStore = st
		notifier = engine.NewLoopbackNotifier()
		closeStore = func() { st.Close() }
		log.Printf("Using SQLite database %s", *dbPath)
	}
	defer closeStore()

	// Input registries: schedules, holidays, and time entries are fed
	// over the API and held in memory.
	schedules := api.NewScheduleRegistry()
	holidays := api.NewHolidayRegistry()
	entries := api.NewEntryRegistry()

	calc := accrual.New(schedule.NewResolver(schedule.DefaultConfig()), accrual.DefaultConfig())

	eng, err := engine.New(engine.Config{
		Store:      recordStore,
		Calculator: calc,
		Notifier:   notifier,
		Throttle:   engine.DefaultThrottleConfig(),
		Cache:      engine.DefaultCacheConfig(),
		Recovery:   engine.DefaultRecoveryConfig(),
		Entries:    entries,
		Schedules:  schedules,
		Holidays:   holidays,
	})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	defer eng.Close()

	// Handler and router
	handler := api.NewHandler(eng, schedules, holidays, entries)
	router := api.NewRouter(handler)

	// Background maintenance
	scheduler := api.NewMaintenanceScheduler(eng)
	scheduler.Start()
	defer scheduler.Stop()

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
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
