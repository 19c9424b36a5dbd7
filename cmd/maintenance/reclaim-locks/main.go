package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/config"
	"github.com/smarttransit/booking-core/internal/database"
	"github.com/smarttransit/booking-core/internal/services"
)

// One-shot sweep of expired seat locks, for use when the server is down or
// after a bulk import.
func main() {
	var (
		dbURLFlag string
		batchSize int
		timeout   time.Duration
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&batchSize, "batch-size", 500, "seats released per transaction")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	reclaimer := services.NewLockReclaimerService(
		database.NewInventoryRepository(db),
		clock.Real{},
		logger,
		time.Minute,
		batchSize,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	released := reclaimer.RunOnce(ctx)
	fmt.Printf("Released %d expired seat locks.\n", released)
}
