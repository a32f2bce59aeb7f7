// cmd/seed/main.go
package main

import (
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"customer-report/internal/config"
	"customer-report/internal/customer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	customers := customer.Generate(cfg.SeedCount, time.Now(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	if err := customer.SaveCustomers(cfg.DataFile, customers); err != nil {
		log.Fatalf("Failed to write %s: %v", cfg.DataFile, err)
	}
	logger.Info("seeded customer data", "file", cfg.DataFile, "count", len(customers))
}
