package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samirrijal/houselocator/internal/adapters/postgres"
	"github.com/samirrijal/houselocator/internal/pkg/config"
	"github.com/samirrijal/houselocator/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}

	cfg, err := config.Load("houselocator-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		applied, err := db.MigrateUp(ctx)
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		for _, v := range applied {
			fmt.Printf("OK  %s\n", v)
		}
		logger.Info("all migrations applied", "new", len(applied))
	case "down":
		v, err := db.MigrateDown(ctx)
		if err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		if v == "" {
			logger.Info("nothing to roll back")
			return
		}
		fmt.Printf("DOWN %s\n", v)
	case "status":
		status, err := db.Status(ctx)
		if err != nil {
			log.Fatalf("migration status: %v", err)
		}
		for _, m := range status {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, m.Version)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
