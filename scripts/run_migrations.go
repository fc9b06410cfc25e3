package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/config"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/migrations"
)

func main() {
	log, err := logger.New(config.LogConfig{Level: "info", Environment: "development", ServiceName: "migrate"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := os.Args[1]

	dbCfg := config.LoadDatabase()
	db, err := database.NewConnection(&dbCfg)
	if err != nil {
		log.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db, migrations.FS, direction)
	if err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	for _, name := range applied {
		log.Info("Applied migration", zap.String("file", name))
	}
	log.Info("Migrations completed", zap.String("direction", direction), zap.Int("count", len(applied)))
}
