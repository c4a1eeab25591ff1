//cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/logging"
)

var defaultSeedFiles = []string{
	"seed/senders.sql",
	"seed/contacts.sql",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	files := os.Args[1:]
	if len(files) == 0 {
		files = defaultSeedFiles
	}

	if err := seed(context.Background(), cfg.Database, files, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	fmt.Println("Database seeding completed successfully!")
}

// seed applies the schema, then runs each SQL file in order.
func seed(ctx context.Context, cfg config.DatabaseConfig, files []string, logger *zap.Logger) error {
	conn, err := db.Open(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.EnsureSchema(ctx); err != nil {
		return err
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
		logger.Info("seeded", zap.String("file", file))
	}
	return nil
}
