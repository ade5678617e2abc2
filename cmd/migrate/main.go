package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"agencysite/backend/internal/config"
	"agencysite/backend/internal/logger"
	sqlstore "agencysite/backend/internal/storage/sql"
)

// main 执行投递归档数据库的表结构迁移。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDevelopment()

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Fatal("archive database is not configured",
			zap.String("hint", "set AGENCYSITE_DATABASE_TYPE and AGENCYSITE_DATABASE_DSN"))
	}

	archive, err := sqlstore.NewArchive(sqlstore.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("failed to connect to archive database", zap.Error(err))
	}
	defer archive.Close()

	if err := archive.Migrate(); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	log.Info("archive schema migrated",
		zap.String("type", cfg.Database.Type))
}
