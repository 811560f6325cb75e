package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"wisefido-anxiety/common/database"
	"wisefido-anxiety/common/logger"
	"wisefido-anxiety/internal/config"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <migration_file.sql>\n", os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	log, err := logger.NewLogger(cfg.Log.Level, "console", "apply-migration")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	migrationFile := os.Args[1]
	sqlContent, err := os.ReadFile(migrationFile)
	if err != nil {
		log.Fatal("Failed to read migration file", zap.String("file", migrationFile), zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// 按分号拆分语句逐条执行
	statements := splitStatements(string(sqlContent))
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatal("Failed to execute statement",
				zap.Int("statement", i+1),
				zap.String("sql", stmt[:min(100, len(stmt))]),
				zap.Error(err),
			)
		}
		log.Info("Statement executed", zap.Int("statement", i+1), zap.Int("total", len(statements)))
	}

	log.Info("Migration completed", zap.String("file", migrationFile), zap.String("database", cfg.Database.Database))
}

// splitStatements 去掉注释行后按分号拆分
func splitStatements(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var out []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
