// Command migrate applies migrations/*.sql to the auction database in
// filename order, recording each applied file in schema_migrations.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type settings struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Dir         string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		fatal("config load failed", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("db connect failed", err)
	}
	defer pool.Close()

	if err := ensureSchemaTable(ctx, pool); err != nil {
		fatal("ensure schema table failed", err)
	}

	files, err := listSQLFiles(cfg.Dir)
	if err != nil {
		fatal("list migrations failed", err)
	}

	applied := 0
	for _, file := range files {
		done, err := isApplied(ctx, pool, file)
		if err != nil {
			fatal("check migration failed", err, "file", file)
		}
		if done {
			continue
		}
		if err := applyMigration(ctx, pool, file); err != nil {
			fatal("apply migration failed", err, "file", file)
		}
		slog.Info("applied migration", "file", file)
		applied++
	}
	slog.Info("migrations complete", "applied", applied, "total", len(files))
}

func fatal(msg string, err error, args ...any) {
	slog.Error(msg, append(args, "err", err)...)
	os.Exit(1)
}

func ensureSchemaTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`)
	return err
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	for i, name := range files {
		files[i] = filepath.Join(dir, name)
	}
	return files, nil
}

func isApplied(ctx context.Context, pool *pgxpool.Pool, file string) (bool, error) {
	var exists bool
	row := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, filepath.Base(file))
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// applyMigration runs the file and records it in one transaction.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if sql := strings.TrimSpace(string(data)); sql != "" {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(file))
		return err
	})
}
