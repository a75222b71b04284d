package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/ignite/sequence-engine/internal/config"
	_ "github.com/lib/pq"
)

const trackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	dir := flag.String("dir", "migrations", "directory holding *.sql files")
	listOnly := flag.Bool("list", false, "list engine tables and applied migrations, then exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if *listOnly {
		if err := list(ctx, db); err != nil {
			log.Fatal(err)
		}
		return
	}

	applied, skipped, err := migrate(ctx, db, os.DirFS(*dir))
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Done: %d applied, %d already applied", applied, skipped)
}

// migrate applies every *.sql file in fsys, in name order, that is not yet
// recorded in schema_migrations. Each file runs in its own transaction
// together with its tracking row. It stops at the first failure.
func migrate(ctx context.Context, db *sql.DB, fsys fs.FS) (applied, skipped int, err error) {
	if _, err := db.ExecContext(ctx, trackingTable); err != nil {
		return 0, 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, 0, err
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0, 0, err
	}
	sort.Strings(files)

	for _, f := range files {
		if done[f] {
			skipped++
			continue
		}
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, skipped, fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		fmt.Printf("  %s ... ", f)
		if err := applyOne(ctx, db, f, string(data)); err != nil {
			fmt.Println("ERROR")
			return applied, skipped, fmt.Errorf("%s: %w", f, err)
		}
		fmt.Println("OK")
		applied++
	}
	return applied, skipped, nil
}

func applyOne(ctx context.Context, db *sql.DB, version, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func list(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename LIKE 'sequence%' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println(" ", t)
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Printf("Total: %d tables\n", n)

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	versions := make([]string, 0, len(done))
	for v := range done {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	for _, v := range versions {
		fmt.Println("  applied:", v)
	}
	return nil
}
