package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// ApplySchema brings the database up to date with the schema files in
// fsys. Every *.sql file at the root of fsys is a schema step; steps are
// applied in filename order and recorded in schema_migrations by
// filename, so a step runs exactly once across daemon restarts.
//
// Steps are additive-only: there is no rollback direction. Each step
// runs in its own transaction — a failing step is rolled back and stops
// the sequence, and re-running ApplySchema after fixing it resumes from
// that step.
func (db *DB) ApplySchema(ctx context.Context, fsys fs.FS) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	steps, err := schemaSteps(fsys)
	if err != nil {
		return err
	}

	done, err := db.appliedSteps(ctx)
	if err != nil {
		return err
	}

	for _, name := range steps {
		if done[name] {
			continue
		}
		if err := db.applyStep(ctx, fsys, name); err != nil {
			return fmt.Errorf("applying schema step %s: %w", name, err)
		}
	}

	return nil
}

// schemaSteps lists the *.sql files at the root of fsys in apply order.
func schemaSteps(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading schema files: %w", err)
	}

	var steps []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		steps = append(steps, e.Name())
	}
	sort.Strings(steps)
	return steps, nil
}

// appliedSteps returns the set of step filenames already recorded.
func (db *DB) appliedSteps(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema_migrations: %w", err)
	}
	return done, nil
}

// applyStep executes one schema file and records it, atomically.
func (db *DB) applyStep(ctx context.Context, fsys fs.FS, name string) error {
	script, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording step: %w", err)
	}

	return tx.Commit()
}
