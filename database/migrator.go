package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
)

//go:embed migrations
var migrationsDir embed.FS

var migrationName = regexp.MustCompile(`^(\d+)[-_]`)

// migrate applies every migration file of the driver's directory whose
// version is above the current schema version, each in its own transaction.
// sqlite keeps the version in PRAGMA user_version, postgres in schema_version.
func (d *Database) migrate(ctx context.Context) error {
	currVer, err := d.schemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	dir := path.Join("migrations", string(d.driver))
	files, err := migrationsDir.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".sql" {
			sqlFiles = append(sqlFiles, f.Name())
		}
	}
	slices.Sort(sqlFiles)

	backedUp := false
	for _, name := range sqlFiles {
		matches := migrationName.FindStringSubmatch(name)
		if len(matches) < 2 {
			return fmt.Errorf("parse version from migration file: %s", name)
		}
		nextVer, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("convert migration version from file %s: %w", name, err)
		}
		if nextVer <= currVer {
			continue
		}

		// Nothing to back up on a fresh database.
		if !backedUp && currVer > 0 {
			backedUp = true
			if err := d.Backup(ctx); err != nil {
				return fmt.Errorf("backup database before migration: %w", err)
			}
		}

		d.logger.Debug("applying migration", slog.Int("version", nextVer))

		data, err := migrationsDir.ReadFile(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", name, err)
		}

		if err := d.applyMigration(ctx, nextVer, string(data)); err != nil {
			return err
		}
	}

	return nil
}

func (d *Database) applyMigration(ctx context.Context, version int, script string) error {
	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction for migration %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return rollback(tx, fmt.Errorf("apply migration %d: %w", version, err))
	}

	if err := d.setSchemaVersion(ctx, tx, version); err != nil {
		return rollback(tx, fmt.Errorf("update database version for migration %d: %w", version, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}

func rollback(tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	return cause
}

func (d *Database) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if d.driver == DriverSQLite {
		err := d.read.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
		return v, err
	}

	if _, err := d.write.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}
	err := d.read.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

func (d *Database) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if d.driver == DriverSQLite {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d;", version))
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, version)
	return err
}
