package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	sqlite "modernc.org/sqlite"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Database struct {
	logger *slog.Logger
	driver Driver
	read   *sql.DB
	write  *sql.DB
	path   string
}

const sqliteInitSQL = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	PRAGMA trusted_schema = OFF;
`

var registerHook sync.Once

// New opens the database and applies pending migrations. For sqlite the
// source is a file path, for postgres a connection string.
func New(ctx context.Context, driver Driver, source string) (*Database, error) {
	d := &Database{
		logger: slog.Default().With(slog.String("module", "database")),
		driver: driver,
	}

	switch driver {
	case DriverSQLite:
		if err := d.openSQLite(source); err != nil {
			return nil, err
		}
	case DriverPostgres:
		if err := d.openPostgres(ctx, source); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := d.migrate(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return d, nil
}

func (d *Database) openSQLite(path string) error {
	registerHook.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, _ string) error {
			_, err := conn.ExecContext(context.Background(), sqliteInitSQL, nil)
			return err
		})
	})

	read, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("error when opening database (read): %w", err)
	}
	read.SetMaxOpenConns(10)
	read.SetConnMaxIdleTime(time.Minute)

	write, err := sql.Open("sqlite", path)
	if err != nil {
		read.Close()
		return fmt.Errorf("error when opening database (write): %w", err)
	}
	write.SetMaxOpenConns(1) // sqlite allows a single writer
	write.SetConnMaxIdleTime(time.Minute)

	d.read, d.write, d.path = read, write, path
	return nil
}

func (d *Database) openPostgres(ctx context.Context, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("empty postgres dsn")
	}

	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("error when opening database: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(time.Hour)
	pool.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	d.read, d.write = pool, pool
	return nil
}

func (d *Database) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

func (d *Database) Driver() Driver {
	return d.driver
}

func (d *Database) Close() {
	d.write.Close()
	if d.read != d.write {
		d.read.Close()
	}
}

// rebind rewrites ? placeholders into the $n form postgres expects.
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
