package database

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/m-gruen/nexus/internal/migrations"
	"github.com/m-gruen/nexus/internal/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the server-side mailbox plus the read-only identity and
// relationship directory the permission gate consumes. It runs on either
// sqlite (embedded, default) or postgres, selected by config; the
// underlying store's own concurrency control keeps the id sequence
// strictly increasing, so no in-process locking is needed.
type Store struct {
	db        *sql.DB
	driver    string
	encryptor *encryptor
}

func New(cfg models.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	var dsn string
	switch driver {
	case "sqlite3":
		if len(cfg.Path) == 0 || cfg.Path[0] == '\x00' {
			return nil, fmt.Errorf("invalid database path")
		}
		if strings.Contains(cfg.Path, "..") {
			return nil, fmt.Errorf("invalid database path: must not contain '..'")
		}
		file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
		dsn = cfg.Path
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("missing postgres dsn")
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema(driver)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Store{db: db, driver: driver, encryptor: encryptor}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres. Queries in this
// package are written in sqlite form.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
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
