package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/m-gruen/nexus/internal/migrations"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	driver := flag.String("driver", "sqlite3", "Database driver (sqlite3 or postgres)")
	dbPath := flag.String("db", "./nexus.db", "Path to the sqlite database file")
	dsn := flag.String("dsn", "", "Postgres connection string (required for -driver postgres)")
	flag.Parse()

	source := *dbPath
	if *driver == "postgres" {
		if *dsn == "" {
			log.Fatal("-dsn is required for the postgres driver")
		}
		source = *dsn
	}

	db, err := sql.Open(*driver, source)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Create migrations table if it doesn't exist
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		log.Fatalf("Failed to create migrations table: %v", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 1").Scan(&count)
	if err != nil {
		log.Fatalf("Failed to check migration status: %v", err)
	}

	if count > 0 {
		fmt.Println("Migration 1 already applied, skipping...")
		return
	}

	fmt.Println("Applying migration 1: initial schema")

	schema, err := migrations.GetInitialSchema(*driver)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (1)"); err != nil {
		log.Fatalf("Failed to record migration: %v", err)
	}

	fmt.Println("Migration 1 applied successfully")
}
