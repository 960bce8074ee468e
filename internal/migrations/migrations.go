package migrations

import (
	"embed"
	"fmt"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// GetInitialSchema returns the initial database schema for the given
// sql driver name ("sqlite3" or "postgres").
func GetInitialSchema(driver string) (string, error) {
	var name string
	switch driver {
	case "sqlite3":
		name = "sql/001_initial_sqlite.sql"
	case "postgres":
		name = "sql/001_initial_postgres.sql"
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}

	content, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded schema %s: %w", name, err)
	}
	return string(content), nil
}
