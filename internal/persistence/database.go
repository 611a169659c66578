package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverNameConstant               = "sqlite"
	inMemoryDataSourceConstant             = ":memory:"
	busyTimeoutPragmaConstant              = "PRAGMA busy_timeout = 5000"
	databaseDirectoryPermissionsConstant   = 0o755
	databaseDirectoryErrorTemplateConstant = "unable to create database directory %s: %w"
	databaseOpenErrorTemplateConstant      = "unable to open database %s: %w"
	databasePragmaErrorTemplateConstant    = "unable to configure database %s: %w"
)

// OpenSQLite opens the database at path, creating parent directories when needed.
// An empty path or ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	dataSource := strings.TrimSpace(path)
	if len(dataSource) == 0 {
		dataSource = inMemoryDataSourceConstant
	}
	if dataSource != inMemoryDataSourceConstant {
		directory := filepath.Dir(dataSource)
		if mkdirError := os.MkdirAll(directory, databaseDirectoryPermissionsConstant); mkdirError != nil {
			return nil, fmt.Errorf(databaseDirectoryErrorTemplateConstant, directory, mkdirError)
		}
	}

	database, openError := sql.Open(sqliteDriverNameConstant, dataSource)
	if openError != nil {
		return nil, fmt.Errorf(databaseOpenErrorTemplateConstant, dataSource, openError)
	}
	// A single connection serializes writers and keeps an in-memory database alive.
	database.SetMaxOpenConns(1)
	if _, pragmaError := database.Exec(busyTimeoutPragmaConstant); pragmaError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(databasePragmaErrorTemplateConstant, dataSource, pragmaError)
	}
	return database, nil
}
