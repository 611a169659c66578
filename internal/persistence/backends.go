package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyemirov/autoflow/internal/automation"
	"github.com/tyemirov/autoflow/internal/capabilities"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

const (
	homeDirectoryPrefixConstant        = "~"
	unsupportedDriverTemplateConstant  = "unsupported storage driver %q (expected memory or sqlite)"
	homeDirectoryErrorTemplateConstant = "unable to resolve home directory for %s: %w"
)

// Configuration selects the storage backend.
type Configuration struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// Backends groups the stores used by the platform.
type Backends struct {
	Workflows    automation.WorkflowStore
	SharedMemory automation.SharedMemoryPersister
	Contexts     capabilities.ContextStore
	database     *sql.DB
}

// Close releases the underlying database, if any.
func (backends Backends) Close() error {
	if backends.database == nil {
		return nil
	}
	return backends.database.Close()
}

// OpenBackends constructs the stores for the configured driver. The memory driver keeps state for the
// lifetime of the process and has no shared memory persister.
func OpenBackends(configuration Configuration) (Backends, error) {
	driver := strings.ToLower(strings.TrimSpace(configuration.Driver))
	switch driver {
	case "", DriverMemory:
		return Backends{
			Workflows: automation.NewMemoryWorkflowStore(),
			Contexts:  capabilities.NewMemoryContextStore(),
		}, nil
	case DriverSQLite:
	default:
		return Backends{}, fmt.Errorf(unsupportedDriverTemplateConstant, configuration.Driver)
	}

	databasePath, pathError := expandHomeDirectory(configuration.Path)
	if pathError != nil {
		return Backends{}, pathError
	}
	database, openError := OpenSQLite(databasePath)
	if openError != nil {
		return Backends{}, openError
	}

	workflowStore, workflowError := NewSQLiteWorkflowStore(database)
	if workflowError != nil {
		_ = database.Close()
		return Backends{}, workflowError
	}
	memoryStore, memoryError := NewSQLiteSharedMemoryStore(database)
	if memoryError != nil {
		_ = database.Close()
		return Backends{}, memoryError
	}
	contextStore, contextError := NewSQLiteContextStore(database)
	if contextError != nil {
		_ = database.Close()
		return Backends{}, contextError
	}

	return Backends{
		Workflows:    workflowStore,
		SharedMemory: memoryStore,
		Contexts:     contextStore,
		database:     database,
	}, nil
}

func expandHomeDirectory(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, homeDirectoryPrefixConstant) {
		return trimmed, nil
	}
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return "", fmt.Errorf(homeDirectoryErrorTemplateConstant, trimmed, homeError)
	}
	return filepath.Join(homeDirectory, strings.TrimPrefix(trimmed, homeDirectoryPrefixConstant)), nil
}
