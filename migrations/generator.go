// Package migrations writes the storage schema of a dialect out as SQL
// migration files, for deployments that manage schemas with a migration
// tool instead of Engine.Initialize.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getpup/commitstore/sqlstore"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_commit_store.sql", timestamp),
	}
}

// Generate writes the dialect's schema script as a migration file.
func Generate(dialect sqlstore.Dialect, config *Config) error {
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQL(dialect)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQL(dialect sqlstore.Dialect) string {
	return fmt.Sprintf(`-- Commit Store Schema Migration (%s)
-- Generated: %s
%s
`,
		dialect.Name(),
		time.Now().Format(time.RFC3339),
		dialect.Statements().InitializeStorage,
	)
}
