// Package migrations carries the schema scripts for each supported driver.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"soil-platform/pkg/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var scripts embed.FS

const (
	Up   = "up"
	Down = "down"
)

// Files lists the scripts for a driver and direction in the order they must run
func Files(driver, direction string) ([]string, error) {
	if direction != Up && direction != Down {
		return nil, fmt.Errorf("invalid migration direction %q", direction)
	}

	dir := driver
	if dir == "" {
		dir = database.DriverPostgres
	}

	entries, err := fs.ReadDir(scripts, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %q: %w", driver, err)
	}

	suffix := "." + direction + ".sql"
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			files = append(files, dir+"/"+e.Name())
		}
	}

	sort.Strings(files)
	if direction == Down {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

// Read returns the contents of a script listed by Files
func Read(name string) (string, error) {
	content, err := scripts.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read migration file: %w", err)
	}
	return string(content), nil
}

// Apply runs every script for the connection's driver in the given direction
func Apply(ctx context.Context, db *database.DB, direction string) error {
	files, err := Files(db.DriverName(), direction)
	if err != nil {
		return err
	}

	for _, name := range files {
		content, err := Read(name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, "migration", content); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}

	return nil
}
