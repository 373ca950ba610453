package storage

import (
	"fmt"

	"ACRScanner/internal/config"
	"ACRScanner/internal/ports"
)

// Store is a RecordStore that owns resources.
type Store interface {
	ports.RecordStore
	Close() error
}

// Open builds the record store selected by driver, rooted at the run directory.
func Open(driver, dir string) (Store, error) {
	switch driver {
	case "", config.DriverCSV:
		return NewCSVStore(dir), nil
	case config.DriverSQLite:
		return OpenSQLite(dir)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
