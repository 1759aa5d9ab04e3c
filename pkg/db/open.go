package db

import (
	"fmt"
)

// Store drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns the Service for the configured driver.
func Open(driver, path string) (Service, error) {
	switch driver {
	case DriverSQLite, "":
		sqlDB, err := New(path)
		if err != nil {
			return nil, err
		}

		return sqlDB, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
