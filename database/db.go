package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to the postgres endpoint backing the live ledger and
// verifies the connection with a ping, so a bad endpoint fails here and
// not on the first request.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger endpoint is empty (set LEDGER_ENDPOINT to a postgres DSN)")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open ledger backend: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger backend handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping ledger backend: %w", err)
	}
	return db, nil
}
