package database

import (
	"fmt"

	"syncledger-backend/models"

	"gorm.io/gorm"
)

// MigrateLedger applies (idempotent) schema migrations for one deployed
// store handle. The handle prefixes both tables, so several stores can
// share a database. It performs:
// - AutoMigrate (tables/columns)
// - Append-only guard: revoke nothing, but forbid negative quotas via CHECK
// - Supporting indexes
func MigrateLedger(db *gorm.DB, store string) error {
	if store == "" {
		return fmt.Errorf("store handle is empty")
	}

	records := store + "_records"
	signers := store + "_signers"

	return db.Transaction(func(tx *gorm.DB) error {
		// --- AutoMigrate tables/columns/index tags (non-destructive) ---
		if err := tx.Table(records).AutoMigrate(&models.LedgerRecord{}); err != nil {
			return fmt.Errorf("record table automigrate failed: %w", err)
		}
		if err := tx.Table(signers).AutoMigrate(&models.SignerIdentity{}); err != nil {
			return fmt.Errorf("signer table automigrate failed: %w", err)
		}

		// --- Supporting indexes (idempotent) ---
		indexes := []string{
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_approval_id ON %s (approval_id)`, records, records),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)`, records, records),
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		// --- CHECK constraint: a signer's write quota never goes negative ---
		check := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = '%s'::regclass
		  AND conname  = 'chk_%s_remaining_writes_nonneg'
	) THEN
		ALTER TABLE %s
		ADD CONSTRAINT chk_%s_remaining_writes_nonneg
		CHECK (remaining_writes >= 0);
	END IF;
END $$;`, signers, signers, signers, signers)
		if err := tx.Exec(check).Error; err != nil {
			return fmt.Errorf("check constraint migration failed: %w", err)
		}

		return nil
	})
}
