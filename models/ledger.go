package models

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerRecord is the durable row behind the live ledger backend. Seq is a
// bigserial and doubles as the receipt's block number: insertion order is
// the order of the ledger, rows are never deleted or reordered. Raw keeps
// the canonical JSON encoding of the record; receipt hashes are computed
// over it.
type LedgerRecord struct {
	Seq         int64          `json:"seq" gorm:"primaryKey;autoIncrement"`
	ApprovalID  string         `json:"approval_id" gorm:"size:64;uniqueIndex;not null"`
	RequestID   string         `json:"request_id" gorm:"size:128;not null"`
	RequesterID string         `json:"requester_id" gorm:"size:128;not null"`
	OwnerID     string         `json:"owner_id" gorm:"size:128;not null"`
	RequestType string         `json:"request_type" gorm:"size:32;not null"`
	LicenceKey  string         `json:"licence_key" gorm:"size:255"`
	Timestamp   int64          `json:"timestamp" gorm:"not null;index"`
	IsActive    bool           `json:"is_active" gorm:"not null"`
	Raw         datatypes.JSON `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SignerIdentity is a provisioned signing identity with a write quota.
// Every mutating ledger call spends one write; a depleted identity surfaces
// as an insufficient-funds error. The key itself is never stored, only its
// hash.
type SignerIdentity struct {
	ID              string    `json:"id" gorm:"primaryKey;size:64"`
	KeyHash         string    `json:"-" gorm:"size:64;uniqueIndex;not null"`
	RemainingWrites int64     `json:"remaining_writes" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
}
