package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Request types recognized by the ledger. The list is extensible; anything
// else is rejected before the backend is touched.
const (
	RequestTypeGCP   = "gcp"
	RequestTypeExcel = "excel"
)

var requestTypes = map[string]bool{
	RequestTypeGCP:   true,
	RequestTypeExcel: true,
}

// Record is a single sync approval as stored in the ledger. Everything
// except IsActive is immutable after insert; IsActive only ever flips
// from true to false.
type Record struct {
	ApprovalID  string `json:"approval_id"`
	RequestID   string `json:"request_id"`
	RequesterID string `json:"requester_id"`
	OwnerID     string `json:"owner_id"`
	RequestType string `json:"request_type"`
	LicenceKey  string `json:"licence_key"`
	Timestamp   int64  `json:"timestamp"`
	IsActive    bool   `json:"is_active"`
}

// RecordInput is what callers hand to Insert. ApprovalID may be empty, in
// which case the store derives one. Timestamp and IsActive are always
// assigned by the store, never by the caller.
type RecordInput struct {
	ApprovalID  string
	RequestID   string
	RequesterID string
	OwnerID     string
	RequestType string
	LicenceKey  string
}

// Receipt is the backend's acknowledgment of a mutating operation. It is
// surfaced to callers but never stored in the ledger itself.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
	Recorded    bool   `json:"recorded"`
}

// Validate checks a RecordInput before it reaches any backend.
func (in RecordInput) Validate() error {
	if strings.TrimSpace(in.RequestID) == "" {
		return fmt.Errorf("%w: request_id is required", ErrValidation)
	}
	if strings.TrimSpace(in.RequesterID) == "" {
		return fmt.Errorf("%w: requester_id is required", ErrValidation)
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrValidation)
	}
	if !requestTypes[in.RequestType] {
		return fmt.Errorf("%w: unknown request_type %q", ErrValidation, in.RequestType)
	}
	return nil
}

// DeriveApprovalID builds a deterministic id for an approval that arrived
// without one: a one-way hash over the identifying tuple, truncated to 32
// hex characters.
func DeriveApprovalID(requestID, requesterID, ownerID string, unix int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", requestID, requesterID, ownerID, unix)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
