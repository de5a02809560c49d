package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is the simulated backend: an in-process ledger that never
// touches a network and does not survive a restart. It is used for local
// development, as the explicit fallback target, and in tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
	nextSeq int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (m *MemoryBackend) Insert(_ context.Context, rec Record) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ApprovalID]; exists {
		return Receipt{}, ErrDuplicateKey
	}
	m.nextSeq++
	m.order = append(m.order, rec.ApprovalID)
	m.records[rec.ApprovalID] = rec
	return Receipt{
		TxHash:      simulatedTxHash(rec.ApprovalID, m.nextSeq),
		BlockNumber: m.nextSeq,
		Recorded:    true,
	}, nil
}

func (m *MemoryBackend) Get(_ context.Context, approvalID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[approvalID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryBackend) Deactivate(_ context.Context, approvalID string) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[approvalID]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	if !rec.IsActive {
		return Receipt{}, ErrAlreadyInactive
	}
	rec.IsActive = false
	m.records[approvalID] = rec
	m.nextSeq++
	return Receipt{
		TxHash:      simulatedTxHash(approvalID, m.nextSeq),
		BlockNumber: m.nextSeq,
		Recorded:    true,
	}, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

func (m *MemoryBackend) IDByIndex(_ context.Context, i int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i < 0 || i >= int64(len(m.order)) {
		return "", ErrOutOfRange
	}
	return m.order[i], nil
}

// simulatedTxHash mimics a transaction hash: content-derived plus a random
// nonce so two runs never produce the same receipt.
func simulatedTxHash(approvalID string, seq int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", approvalID, seq, uuid.NewString())))
	return "0x" + hex.EncodeToString(sum[:])
}
