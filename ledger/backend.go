package ledger

import "context"

// Backend is the storage behind the ledger. Exactly one implementation is
// selected at construction time (Connect); call sites never branch on mode.
//
// Insert receives a fully-populated Record (timestamp and active flag
// already assigned) and must reject a duplicate ApprovalID with
// ErrDuplicateKey. IDByIndex exists because not every backend has a native
// "list everything" call; full enumeration is count + index walk.
type Backend interface {
	Insert(ctx context.Context, rec Record) (Receipt, error)
	Get(ctx context.Context, approvalID string) (Record, error)
	Deactivate(ctx context.Context, approvalID string) (Receipt, error)
	Count(ctx context.Context) (int64, error)
	IDByIndex(ctx context.Context, i int64) (string, error)
}
