package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"syncledger-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultWriteQuota is the number of mutating calls a freshly provisioned
// signer identity can make before it runs out of funds.
const DefaultWriteQuota = 100

// LiveBackend serves the ledger from postgres. The record table's bigserial
// sequence is the block number; the unique index on approval_id is the sole
// arbiter of duplicate inserts, no in-process lock is taken around writes.
//
// Mutations are signed: each write spends one unit of the resolved signer
// identity's quota, and the receipt hash is an HMAC over the canonical
// record bytes with the signer's key. The quota is spent even when the
// write itself is rejected, like gas on a failed transaction.
type LiveBackend struct {
	db    *gorm.DB
	store string
	log   *slog.Logger

	mu       sync.Mutex
	signer   *models.SignerIdentity
	signKey  []byte
	deferred bool // local environment: identities auto-provisioned by the backend
}

// NewLiveBackend wires a live backend over an open gorm handle. signKey may
// be nil when deferred is true (local environment resolves the identity
// lazily on first mutating call) or when the caller runs read-only.
func NewLiveBackend(db *gorm.DB, store string, signKey []byte, deferred bool, log *slog.Logger) *LiveBackend {
	if log == nil {
		log = slog.Default()
	}
	return &LiveBackend{db: db, store: store, signKey: signKey, deferred: deferred, log: log}
}

func (b *LiveBackend) recordsTable() string { return b.store + "_records" }
func (b *LiveBackend) signersTable() string { return b.store + "_signers" }

func (b *LiveBackend) Insert(ctx context.Context, rec Record) (Receipt, error) {
	key, err := b.spendWrite(ctx)
	if err != nil {
		return Receipt{}, err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return Receipt{}, err
	}
	row := models.LedgerRecord{
		ApprovalID:  rec.ApprovalID,
		RequestID:   rec.RequestID,
		RequesterID: rec.RequesterID,
		OwnerID:     rec.OwnerID,
		RequestType: rec.RequestType,
		LicenceKey:  rec.LicenceKey,
		Timestamp:   rec.Timestamp,
		IsActive:    rec.IsActive,
		Raw:         datatypes.JSON(raw),
	}
	if err := b.db.WithContext(ctx).Table(b.recordsTable()).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return Receipt{}, ErrDuplicateKey
		}
		return Receipt{}, fmt.Errorf("%w: insert failed: %v", ErrBackendUnavailable, err)
	}

	return Receipt{
		TxHash:      signedTxHash(key, raw, row.Seq),
		BlockNumber: row.Seq,
		Recorded:    true,
	}, nil
}

func (b *LiveBackend) Get(ctx context.Context, approvalID string) (Record, error) {
	var row models.LedgerRecord
	err := b.db.WithContext(ctx).Table(b.recordsTable()).
		Where("approval_id = ?", approvalID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: get failed: %v", ErrBackendUnavailable, err)
	}
	return rowToRecord(row), nil
}

func (b *LiveBackend) Deactivate(ctx context.Context, approvalID string) (Receipt, error) {
	rec, err := b.Get(ctx, approvalID)
	if err != nil {
		return Receipt{}, err
	}
	if !rec.IsActive {
		return Receipt{}, ErrAlreadyInactive
	}

	key, err := b.spendWrite(ctx)
	if err != nil {
		return Receipt{}, err
	}

	// The guarded WHERE keeps concurrent deactivations honest: exactly one
	// caller flips the flag, later ones observe AlreadyInactive.
	res := b.db.WithContext(ctx).Table(b.recordsTable()).
		Where("approval_id = ? AND is_active = ?", approvalID, true).
		Update("is_active", false)
	if res.Error != nil {
		return Receipt{}, fmt.Errorf("%w: deactivate failed: %v", ErrBackendUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return Receipt{}, ErrAlreadyInactive
	}

	block, err := b.nextBlockNumber(ctx)
	if err != nil {
		return Receipt{}, err
	}
	raw, _ := json.Marshal(rec)
	return Receipt{
		TxHash:      signedTxHash(key, raw, block),
		BlockNumber: block,
		Recorded:    true,
	}, nil
}

func (b *LiveBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.WithContext(ctx).Table(b.recordsTable()).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: count failed: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}

func (b *LiveBackend) IDByIndex(ctx context.Context, i int64) (string, error) {
	if i < 0 {
		return "", ErrOutOfRange
	}
	var id string
	err := b.db.WithContext(ctx).Table(b.recordsTable()).
		Select("approval_id").Order("seq ASC").
		Offset(int(i)).Limit(1).Scan(&id).Error
	if err != nil {
		return "", fmt.Errorf("%w: id lookup failed: %v", ErrBackendUnavailable, err)
	}
	if id == "" {
		return "", ErrOutOfRange
	}
	return id, nil
}

// RotateSigner discards the current identity and provisions a fresh one.
// Only the local environment supports this; everywhere else the credential
// is fixed configuration and a depleted quota is surfaced to the caller.
func (b *LiveBackend) RotateSigner(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.deferred {
		return ErrInsufficientFunds
	}
	b.signer = nil
	b.signKey = nil
	_, _, err := b.resolveSignerLocked(ctx)
	return err
}

// spendWrite resolves the signer identity and consumes one write from its
// quota. RowsAffected 0 on the guarded decrement means the quota is gone.
func (b *LiveBackend) spendWrite(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	signer, key, err := b.resolveSignerLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res := b.db.WithContext(ctx).Table(b.signersTable()).
		Where("id = ? AND remaining_writes > 0", signer.ID).
		Update("remaining_writes", gorm.Expr("remaining_writes - 1"))
	if res.Error != nil {
		return nil, fmt.Errorf("%w: quota update failed: %v", ErrBackendUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientFunds
	}
	return key, nil
}

func (b *LiveBackend) resolveSignerLocked(ctx context.Context) (*models.SignerIdentity, []byte, error) {
	if b.signer != nil {
		return b.signer, b.signKey, nil
	}

	switch {
	case len(b.signKey) > 0:
		// Configured credential: register it on first use so the quota row
		// exists. Reconnecting with the same key reuses the same identity.
		keyHash := hashKey(b.signKey)
		var row models.SignerIdentity
		err := b.db.WithContext(ctx).Table(b.signersTable()).
			Where("key_hash = ?", keyHash).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.SignerIdentity{
				ID:              uuid.NewString(),
				KeyHash:         keyHash,
				RemainingWrites: DefaultWriteQuota,
			}
			err = b.db.WithContext(ctx).Table(b.signersTable()).Create(&row).Error
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: signer lookup failed: %v", ErrBackendUnavailable, err)
		}
		b.signer = &row
		return b.signer, b.signKey, nil

	case b.deferred:
		// Local environment: the backend provisions funded identities on
		// demand, the way a dev chain hands out unlocked accounts.
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, nil, err
		}
		row := models.SignerIdentity{
			ID:              uuid.NewString(),
			KeyHash:         hashKey(key),
			RemainingWrites: DefaultWriteQuota,
		}
		if err := b.db.WithContext(ctx).Table(b.signersTable()).Create(&row).Error; err != nil {
			return nil, nil, fmt.Errorf("%w: signer provisioning failed: %v", ErrBackendUnavailable, err)
		}
		b.log.Info("provisioned local signer identity", "signer_id", row.ID)
		b.signer = &row
		b.signKey = key
		return b.signer, b.signKey, nil

	default:
		return nil, nil, ErrReadOnlyMode
	}
}

// nextBlockNumber advances the record sequence without inserting a row, so
// deactivation receipts get their own monotonic block number. Gaps in the
// sequence are fine.
func (b *LiveBackend) nextBlockNumber(ctx context.Context) (int64, error) {
	var block int64
	err := b.db.WithContext(ctx).
		Raw("SELECT nextval(pg_get_serial_sequence(?, 'seq'))", b.recordsTable()).
		Scan(&block).Error
	if err != nil {
		return 0, fmt.Errorf("%w: sequence advance failed: %v", ErrBackendUnavailable, err)
	}
	return block, nil
}

func rowToRecord(row models.LedgerRecord) Record {
	return Record{
		ApprovalID:  row.ApprovalID,
		RequestID:   row.RequestID,
		RequesterID: row.RequesterID,
		OwnerID:     row.OwnerID,
		RequestType: row.RequestType,
		LicenceKey:  row.LicenceKey,
		Timestamp:   row.Timestamp,
		IsActive:    row.IsActive,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func hashKey(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// signedTxHash builds the receipt's transaction hash: an HMAC over the
// canonical record bytes, the block number and a fresh nonce, keyed with
// the signer credential.
func signedTxHash(key, raw []byte, block int64) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	fmt.Fprintf(mac, "|%d|%s|%d", block, uuid.NewString(), time.Now().UnixNano())
	return "0x" + hex.EncodeToString(mac.Sum(nil))
}
