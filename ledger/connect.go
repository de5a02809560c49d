package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"syncledger-backend/database"
)

// Mode is the operating posture of the ledger, resolved once at Connect and
// never changed afterwards.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeLive
	ModeSimulated
	ModeReadOnly
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulated:
		return "simulated"
	case ModeReadOnly:
		return "read-only"
	default:
		return "disabled"
	}
}

// EnvLocal is the well-known local environment tag. It forces live mode
// with a deferred credential: the signer identity is provisioned by the
// backend on the first mutating call instead of being read from config.
const EnvLocal = "local"

// Config is the connection strategy's input, normally read from the
// environment via ConfigFromEnv.
type Config struct {
	Enabled       bool
	Endpoint      string // postgres DSN of the live backend
	SigningKey    string // 32-byte hex credential, may be empty (read-only)
	StoreHandle   string // table prefix of the deployed record store
	Simulate      bool
	AllowFallback bool
	EnvTag        string
}

func ConfigFromEnv() Config {
	return Config{
		Enabled:       envBool("LEDGER_ENABLED", true),
		Endpoint:      os.Getenv("LEDGER_ENDPOINT"),
		SigningKey:    os.Getenv("LEDGER_SIGNING_KEY"),
		StoreHandle:   envDefault("LEDGER_STORE", "sync_ledger"),
		Simulate:      envBool("LEDGER_SIMULATE", false),
		AllowFallback: envBool("LEDGER_ALLOW_FALLBACK", false),
		EnvTag:        os.Getenv("LEDGER_ENV"),
	}
}

// Ledger is the approval store handed to the HTTP layer. It owns exactly
// one backend, gates mutations by mode, and implements the single
// documented automatic retry (insufficient funds on insert, local
// environment only).
type Ledger struct {
	mode    Mode
	backend Backend
	live    *LiveBackend // set in live/read-only mode, for signer rotation
	log     *slog.Logger
}

// Connect resolves the operating mode once and returns the ledger.
//
// Resolution order: disabled flag, forced-live local environment, explicit
// simulate flag, then live. A live initialization failure is fatal unless
// fallback is explicitly allowed, in which case the ledger drops to the
// simulated in-memory store with a prominent warning. The system never
// silently simulates when the caller asked for live.
func Connect(cfg Config, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}

	if !cfg.Enabled {
		log.Warn("ledger subsystem disabled by configuration")
		return &Ledger{mode: ModeDisabled, log: log}, nil
	}

	if cfg.EnvTag == EnvLocal {
		led, err := connectLive(cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("ledger connected", "mode", led.mode.String(), "env", EnvLocal)
		return led, nil
	}

	if cfg.Simulate {
		log.Info("ledger running in simulated mode (explicit)")
		return &Ledger{mode: ModeSimulated, backend: NewMemoryBackend(), log: log}, nil
	}

	led, err := connectLive(cfg, log)
	if err != nil {
		if cfg.AllowFallback {
			log.Warn("LIVE LEDGER UNAVAILABLE - falling back to simulated in-memory store, records will not persist",
				"error", err)
			return &Ledger{mode: ModeSimulated, backend: NewMemoryBackend(), log: log}, nil
		}
		return nil, err
	}
	log.Info("ledger connected", "mode", led.mode.String())
	return led, nil
}

func connectLive(cfg Config, log *slog.Logger) (*Ledger, error) {
	mode := ModeLive
	deferred := cfg.EnvTag == EnvLocal

	var key []byte
	if strings.TrimSpace(cfg.SigningKey) == "" {
		if !deferred {
			mode = ModeReadOnly
			log.Warn("no signing credential configured, ledger mutations disabled")
		}
	} else {
		k, err := ParseSigningKey(cfg.SigningKey)
		if err != nil {
			return nil, err
		}
		key = k
	}

	db, err := database.Open(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateLedger(db, cfg.StoreHandle); err != nil {
		return nil, err
	}

	live := NewLiveBackend(db, cfg.StoreHandle, key, deferred, log)
	return &Ledger{mode: mode, backend: live, live: live, log: log}, nil
}

// NewSimulated returns a ledger backed by a fresh in-memory store. Tests
// and the HTTP layer's own tests use it directly.
func NewSimulated(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{mode: ModeSimulated, backend: NewMemoryBackend(), log: log}
}

// ParseSigningKey decodes the ledger signing credential. The expected
// format is 64 hex characters (32 bytes), with an optional 0x prefix.
func ParseSigningKey(s string) ([]byte, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if len(v) != 64 {
		return nil, fmt.Errorf("signing key must be 64 hex characters (32 bytes), optionally 0x-prefixed; got %d characters", len(v))
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("signing key must be 64 hex characters (32 bytes), optionally 0x-prefixed: %v", err)
	}
	return key, nil
}

func (l *Ledger) Mode() Mode { return l.mode }

// Insert validates the input, assigns timestamp and active flag, derives a
// missing approval id, and appends the record. The stored record is
// returned alongside the receipt so callers learn a derived id without a
// second lookup. One automatic retry exists: when the backend reports
// insufficient funds and identities are auto-provisioned (local
// environment), the signer is rotated and the insert attempted once more.
// A flat retry, never recursive.
func (l *Ledger) Insert(ctx context.Context, in RecordInput) (Record, Receipt, error) {
	if l.mode == ModeDisabled {
		return Record{}, Receipt{}, ErrDisabled
	}
	if l.mode == ModeReadOnly {
		return Record{}, Receipt{}, ErrReadOnlyMode
	}
	if err := in.Validate(); err != nil {
		return Record{}, Receipt{}, err
	}

	now := time.Now().Unix()
	id := strings.TrimSpace(in.ApprovalID)
	if id == "" {
		id = DeriveApprovalID(in.RequestID, in.RequesterID, in.OwnerID, now)
	}
	rec := Record{
		ApprovalID:  id,
		RequestID:   strings.TrimSpace(in.RequestID),
		RequesterID: strings.TrimSpace(in.RequesterID),
		OwnerID:     strings.TrimSpace(in.OwnerID),
		RequestType: in.RequestType,
		LicenceKey:  strings.TrimSpace(in.LicenceKey),
		Timestamp:   now,
		IsActive:    true,
	}

	rcpt, err := l.backend.Insert(ctx, rec)
	if errors.Is(err, ErrInsufficientFunds) && l.live != nil {
		l.log.Warn("insert hit insufficient funds, rotating signer and retrying once", "approval_id", id)
		if rerr := l.live.RotateSigner(ctx); rerr == nil {
			rcpt, err = l.backend.Insert(ctx, rec)
		}
	}
	if err != nil {
		return Record{}, Receipt{}, err
	}
	return rec, rcpt, nil
}

func (l *Ledger) Get(ctx context.Context, approvalID string) (Record, error) {
	if l.mode == ModeDisabled {
		return Record{}, ErrDisabled
	}
	return l.backend.Get(ctx, approvalID)
}

func (l *Ledger) Deactivate(ctx context.Context, approvalID string) (Receipt, error) {
	if l.mode == ModeDisabled {
		return Receipt{}, ErrDisabled
	}
	if l.mode == ModeReadOnly {
		return Receipt{}, ErrReadOnlyMode
	}
	return l.backend.Deactivate(ctx, approvalID)
}

func (l *Ledger) Count(ctx context.Context) (int64, error) {
	if l.mode == ModeDisabled {
		return 0, ErrDisabled
	}
	return l.backend.Count(ctx)
}

func (l *Ledger) IDByIndex(ctx context.Context, i int64) (string, error) {
	if l.mode == ModeDisabled {
		return "", ErrDisabled
	}
	return l.backend.IDByIndex(ctx, i)
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
