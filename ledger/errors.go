package ledger

import "errors"

// Sentinel errors returned by the store. The HTTP layer maps these to
// status codes in middlewares.ErrorHandler; nothing else should inspect
// error strings.
var (
	ErrValidation         = errors.New("invalid approval input")
	ErrDuplicateKey       = errors.New("approval id already recorded")
	ErrNotFound           = errors.New("approval not found")
	ErrAlreadyInactive    = errors.New("approval is already inactive")
	ErrOutOfRange         = errors.New("index out of range")
	ErrReadOnlyMode       = errors.New("ledger is read-only (no signing credential)")
	ErrInsufficientFunds  = errors.New("signer has insufficient funds")
	ErrBackendUnavailable = errors.New("ledger backend unavailable")
	ErrDisabled           = errors.New("ledger subsystem is disabled")
)
