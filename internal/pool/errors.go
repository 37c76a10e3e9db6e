package pool

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by what the caller has to change before
// resubmitting.
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindPaused        ErrorKind = "paused"
	KindValidation    ErrorKind = "validation"
	KindCapacity      ErrorKind = "capacity"
	KindIntegrity     ErrorKind = "integrity"
	KindArithmetic    ErrorKind = "arithmetic"
	KindLiquidity     ErrorKind = "liquidity"
	KindState         ErrorKind = "state"
)

// Error is a rejected transition. Every Error aborts the enclosing
// transition with no state change.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrProtocolPaused        = newError(KindPaused, "PROTOCOL_PAUSED", "protocol is paused")
	ErrUnauthorizedAdmin     = newError(KindAuthorization, "UNAUTHORIZED_ADMIN", "unauthorized: caller is not admin")
	ErrUnauthorizedRelayer   = newError(KindAuthorization, "UNAUTHORIZED_RELAYER", "unauthorized: caller is not relayer")
	ErrTreeFull              = newError(KindCapacity, "TREE_FULL", "merkle tree is full")
	ErrInvalidCommitment     = newError(KindValidation, "INVALID_COMMITMENT", "invalid commitment: must be non-zero")
	ErrNullifierAlreadySpent = newError(KindIntegrity, "NULLIFIER_ALREADY_SPENT", "nullifier already spent (double-spend attempt)")
	ErrInvalidStateRoot      = newError(KindIntegrity, "INVALID_STATE_ROOT", "state root not found in root history")
	ErrInvalidAmount         = newError(KindValidation, "INVALID_AMOUNT", "invalid amount: must be greater than zero")
	ErrLeafIndexMismatch     = newError(KindValidation, "LEAF_INDEX_MISMATCH", "leaf index does not match next index")
	ErrInsufficientBalance   = newError(KindLiquidity, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrInvalidFeeConfig      = newError(KindValidation, "INVALID_FEE_CONFIG", "invalid fee configuration")
	ErrOverflow              = newError(KindArithmetic, "OVERFLOW", "arithmetic overflow")
	ErrNotInitialized        = newError(KindState, "NOT_INITIALIZED", "pool is not initialized")
	ErrAlreadyInitialized    = newError(KindState, "ALREADY_INITIALIZED", "pool is already initialized")
	ErrNotFound              = newError(KindState, "NOT_FOUND", "record not found")
)

// AsError returns the pool error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ErrorCode returns the stable code for err, "INTERNAL" for store faults.
func ErrorCode(err error) string {
	if pe, ok := AsError(err); ok {
		return pe.Code
	}
	return "INTERNAL"
}

func storeError(op string, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
