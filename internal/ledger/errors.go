package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidEntry      = errors.New("invalid ledger entry")
	ErrLedgerHalted      = errors.New("ledger halted: integrity violation pending remediation")
)
