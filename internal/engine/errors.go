package engine

import "errors"

var (
	ErrInvalidAccount    = errors.New("invalid account id")
	ErrLedgerStillBroken = errors.New("ledger verification still failing")
)
