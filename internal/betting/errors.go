package betting

import "errors"

var (
	ErrEventNotAcceptingBets = errors.New("event not accepting bets")
	ErrAmountOutOfRange      = errors.New("amount out of range")
	ErrInvalidSide           = errors.New("invalid side")
	ErrInvalidWinner         = errors.New("invalid winner")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrInvalidTransition     = errors.New("invalid event transition")
	ErrWinnerConflict        = errors.New("event already completed with a different winner")
	ErrEventNotFound         = errors.New("event not found")
	ErrBetNotFound           = errors.New("bet not found")
	ErrNotBetOwner           = errors.New("bet belongs to another user")
	ErrBetTerminal           = errors.New("bet already in a terminal state")
)
