package dto

import "github.com/radieske/p2p-bet-ledger/internal/betting"

type EventBetsResponse struct {
	EventID string        `json:"eventId"`
	Bets    []betting.Bet `json:"bets"`
}

type CancelBetResponse struct {
	Cancelled []*betting.Bet `json:"cancelled"`
}
