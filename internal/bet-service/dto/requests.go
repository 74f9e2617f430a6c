package dto

import "github.com/shopspring/decimal"

type CreateEventRequest struct {
	SideALabel string          `json:"sideALabel"`
	SideBLabel string          `json:"sideBLabel"`
	FeePercent decimal.Decimal `json:"feePercent"` // aceita "10" ou 10
}

type AdvanceEventRequest struct {
	Status string `json:"status"`
}

type SettleEventRequest struct {
	Winner string `json:"winner"` // "A" | "B" | "DRAW"
}

type PlaceBetRequest struct {
	EventID     string `json:"eventId"`
	UserID      string `json:"userId"`
	Side        string `json:"side"`
	AmountCents int64  `json:"amount_cents"`
}

type CancelBetRequest struct {
	UserID string `json:"userId"`
}
