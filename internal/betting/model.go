package betting

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Opposite retorna o lado contrário
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) Valid() bool { return s == SideA || s == SideB }

// Winner é o resultado de um evento
type Winner string

const (
	WinnerA    Winner = "A"
	WinnerB    Winner = "B"
	WinnerDraw Winner = "DRAW"
)

func (w Winner) Valid() bool { return w == WinnerA || w == WinnerB || w == WinnerDraw }

type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetMatched   BetStatus = "matched"
	BetWon       BetStatus = "won"
	BetLost      BetStatus = "lost"
	BetRefunded  BetStatus = "refunded"
	BetCancelled BetStatus = "cancelled"
)

// Terminal informa se a aposta não aceita mais transições
func (s BetStatus) Terminal() bool {
	switch s {
	case BetWon, BetLost, BetRefunded, BetCancelled:
		return true
	}
	return false
}

// Bet é uma aposta de valor fixo em um dos lados de um evento
type Bet struct {
	ID                string     `json:"id"`
	EventID           string     `json:"eventId"`
	UserID            string     `json:"userId"`
	Side              Side       `json:"side"`
	AmountCents       int64      `json:"amount_cents"`
	Status            BetStatus  `json:"status"`
	PlacedAt          time.Time  `json:"placedAt"`
	PlaceSeq          int64      `json:"placeSeq"` // sequence_no do bet_place; desempate do FIFO
	MatchedAt         *time.Time `json:"matchedAt,omitempty"`
	CounterpartyBetID *string    `json:"counterpartyBetId,omitempty"`
	SettledAt         *time.Time `json:"settledAt,omitempty"`
}

// Event é um evento binário (lado A contra lado B)
type Event struct {
	ID         string          `json:"id"`
	SideALabel string          `json:"sideALabel"`
	SideBLabel string          `json:"sideBLabel"`
	FeePercent decimal.Decimal `json:"feePercent"`
	Status     EventStatus     `json:"status"`
	Winner     *Winner         `json:"winner,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Limits delimita o valor aceito por aposta, em centavos
type Limits struct {
	MinCents int64
	MaxCents int64
}
