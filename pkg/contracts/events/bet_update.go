package events

import "time"

// Evento publicado no tópico "bet_updates" sempre que uma aposta muda de estado
type BetUpdate struct {
	BetID             string    `json:"bet_id"`
	EventID           string    `json:"event_id"`
	UserID            string    `json:"user_id"`
	Side              string    `json:"side"`
	AmountCents       int64     `json:"amount_cents"`
	Status            string    `json:"status"` // pending | matched | won | lost | refunded | cancelled
	CounterpartyBetID string    `json:"counterparty_bet_id,omitempty"`
	TsUnixMs          int64     `json:"ts_unix_ms"`
	UpdatedAt         time.Time `json:"updated_at"`
}
