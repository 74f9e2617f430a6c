package events

import (
	"encoding/json"
	"time"
)

// Evento publicado no tópico "ledger_transactions" após cada commit
type TransactionAppended struct {
	Sequence     int64           `json:"sequence_no"`
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previous_hash"`
	From         *string         `json:"from_account,omitempty"`
	To           *string         `json:"to_account,omitempty"`
	AmountCents  int64           `json:"amount_cents"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}
