package ledger

import (
	"encoding/json"
	"strings"
	"time"
)

// AccountID identifica uma conta com saldo no ledger
type AccountID string

const (
	// FeeAccount acumula as taxas cobradas sobre os pagamentos
	FeeAccount AccountID = "platform:fees"

	escrowPrefix = "escrow:"
)

// EscrowAccount retorna a conta que custodia os stakes de um evento
func EscrowAccount(eventID string) AccountID { return AccountID(escrowPrefix + eventID) }

// IsSystem informa se a conta pertence à plataforma (escrow ou taxas)
func (a AccountID) IsSystem() bool { return strings.Contains(string(a), ":") }

// Ptr é um atalho para preencher From/To
func (a AccountID) Ptr() *AccountID { return &a }

// Transaction é uma entrada imutável do ledger
type Transaction struct {
	Sequence     int64           `json:"sequence_no"`
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previous_hash"`
	From         *AccountID      `json:"from_account,omitempty"`
	To           *AccountID      `json:"to_account,omitempty"`
	AmountCents  int64           `json:"amount_cents"`
	Kind         Kind            `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Fields extrai os campos que entram no hash
func (t *Transaction) Fields() Fields {
	return Fields{
		From:        t.From,
		To:          t.To,
		AmountCents: t.AmountCents,
		Kind:        t.Kind,
		CreatedAt:   t.CreatedAt,
		Payload:     t.Payload,
	}
}

// Touches informa se a transação movimenta (ou referencia) a conta
func (t *Transaction) Touches(acc AccountID) bool {
	return (t.From != nil && *t.From == acc) || (t.To != nil && *t.To == acc)
}

// Entry é o pedido de gravação recebido por Ledger.Append
type Entry struct {
	From        *AccountID
	To          *AccountID
	AmountCents int64
	Kind        Kind
	Payload     any // serializado em JSON; nil vira {}
}
