package dto

import "github.com/radieske/p2p-bet-ledger/internal/ledger"

type BalanceResponse struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balance_cents"`
}

// TransactionResponse devolve a entrada gravada e o saldo resultante do usuário
type TransactionResponse struct {
	Transaction  *ledger.Transaction `json:"transaction"`
	BalanceCents *int64              `json:"balance_cents,omitempty"`
}

type HistoryResponse struct {
	AccountID    string               `json:"accountId"`
	Transactions []ledger.Transaction `json:"transactions"`
}

type LedgerStatusResponse struct {
	Halted     bool   `json:"halted"`
	HaltReason string `json:"haltReason,omitempty"`
}
