package ledger

import (
	"context"
	"fmt"
	"sort"
)

// applyBalances materializa o efeito da transação nos saldos derivados
func applyBalances(ctx context.Context, tx Tx, t *Transaction) error {
	deltas := Deltas(t.Kind, t.From, t.To, t.AmountCents)

	// ordem estável de escrita (evita deadlock entre linhas no Postgres)
	accs := make([]AccountID, 0, len(deltas))
	for acc := range deltas {
		accs = append(accs, acc)
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i] < accs[j] })

	for _, acc := range accs {
		if deltas[acc] == 0 {
			continue
		}
		if err := tx.AddBalance(ctx, acc, deltas[acc]); err != nil {
			return fmt.Errorf("apply balance %s: %w", acc, err)
		}
	}
	return nil
}

// Replayer reconstrói saldos a partir do log, transação a transação
type Replayer struct {
	balances map[AccountID]int64
}

func NewReplayer() *Replayer {
	return &Replayer{balances: make(map[AccountID]int64)}
}

// Apply soma o efeito de t aos saldos reconstruídos
func (r *Replayer) Apply(t *Transaction) {
	for acc, d := range Deltas(t.Kind, t.From, t.To, t.AmountCents) {
		r.balances[acc] += d
	}
}

// Balances devolve uma cópia dos saldos, sem contas zeradas
func (r *Replayer) Balances() map[AccountID]int64 {
	out := make(map[AccountID]int64, len(r.balances))
	for acc, b := range r.balances {
		if b != 0 {
			out[acc] = b
		}
	}
	return out
}

// Replay reconstrói os saldos de uma sequência completa de transações
func Replay(txs []Transaction) map[AccountID]int64 {
	r := NewReplayer()
	for i := range txs {
		r.Apply(&txs[i])
	}
	return r.Balances()
}
