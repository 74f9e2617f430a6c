package engine

import (
	"context"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

// recorder envolve a Tx de escrita e anota o que foi gravado,
// para os efeitos pós-commit (cache, Kafka, métricas)
type recorder struct {
	store.Tx

	txns     []ledger.Transaction
	touched  map[ledger.AccountID]struct{}
	bets     map[string]betting.Bet
	betOrder []string
}

func newRecorder(tx store.Tx) *recorder {
	return &recorder{
		Tx:      tx,
		touched: make(map[ledger.AccountID]struct{}),
		bets:    make(map[string]betting.Bet),
	}
}

func (r *recorder) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	if err := r.Tx.InsertTransaction(ctx, t); err != nil {
		return err
	}
	r.txns = append(r.txns, *t)
	return nil
}

func (r *recorder) AddBalance(ctx context.Context, acc ledger.AccountID, delta int64) error {
	if err := r.Tx.AddBalance(ctx, acc, delta); err != nil {
		return err
	}
	r.touched[acc] = struct{}{}
	return nil
}

func (r *recorder) InsertBet(ctx context.Context, b *betting.Bet) error {
	if err := r.Tx.InsertBet(ctx, b); err != nil {
		return err
	}
	r.bet(b)
	return nil
}

func (r *recorder) UpdateBet(ctx context.Context, b *betting.Bet) error {
	if err := r.Tx.UpdateBet(ctx, b); err != nil {
		return err
	}
	r.bet(b)
	return nil
}

func (r *recorder) bet(b *betting.Bet) {
	if _, seen := r.bets[b.ID]; !seen {
		r.betOrder = append(r.betOrder, b.ID)
	}
	r.bets[b.ID] = *b
}

// balances lê, ainda dentro da Tx, o valor final das contas tocadas
func (r *recorder) balances(ctx context.Context) (map[ledger.AccountID]int64, error) {
	out := make(map[ledger.AccountID]int64, len(r.touched))
	for acc := range r.touched {
		b, err := r.Tx.Balance(ctx, acc)
		if err != nil {
			return nil, err
		}
		out[acc] = b
	}
	return out, nil
}

// betUpdates devolve o último estado de cada aposta, na ordem em que foram tocadas
func (r *recorder) betUpdates() []betting.Bet {
	out := make([]betting.Bet, 0, len(r.betOrder))
	for _, id := range r.betOrder {
		out = append(out, r.bets[id])
	}
	return out
}

func (r *recorder) headSeq() int64 {
	if n := len(r.txns); n > 0 {
		return r.txns[n-1].Sequence
	}
	return 0
}
