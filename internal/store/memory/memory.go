// Package memory implementa store.Store em memória.
// Usado nos testes e no modo local sem Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

// Store guarda o estado confirmado; as escritas passam por uma Tx com overlay
// que só é aplicado no Commit
type Store struct {
	writer sync.Mutex   // serializa as Tx de escrita
	mu     sync.RWMutex // protege o estado confirmado durante o Commit

	txs        []ledger.Transaction
	hashes     map[string]struct{}
	balances   map[ledger.AccountID]int64
	events     map[string]betting.Event
	bets       map[string]betting.Bet
	eventBets  map[string][]string
	halted     bool
	haltReason string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		hashes:    make(map[string]struct{}),
		balances:  make(map[ledger.AccountID]int64),
		events:    make(map[string]betting.Event),
		bets:      make(map[string]betting.Bet),
		eventBets: make(map[string][]string),
	}
}

// BeginWrite bloqueia até não haver outra Tx de escrita aberta
func (s *Store) BeginWrite(ctx context.Context) (store.Tx, error) {
	s.writer.Lock()
	if err := ctx.Err(); err != nil {
		s.writer.Unlock()
		return nil, err
	}
	return &tx{
		s:        s,
		balances: make(map[ledger.AccountID]int64),
		events:   make(map[string]betting.Event),
		bets:     make(map[string]betting.Bet),
	}, nil
}

func (s *Store) Balance(_ context.Context, acc ledger.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[acc], nil
}

func (s *Store) Balances(_ context.Context) (map[ledger.AccountID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ledger.AccountID]int64, len(s.balances))
	for acc, b := range s.balances {
		out[acc] = b
	}
	return out, nil
}

func (s *Store) Transactions(_ context.Context, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := int(afterSeq)
	if start < 0 || start >= len(s.txs) {
		return nil, nil
	}
	end := len(s.txs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]ledger.Transaction, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, cloneTxn(s.txs[i]))
	}
	return out, nil
}

func (s *Store) History(_ context.Context, acc ledger.AccountID, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.txs[i].Touches(acc) {
			out = append(out, cloneTxn(s.txs[i]))
		}
	}
	return out, nil
}

func (s *Store) Event(_ context.Context, id string) (*betting.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", betting.ErrEventNotFound, id)
	}
	return cloneEvent(ev), nil
}

func (s *Store) Bet(_ context.Context, id string) (*betting.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", betting.ErrBetNotFound, id)
	}
	return cloneBet(b), nil
}

func (s *Store) EventBets(_ context.Context, eventID string) ([]betting.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]betting.Bet, 0, len(s.eventBets[eventID]))
	for _, id := range s.eventBets[eventID] {
		out = append(out, *cloneBet(s.bets[id]))
	}
	sortBets(out)
	return out, nil
}

func (s *Store) Halted(_ context.Context) (bool, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted, s.haltReason, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Corrupt altera uma transação já gravada sem recalcular hash nem saldos.
// Existe para os testes de auditoria.
func (s *Store) Corrupt(seq int64, fn func(t *ledger.Transaction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.txs[seq-1])
}

// CorruptBalance sobrescreve um saldo materializado (testes de auditoria)
func (s *Store) CorruptBalance(acc ledger.AccountID, cents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[acc] = cents
}

func sortBets(bets []betting.Bet) {
	sort.SliceStable(bets, func(i, j int) bool {
		if !bets[i].PlacedAt.Equal(bets[j].PlacedAt) {
			return bets[i].PlacedAt.Before(bets[j].PlacedAt)
		}
		return bets[i].PlaceSeq < bets[j].PlaceSeq
	})
}
