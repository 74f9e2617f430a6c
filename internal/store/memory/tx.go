package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

var errTxDone = errors.New("memory: transaction already committed or rolled back")

// tx acumula as escritas em overlay; leituras consultam overlay e depois o estado base
type tx struct {
	s    *Store
	done bool

	txs      []ledger.Transaction
	balances map[ledger.AccountID]int64 // valor absoluto novo
	events   map[string]betting.Event
	bets     map[string]betting.Bet
	newBets  []string
	halt     *bool
	reason   string
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Head(context.Context) (int64, string, error) {
	if n := len(t.txs); n > 0 {
		return t.txs[n-1].Sequence, t.txs[n-1].Hash, nil
	}
	if n := len(t.s.txs); n > 0 {
		return t.s.txs[n-1].Sequence, t.s.txs[n-1].Hash, nil
	}
	return 0, ledger.GenesisHash, nil
}

func (t *tx) InsertTransaction(ctx context.Context, txn *ledger.Transaction) error {
	seq, _, _ := t.Head(ctx)
	if txn.Sequence != seq+1 {
		return fmt.Errorf("memory: sequence %d out of order, head is %d", txn.Sequence, seq)
	}
	if _, dup := t.s.hashes[txn.Hash]; dup {
		return fmt.Errorf("memory: duplicate hash %s", txn.Hash)
	}
	t.txs = append(t.txs, cloneTxn(*txn))
	return nil
}

func (t *tx) Balance(_ context.Context, acc ledger.AccountID) (int64, error) {
	if b, ok := t.balances[acc]; ok {
		return b, nil
	}
	return t.s.balances[acc], nil
}

func (t *tx) AddBalance(ctx context.Context, acc ledger.AccountID, delta int64) error {
	cur, _ := t.Balance(ctx, acc)
	if cur+delta < 0 {
		return fmt.Errorf("%w: %s", store.ErrNegativeBalance, acc)
	}
	t.balances[acc] = cur + delta
	return nil
}

func (t *tx) Transactions(ctx context.Context, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	out, _ := t.s.Transactions(ctx, afterSeq, limit)
	for _, txn := range t.txs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if txn.Sequence > afterSeq {
			out = append(out, cloneTxn(txn))
		}
	}
	return out, nil
}

func (t *tx) Balances(ctx context.Context) (map[ledger.AccountID]int64, error) {
	out, _ := t.s.Balances(ctx)
	for acc, b := range t.balances {
		out[acc] = b
	}
	return out, nil
}

func (t *tx) Halted(context.Context) (bool, string, error) {
	if t.halt != nil {
		return *t.halt, t.reason, nil
	}
	return t.s.halted, t.s.haltReason, nil
}

func (t *tx) Halt(_ context.Context, reason string) error {
	h := true
	t.halt, t.reason = &h, reason
	return nil
}

func (t *tx) Resume(context.Context) error {
	h := false
	t.halt, t.reason = &h, ""
	return nil
}

func (t *tx) InsertEvent(_ context.Context, e *betting.Event) error {
	if t.hasEvent(e.ID) {
		return fmt.Errorf("memory: event %s already exists", e.ID)
	}
	t.events[e.ID] = *cloneEvent(*e)
	return nil
}

func (t *tx) GetEvent(_ context.Context, id string) (*betting.Event, error) {
	if ev, ok := t.events[id]; ok {
		return cloneEvent(ev), nil
	}
	if ev, ok := t.s.events[id]; ok {
		return cloneEvent(ev), nil
	}
	return nil, fmt.Errorf("%w: %s", betting.ErrEventNotFound, id)
}

func (t *tx) UpdateEvent(_ context.Context, e *betting.Event) error {
	if !t.hasEvent(e.ID) {
		return fmt.Errorf("%w: %s", betting.ErrEventNotFound, e.ID)
	}
	t.events[e.ID] = *cloneEvent(*e)
	return nil
}

func (t *tx) hasEvent(id string) bool {
	_, a := t.events[id]
	_, b := t.s.events[id]
	return a || b
}

func (t *tx) InsertBet(_ context.Context, b *betting.Bet) error {
	if _, ok := t.lookupBet(b.ID); ok {
		return fmt.Errorf("memory: bet %s already exists", b.ID)
	}
	if !t.hasEvent(b.EventID) {
		return fmt.Errorf("%w: %s", betting.ErrEventNotFound, b.EventID)
	}
	t.bets[b.ID] = *cloneBet(*b)
	t.newBets = append(t.newBets, b.ID)
	return nil
}

func (t *tx) GetBet(_ context.Context, id string) (*betting.Bet, error) {
	b, ok := t.lookupBet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", betting.ErrBetNotFound, id)
	}
	return cloneBet(b), nil
}

func (t *tx) UpdateBet(_ context.Context, b *betting.Bet) error {
	if _, ok := t.lookupBet(b.ID); !ok {
		return fmt.Errorf("%w: %s", betting.ErrBetNotFound, b.ID)
	}
	t.bets[b.ID] = *cloneBet(*b)
	return nil
}

func (t *tx) lookupBet(id string) (betting.Bet, bool) {
	if b, ok := t.bets[id]; ok {
		return b, true
	}
	b, ok := t.s.bets[id]
	return b, ok
}

func (t *tx) OldestPendingCounterpart(ctx context.Context, eventID string, side betting.Side, amountCents int64, excludeUserID string) (*betting.Bet, error) {
	bets, _ := t.EventBets(ctx, eventID)
	for i := range bets {
		b := &bets[i]
		if b.Status == betting.BetPending && b.Side == side && b.AmountCents == amountCents && b.UserID != excludeUserID {
			return b, nil
		}
	}
	return nil, nil
}

func (t *tx) EventBets(_ context.Context, eventID string) ([]betting.Bet, error) {
	var out []betting.Bet
	for _, id := range t.s.eventBets[eventID] {
		b, _ := t.lookupBet(id)
		out = append(out, *cloneBet(b))
	}
	for _, id := range t.newBets {
		if b := t.bets[id]; b.EventID == eventID {
			out = append(out, *cloneBet(b))
		}
	}
	sortBets(out)
	return out, nil
}

// Commit aplica o overlay no estado base e libera o próximo escritor
func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.s.writer.Unlock()

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range t.txs {
		s.txs = append(s.txs, txn)
		s.hashes[txn.Hash] = struct{}{}
	}
	for acc, b := range t.balances {
		s.balances[acc] = b
	}
	for id, ev := range t.events {
		s.events[id] = ev
	}
	for id, b := range t.bets {
		s.bets[id] = b
	}
	for _, id := range t.newBets {
		ev := t.bets[id].EventID
		s.eventBets[ev] = append(s.eventBets[ev], id)
	}
	if t.halt != nil {
		s.halted, s.haltReason = *t.halt, t.reason
	}
	return nil
}

// Rollback descarta o overlay; depois de Commit é no-op
func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.writer.Unlock()
	return nil
}

func cloneTxn(t ledger.Transaction) ledger.Transaction {
	if t.From != nil {
		t.From = t.From.Ptr()
	}
	if t.To != nil {
		t.To = t.To.Ptr()
	}
	t.Payload = append([]byte(nil), t.Payload...)
	return t
}

func cloneEvent(e betting.Event) *betting.Event {
	if e.Winner != nil {
		w := *e.Winner
		e.Winner = &w
	}
	return &e
}

func cloneBet(b betting.Bet) *betting.Bet {
	if b.MatchedAt != nil {
		at := *b.MatchedAt
		b.MatchedAt = &at
	}
	if b.SettledAt != nil {
		at := *b.SettledAt
		b.SettledAt = &at
	}
	if b.CounterpartyBetID != nil {
		id := *b.CounterpartyBetID
		b.CounterpartyBetID = &id
	}
	return &b
}
