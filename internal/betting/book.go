package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
)

// Tx estende a unidade de escrita do ledger com as tabelas de eventos e apostas.
// Tudo que a BetBook faz dentro de uma Tx é confirmado ou desfeito junto.
type Tx interface {
	ledger.Tx

	InsertEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error

	InsertBet(ctx context.Context, b *Bet) error
	GetBet(ctx context.Context, id string) (*Bet, error)
	UpdateBet(ctx context.Context, b *Bet) error

	// OldestPendingCounterpart retorna a aposta pending mais antiga do evento no lado
	// e valor informados, ignorando as do próprio usuário; nil se não houver
	OldestPendingCounterpart(ctx context.Context, eventID string, side Side, amountCents int64, excludeUserID string) (*Bet, error)
	// EventBets lista as apostas do evento por (placed_at, place_seq)
	EventBets(ctx context.Context, eventID string) ([]Bet, error)
}

// Book mantém as apostas pendentes por evento/lado e faz o casamento FIFO
type Book struct {
	ledger *ledger.Ledger
	limits Limits
	now    func() time.Time
	newID  func() string
}

func NewBook(l *ledger.Ledger, limits Limits) *Book {
	return &Book{ledger: l, limits: limits, now: time.Now, newID: uuid.NewString}
}

// WithClock troca o relógio usado em matched_at/settled_at (testes)
func (b *Book) WithClock(now func() time.Time) *Book {
	b.now = now
	return b
}

// Place debita o stake, cria a aposta pending e tenta casá-la com a
// contraparte pending mais antiga de mesmo valor no lado oposto.
// Busca e transição acontecem na mesma Tx serializada.
func (b *Book) Place(ctx context.Context, tx Tx, eventID, userID string, side Side, amountCents int64) (*Bet, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	ev, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.AcceptsBets() {
		return nil, fmt.Errorf("%w: event %s is %s", ErrEventNotAcceptingBets, ev.ID, ev.Status)
	}
	if amountCents < b.limits.MinCents || amountCents > b.limits.MaxCents {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfRange, amountCents, b.limits.MinCents, b.limits.MaxCents)
	}

	betID := b.newID()
	user := ledger.AccountID(userID)
	t, err := b.ledger.Append(ctx, tx, ledger.Entry{
		From:        user.Ptr(),
		To:          ledger.EscrowAccount(eventID).Ptr(),
		AmountCents: amountCents,
		Kind:        ledger.KindBetPlace,
		Payload:     map[string]any{"bet_id": betID, "event_id": eventID, "side": side},
	})
	if err != nil {
		return nil, err
	}

	bet := &Bet{
		ID:          betID,
		EventID:     eventID,
		UserID:      userID,
		Side:        side,
		AmountCents: amountCents,
		Status:      BetPending,
		PlacedAt:    t.CreatedAt,
		PlaceSeq:    t.Sequence,
	}
	if err := tx.InsertBet(ctx, bet); err != nil {
		return nil, fmt.Errorf("insert bet: %w", err)
	}

	cp, err := tx.OldestPendingCounterpart(ctx, eventID, side.Opposite(), amountCents, userID)
	if err != nil {
		return nil, fmt.Errorf("match scan: %w", err)
	}
	if cp == nil {
		return bet, nil
	}

	at, cpID, ownID := t.CreatedAt, cp.ID, bet.ID
	bet.Status, cp.Status = BetMatched, BetMatched
	bet.MatchedAt, cp.MatchedAt = &at, &at
	bet.CounterpartyBetID, cp.CounterpartyBetID = &cpID, &ownID
	if err := tx.UpdateBet(ctx, cp); err != nil {
		return nil, fmt.Errorf("update counterparty: %w", err)
	}
	if err := tx.UpdateBet(ctx, bet); err != nil {
		return nil, fmt.Errorf("update bet: %w", err)
	}
	return bet, nil
}

// CancelBet cancela uma aposta do próprio usuário antes do evento ficar live.
// Pending: devolve o stake. Matched: anula o par e devolve os dois stakes.
func (b *Book) CancelBet(ctx context.Context, tx Tx, betID, userID string) ([]*Bet, error) {
	bet, err := tx.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.UserID != userID {
		return nil, ErrNotBetOwner
	}
	if bet.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrBetTerminal, bet.Status)
	}

	ev, err := tx.GetEvent(ctx, bet.EventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != EventAcceptingBets && ev.Status != EventClosed {
		return nil, fmt.Errorf("%w: cannot cancel bets while event is %s", ErrInvalidTransition, ev.Status)
	}

	affected := []*Bet{bet}
	if bet.Status == BetMatched {
		cp, err := tx.GetBet(ctx, *bet.CounterpartyBetID)
		if err != nil {
			return nil, fmt.Errorf("load counterparty: %w", err)
		}
		affected = append(affected, cp)
	}
	for _, x := range affected {
		if err := b.refund(ctx, tx, x, BetCancelled, "bet_cancelled"); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// refund devolve o stake da aposta a partir do escrow do evento
func (b *Book) refund(ctx context.Context, tx Tx, bet *Bet, status BetStatus, reason string) error {
	if _, err := b.ledger.Append(ctx, tx, ledger.Entry{
		From:        ledger.EscrowAccount(bet.EventID).Ptr(),
		To:          ledger.AccountID(bet.UserID).Ptr(),
		AmountCents: bet.AmountCents,
		Kind:        ledger.KindBetRefund,
		Payload:     map[string]any{"bet_id": bet.ID, "event_id": bet.EventID, "reason": reason},
	}); err != nil {
		return fmt.Errorf("refund bet %s: %w", bet.ID, err)
	}
	return b.finish(ctx, tx, bet, status)
}

func (b *Book) finish(ctx context.Context, tx Tx, bet *Bet, status BetStatus) error {
	at := b.now().UTC()
	bet.Status = status
	bet.SettledAt = &at
	if err := tx.UpdateBet(ctx, bet); err != nil {
		return fmt.Errorf("update bet %s: %w", bet.ID, err)
	}
	return nil
}
