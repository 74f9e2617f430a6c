package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
)

// Report resume uma passada de liquidação ou cancelamento
type Report struct {
	EventID       string      `json:"eventId"`
	Status        EventStatus `json:"status"`
	Winner        *Winner     `json:"winner,omitempty"`
	PaidBets      []string    `json:"paidBets"`
	LostBets      []string    `json:"lostBets"`
	RefundedBets  []string    `json:"refundedBets"`
	PaidCents     int64       `json:"paid_cents"`
	FeeCents      int64       `json:"fee_cents"`
	RefundedCents int64       `json:"refunded_cents"`
	// Replayed marca a repetição de um settle já concluído (nada foi gravado)
	Replayed bool `json:"replayed,omitempty"`
}

// Settlement conduz o evento pela máquina de estados e usa a Book
// para pagar ou devolver as apostas
type Settlement struct {
	book  *Book
	now   func() time.Time
	newID func() string
}

func NewSettlement(book *Book) *Settlement {
	return &Settlement{book: book, now: time.Now, newID: uuid.NewString}
}

// WithClock troca o relógio de created_at/updated_at (testes)
func (s *Settlement) WithClock(now func() time.Time) *Settlement {
	s.now = now
	return s
}

// CreateEvent registra um evento novo no estado created
func (s *Settlement) CreateEvent(ctx context.Context, tx Tx, sideA, sideB string, fee decimal.Decimal) (*Event, error) {
	if sideA == "" || sideB == "" {
		return nil, fmt.Errorf("%w: both side labels are required", ErrInvalidEvent)
	}
	if err := ValidateFee(fee); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ev := &Event{
		ID:         s.newID(),
		SideALabel: sideA,
		SideBLabel: sideB,
		FeePercent: fee,
		Status:     EventCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// Advance move o evento um passo na linha principal (até streamer_voting)
func (s *Settlement) Advance(ctx context.Context, tx Tx, eventID string, to EventStatus) (*Event, error) {
	ev, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := ev.Advance(to); err != nil {
		return nil, err
	}
	ev.UpdatedAt = s.now().UTC()
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return ev, nil
}

// Settle atribui o vencedor e liquida todas as apostas não terminais.
// Idempotente: rodar de novo com o mesmo vencedor não paga duas vezes,
// pois apostas em estado terminal são puladas.
func (s *Settlement) Settle(ctx context.Context, tx Tx, eventID string, winner Winner) (*Report, error) {
	if !winner.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}
	ev, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	switch ev.Status {
	case EventStreamerVoting:
	case EventCompleted:
		if ev.Winner == nil || *ev.Winner != winner {
			return nil, fmt.Errorf("%w: %s", ErrWinnerConflict, eventID)
		}
	default:
		return nil, fmt.Errorf("%w: cannot assign winner while event is %s", ErrInvalidTransition, ev.Status)
	}

	bets, err := tx.EventBets(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	byID := make(map[string]*Bet, len(bets))
	for i := range bets {
		byID[bets[i].ID] = &bets[i]
	}

	rep := newReport(ev)
	rep.Replayed = ev.Status == EventCompleted
	for i := range bets {
		bet := &bets[i]
		if bet.Status.Terminal() {
			continue
		}
		if bet.Status == BetPending || winner == WinnerDraw {
			if err := s.book.refund(ctx, tx, bet, BetRefunded, refundReason(bet.Status)); err != nil {
				return nil, err
			}
			rep.refunded(bet)
			continue
		}

		cp, ok := byID[derefID(bet.CounterpartyBetID)]
		if !ok {
			return nil, fmt.Errorf("matched bet %s has no counterparty in event %s", bet.ID, eventID)
		}
		won, lost := bet, cp
		if bet.Side != Side(winner) {
			won, lost = cp, bet
		}
		if err := s.payPair(ctx, tx, ev, won, lost, rep); err != nil {
			return nil, err
		}
	}

	if ev.Status != EventCompleted {
		ev.Status = EventCompleted
		ev.Winner = &winner
		ev.UpdatedAt = s.now().UTC()
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("update event: %w", err)
		}
	}
	rep.Status, rep.Winner = ev.Status, ev.Winner
	return rep, nil
}

// payPair paga o vencedor a partir do escrow e transfere a taxa para a plataforma
func (s *Settlement) payPair(ctx context.Context, tx Tx, ev *Event, won, lost *Bet, rep *Report) error {
	payout, fee := Payout(won.AmountCents, ev.FeePercent)
	escrow := ledger.EscrowAccount(ev.ID)

	if _, err := s.book.ledger.Append(ctx, tx, ledger.Entry{
		From:        escrow.Ptr(),
		To:          ledger.AccountID(won.UserID).Ptr(),
		AmountCents: payout,
		Kind:        ledger.KindSettleWin,
		Payload: map[string]any{
			"bet_id":              won.ID,
			"counterparty_bet_id": lost.ID,
			"event_id":            ev.ID,
			"stake_cents":         won.AmountCents,
			"fee_cents":           fee,
		},
	}); err != nil {
		return fmt.Errorf("pay bet %s: %w", won.ID, err)
	}
	if fee > 0 {
		if _, err := s.book.ledger.Append(ctx, tx, ledger.Entry{
			From:        escrow.Ptr(),
			To:          ledger.FeeAccount.Ptr(),
			AmountCents: fee,
			Kind:        ledger.KindTransfer,
			Payload:     map[string]any{"reason": "settlement_fee", "bet_id": won.ID, "event_id": ev.ID},
		}); err != nil {
			return fmt.Errorf("collect fee for bet %s: %w", won.ID, err)
		}
	}

	if err := s.book.finish(ctx, tx, won, BetWon); err != nil {
		return err
	}
	if err := s.book.finish(ctx, tx, lost, BetLost); err != nil {
		return err
	}
	rep.PaidBets = append(rep.PaidBets, won.ID)
	rep.LostBets = append(rep.LostBets, lost.ID)
	rep.PaidCents += payout
	rep.FeeCents += fee
	return nil
}

// Cancel encerra o evento devolvendo todos os stakes não terminais.
// O evento só fica cancelled depois da passada completa de reembolso.
func (s *Settlement) Cancel(ctx context.Context, tx Tx, eventID string) (*Report, error) {
	ev, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status.Terminal() {
		return nil, fmt.Errorf("%w: event %s is already %s", ErrInvalidTransition, eventID, ev.Status)
	}

	bets, err := tx.EventBets(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load bets: %w", err)
	}
	rep := newReport(ev)
	for i := range bets {
		bet := &bets[i]
		if bet.Status.Terminal() {
			continue
		}
		if err := s.book.refund(ctx, tx, bet, BetRefunded, "event_cancelled"); err != nil {
			return nil, err
		}
		rep.refunded(bet)
	}

	ev.Status = EventCancelled
	ev.UpdatedAt = s.now().UTC()
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	rep.Status = ev.Status
	return rep, nil
}

func newReport(ev *Event) *Report {
	return &Report{
		EventID:      ev.ID,
		Status:       ev.Status,
		Winner:       ev.Winner,
		PaidBets:     []string{},
		LostBets:     []string{},
		RefundedBets: []string{},
	}
}

func (r *Report) refunded(b *Bet) {
	r.RefundedBets = append(r.RefundedBets, b.ID)
	r.RefundedCents += b.AmountCents
}

func refundReason(st BetStatus) string {
	if st == BetPending {
		return "unmatched"
	}
	return "draw"
}

func derefID(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
