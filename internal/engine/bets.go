package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

func (e *Engine) CreateEvent(ctx context.Context, sideALabel, sideBLabel string, feePercent decimal.Decimal) (*betting.Event, error) {
	var out *betting.Event
	err := e.write(ctx, "create_event", func(tx store.Tx) error {
		ev, err := e.settlement.CreateEvent(ctx, tx, strings.TrimSpace(sideALabel), strings.TrimSpace(sideBLabel), feePercent)
		out = ev
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("event created", zap.String("event_id", out.ID), zap.String("fee_percent", out.FeePercent.String()))
	return out, nil
}

// AdvanceEvent move o evento um passo na máquina de estados
func (e *Engine) AdvanceEvent(ctx context.Context, eventID string, to betting.EventStatus) (*betting.Event, error) {
	var out *betting.Event
	err := e.write(ctx, "advance_event", func(tx store.Tx) error {
		ev, err := e.settlement.Advance(ctx, tx, eventID, to)
		out = ev
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("event advanced", zap.String("event_id", eventID), zap.String("status", string(out.Status)))
	return out, nil
}

// PlaceBet debita o stake e tenta casar a aposta; devolve pending ou matched
func (e *Engine) PlaceBet(ctx context.Context, eventID, userID string, side betting.Side, amountCents int64) (*betting.Bet, error) {
	if _, err := userAccount(userID); err != nil {
		return nil, err
	}
	var out *betting.Bet
	err := e.write(ctx, "place_bet", func(tx store.Tx) error {
		b, err := e.book.Place(ctx, tx, eventID, userID, side, amountCents)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Status == betting.BetMatched {
		e.metrics.matched()
		e.log.Info("bet matched",
			zap.String("bet_id", out.ID),
			zap.String("counterparty_bet_id", *out.CounterpartyBetID),
			zap.String("event_id", eventID),
			zap.Int64("amount_cents", amountCents),
		)
	}
	return out, nil
}

// CancelBet cancela a aposta do usuário (e o par, se já casada) antes do evento ficar live
func (e *Engine) CancelBet(ctx context.Context, betID, userID string) ([]*betting.Bet, error) {
	if _, err := userAccount(userID); err != nil {
		return nil, err
	}
	var out []*betting.Bet
	err := e.write(ctx, "cancel_bet", func(tx store.Tx) error {
		bets, err := e.book.CancelBet(ctx, tx, betID, userID)
		out = bets
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("bet cancelled", zap.String("bet_id", betID), zap.Int("affected", len(out)))
	return out, nil
}

// SettleEvent atribui o vencedor e liquida o evento; repetir com o mesmo vencedor é no-op
func (e *Engine) SettleEvent(ctx context.Context, eventID string, winner betting.Winner) (*betting.Report, error) {
	var rep *betting.Report
	err := e.write(ctx, "settle_event", func(tx store.Tx) error {
		r, err := e.settlement.Settle(ctx, tx, eventID, winner)
		rep = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if rep.Replayed {
		e.log.Debug("event already settled", zap.String("event_id", eventID), zap.String("winner", string(winner)))
		return rep, nil
	}
	e.metrics.settled(string(winner))
	e.log.Info("event settled",
		zap.String("event_id", eventID),
		zap.String("winner", string(winner)),
		zap.Int("paid", len(rep.PaidBets)),
		zap.Int("refunded", len(rep.RefundedBets)),
		zap.Int64("fee_cents", rep.FeeCents),
	)
	return rep, nil
}

// CancelEvent devolve todos os stakes não terminais e encerra o evento como cancelled
func (e *Engine) CancelEvent(ctx context.Context, eventID string) (*betting.Report, error) {
	var rep *betting.Report
	err := e.write(ctx, "cancel_event", func(tx store.Tx) error {
		r, err := e.settlement.Cancel(ctx, tx, eventID)
		rep = r
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.settled("cancelled")
	e.log.Info("event cancelled",
		zap.String("event_id", eventID),
		zap.Int("refunded", len(rep.RefundedBets)),
		zap.Int64("refunded_cents", rep.RefundedCents),
	)
	return rep, nil
}

func (e *Engine) GetEvent(ctx context.Context, eventID string) (*betting.Event, error) {
	return e.store.Event(ctx, eventID)
}

func (e *Engine) GetBet(ctx context.Context, betID string) (*betting.Bet, error) {
	return e.store.Bet(ctx, betID)
}

// ListEventBets lista as apostas do evento em ordem de colocação
func (e *Engine) ListEventBets(ctx context.Context, eventID string) ([]betting.Bet, error) {
	if _, err := e.store.Event(ctx, eventID); err != nil {
		return nil, err
	}
	bets, err := e.store.EventBets(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	if bets == nil {
		bets = []betting.Bet{}
	}
	return bets, nil
}
