package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
)

const txnColumns = `sequence_no, hash, previous_hash, from_account, to_account, amount_cents, kind, payload, created_at`

const betColumns = `id, event_id, user_id, side, amount_cents, status, placed_at, place_seq, matched_at, counterparty_bet_id, settled_at`

const eventColumns = `id, side_a_label, side_b_label, fee_percent, status, winner, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func queryTxns(ctx context.Context, q querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTxn(s scanner) (ledger.Transaction, error) {
	var (
		t        ledger.Transaction
		from, to sql.NullString
		kind     string
		payload  []byte
	)
	if err := s.Scan(&t.Sequence, &t.Hash, &t.PreviousHash, &from, &to, &t.AmountCents, &kind, &payload, &t.CreatedAt); err != nil {
		return ledger.Transaction{}, err
	}
	t.From, t.To = accountPtr(from), accountPtr(to)
	t.Kind = ledger.Kind(kind)
	t.Payload = payload
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func getEvent(ctx context.Context, q querier, id string, forUpdate bool) (*betting.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	ev, err := scanEvent(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", betting.ErrEventNotFound, id)
	}
	return ev, err
}

func scanEvent(s scanner) (*betting.Event, error) {
	var (
		ev     betting.Event
		status string
		winner sql.NullString
	)
	if err := s.Scan(&ev.ID, &ev.SideALabel, &ev.SideBLabel, &ev.FeePercent, &status, &winner, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.Status = betting.EventStatus(status)
	if winner.Valid {
		w := betting.Winner(winner.String)
		ev.Winner = &w
	}
	return &ev, nil
}

func getBet(ctx context.Context, q querier, id string, forUpdate bool) (*betting.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBet(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", betting.ErrBetNotFound, id)
	}
	return b, err
}

func eventBets(ctx context.Context, q querier, eventID string) ([]betting.Bet, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+betColumns+` FROM bets WHERE event_id=$1 ORDER BY placed_at, place_seq`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []betting.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBet(s scanner) (*betting.Bet, error) {
	var (
		b                  betting.Bet
		side, status       string
		matchedAt, settled sql.NullTime
		cp                 sql.NullString
	)
	if err := s.Scan(&b.ID, &b.EventID, &b.UserID, &side, &b.AmountCents, &status, &b.PlacedAt, &b.PlaceSeq, &matchedAt, &cp, &settled); err != nil {
		return nil, err
	}
	b.Side = betting.Side(side)
	b.Status = betting.BetStatus(status)
	if matchedAt.Valid {
		at := matchedAt.Time
		b.MatchedAt = &at
	}
	if settled.Valid {
		at := settled.Time
		b.SettledAt = &at
	}
	if cp.Valid {
		id := cp.String
		b.CounterpartyBetID = &id
	}
	return &b, nil
}

func accountPtr(ns sql.NullString) *ledger.AccountID {
	if !ns.Valid {
		return nil
	}
	return ledger.AccountID(ns.String).Ptr()
}

func nullAccount(acc *ledger.AccountID) sql.NullString {
	if acc == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*acc), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
