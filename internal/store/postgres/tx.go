package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

const pqCheckViolation = "23514"

type tx struct{ tx *sql.Tx }

var _ store.Tx = (*tx)(nil)

func (t *tx) Head(ctx context.Context) (int64, string, error) {
	var seq int64
	var hash string
	err := t.tx.QueryRowContext(ctx, `SELECT sequence_no, hash FROM ledger_transactions ORDER BY sequence_no DESC LIMIT 1`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.GenesisHash, nil
	}
	return seq, hash, err
}

func (t *tx) InsertTransaction(ctx context.Context, txn *ledger.Transaction) error {
	// payload vai como texto: []byte seria enviado como bytea
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (`+txnColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		txn.Sequence, txn.Hash, txn.PreviousHash, nullAccount(txn.From), nullAccount(txn.To),
		txn.AmountCents, string(txn.Kind), string(txn.Payload), txn.CreatedAt,
	)
	return err
}

func (t *tx) Balance(ctx context.Context, acc ledger.AccountID) (int64, error) {
	return balance(ctx, t.tx, acc, true)
}

func (t *tx) AddBalance(ctx context.Context, acc ledger.AccountID, delta int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO account_balances (account_id, balance_cents, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
		  balance_cents = account_balances.balance_cents + EXCLUDED.balance_cents,
		  updated_at    = NOW()`,
		string(acc), delta,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation {
		return fmt.Errorf("%w: %s", store.ErrNegativeBalance, acc)
	}
	return err
}

func (t *tx) Transactions(ctx context.Context, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	return transactions(ctx, t.tx, afterSeq, limit)
}

func (t *tx) Balances(ctx context.Context) (map[ledger.AccountID]int64, error) {
	return balances(ctx, t.tx)
}

func (t *tx) Halted(ctx context.Context) (bool, string, error) {
	return halted(ctx, t.tx)
}

func (t *tx) Halt(ctx context.Context, reason string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE ledger_state SET halted=TRUE, halt_reason=$1, updated_at=NOW() WHERE id=1`, reason)
	return err
}

func (t *tx) Resume(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE ledger_state SET halted=FALSE, halt_reason='', updated_at=NOW() WHERE id=1`)
	return err
}

func (t *tx) InsertEvent(ctx context.Context, e *betting.Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.SideALabel, e.SideBLabel, e.FeePercent, string(e.Status), nullWinner(e.Winner), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (t *tx) GetEvent(ctx context.Context, id string) (*betting.Event, error) {
	return getEvent(ctx, t.tx, id, true)
}

func (t *tx) UpdateEvent(ctx context.Context, e *betting.Event) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE events SET status=$1, winner=$2, updated_at=$3 WHERE id=$4`,
		string(e.Status), nullWinner(e.Winner), e.UpdatedAt, e.ID,
	)
	return expectOne(res, err, betting.ErrEventNotFound, e.ID)
}

func (t *tx) InsertBet(ctx context.Context, b *betting.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.EventID, b.UserID, string(b.Side), b.AmountCents, string(b.Status), b.PlacedAt, b.PlaceSeq,
		nullTime(b.MatchedAt), nullString(b.CounterpartyBetID), nullTime(b.SettledAt),
	)
	return err
}

func (t *tx) GetBet(ctx context.Context, id string) (*betting.Bet, error) {
	return getBet(ctx, t.tx, id, true)
}

func (t *tx) UpdateBet(ctx context.Context, b *betting.Bet) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bets SET status=$1, matched_at=$2, counterparty_bet_id=$3, settled_at=$4 WHERE id=$5`,
		string(b.Status), nullTime(b.MatchedAt), nullString(b.CounterpartyBetID), nullTime(b.SettledAt), b.ID,
	)
	return expectOne(res, err, betting.ErrBetNotFound, b.ID)
}

func (t *tx) OldestPendingCounterpart(ctx context.Context, eventID string, side betting.Side, amountCents int64, excludeUserID string) (*betting.Bet, error) {
	b, err := scanBet(t.tx.QueryRowContext(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE event_id=$1 AND side=$2 AND amount_cents=$3 AND status='pending' AND user_id <> $4
		ORDER BY placed_at, place_seq
		LIMIT 1
		FOR UPDATE`,
		eventID, string(side), amountCents, excludeUserID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (t *tx) EventBets(ctx context.Context, eventID string) ([]betting.Bet, error) {
	return eventBets(ctx, t.tx, eventID)
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }

func expectOne(res sql.Result, err error, notFound error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullWinner(w *betting.Winner) sql.NullString {
	if w == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*w), Valid: true}
}
