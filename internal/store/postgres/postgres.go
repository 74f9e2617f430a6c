package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

//go:embed schema.sql
var schema string

// chave do advisory lock que serializa os escritores do ledger entre processos
const writerLockKey int64 = 0x6c6564676572 // "ledger"

// Postgres implementa store.Store sobre database/sql + lib/pq
type Postgres struct{ db *sql.DB }

var _ store.Store = (*Postgres)(nil)

func New(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate cria as tabelas caso ainda não existam
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// BeginWrite abre a Tx e pega o advisory lock global do ledger;
// o lock é liberado no commit/rollback
func (p *Postgres) BeginWrite(ctx context.Context) (store.Tx, error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		_ = sqlTx.Rollback()
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	return &tx{tx: sqlTx}, nil
}

func (p *Postgres) Balance(ctx context.Context, acc ledger.AccountID) (int64, error) {
	return balance(ctx, p.db, acc, false)
}

func (p *Postgres) Balances(ctx context.Context) (map[ledger.AccountID]int64, error) {
	return balances(ctx, p.db)
}

func (p *Postgres) Transactions(ctx context.Context, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	return transactions(ctx, p.db, afterSeq, limit)
}

func (p *Postgres) History(ctx context.Context, acc ledger.AccountID, limit int) ([]ledger.Transaction, error) {
	return queryTxns(ctx, p.db, `
		SELECT `+txnColumns+`
		FROM ledger_transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY sequence_no DESC
		LIMIT $2`, string(acc), nullLimit(limit))
}

func (p *Postgres) Event(ctx context.Context, id string) (*betting.Event, error) {
	return getEvent(ctx, p.db, id, false)
}

func (p *Postgres) Bet(ctx context.Context, id string) (*betting.Bet, error) {
	return getBet(ctx, p.db, id, false)
}

func (p *Postgres) EventBets(ctx context.Context, eventID string) ([]betting.Bet, error) {
	return eventBets(ctx, p.db, eventID)
}

func (p *Postgres) Halted(ctx context.Context) (bool, string, error) {
	return halted(ctx, p.db)
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// querier é satisfeito por *sql.DB e *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balance(ctx context.Context, q querier, acc ledger.AccountID, forUpdate bool) (int64, error) {
	query := `SELECT balance_cents FROM account_balances WHERE account_id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var bal int64
	err := q.QueryRowContext(ctx, query, string(acc)).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

func balances(ctx context.Context, q querier) (map[ledger.AccountID]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT account_id, balance_cents FROM account_balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[ledger.AccountID]int64)
	for rows.Next() {
		var acc string
		var bal int64
		if err := rows.Scan(&acc, &bal); err != nil {
			return nil, err
		}
		out[ledger.AccountID(acc)] = bal
	}
	return out, rows.Err()
}

func transactions(ctx context.Context, q querier, afterSeq int64, limit int) ([]ledger.Transaction, error) {
	return queryTxns(ctx, q, `
		SELECT `+txnColumns+`
		FROM ledger_transactions
		WHERE sequence_no > $1
		ORDER BY sequence_no
		LIMIT $2`, afterSeq, nullLimit(limit))
}

func halted(ctx context.Context, q querier) (bool, string, error) {
	var h bool
	var reason string
	err := q.QueryRowContext(ctx, `SELECT halted, halt_reason FROM ledger_state WHERE id=1`).Scan(&h, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	return h, reason, err
}

func nullLimit(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{} // LIMIT NULL = sem limite
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}
