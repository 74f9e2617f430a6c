// Package engine é a fachada do Ledger & Matching Engine: toda operação que
// muda o ledger passa por aqui, serializada, dentro de uma única Tx de escrita.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500

	postCommitTimeout = 5 * time.Second
)

// Publisher recebe o que foi confirmado; falhas são só logadas,
// o ledger já está gravado
type Publisher interface {
	PublishTransactions(ctx context.Context, txns []ledger.Transaction) error
	PublishBetUpdates(ctx context.Context, bets []betting.Bet) error
}

// BalanceCache é o cache de leitura de saldos confirmados
type BalanceCache interface {
	Get(ctx context.Context, acc ledger.AccountID) (cents int64, ok bool, err error)
	// Fill grava só se a chave não existir (preenchimento após miss)
	Fill(ctx context.Context, acc ledger.AccountID, cents int64) error
	// Put grava os saldos pós-commit; versões mais antigas que seq são ignoradas
	Put(ctx context.Context, seq int64, balances map[ledger.AccountID]int64) error
	// Invalidate remove as chaves; a próxima leitura vai ao storage
	Invalidate(ctx context.Context, accs ...ledger.AccountID) error
}

type Options struct {
	Limits    betting.Limits
	Logger    *zap.Logger
	Metrics   *Metrics
	Publisher Publisher
	Cache     BalanceCache
	Clock     func() time.Time
}

type Engine struct {
	mu       sync.Mutex // ponto único de serialização dos escritores deste processo
	postNext uint64     // próximo ticket pós-commit; protegido por mu

	// efeitos pós-commit saem na ordem dos tickets, fora de mu
	postMu   sync.Mutex
	postCond *sync.Cond
	postTurn uint64

	store      store.Store
	ledger     *ledger.Ledger
	book       *betting.Book
	settlement *betting.Settlement

	log     *zap.Logger
	metrics *Metrics
	pub     Publisher
	cache   BalanceCache
}

func New(st store.Store, opts Options) *Engine {
	l := ledger.New()
	book := betting.NewBook(l, opts.Limits)
	settlement := betting.NewSettlement(book)
	if opts.Clock != nil {
		l.WithClock(opts.Clock)
		book.WithClock(opts.Clock)
		settlement.WithClock(opts.Clock)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:      st,
		ledger:     l,
		book:       book,
		settlement: settlement,
		log:        log,
		metrics:    opts.Metrics,
		pub:        opts.Publisher,
		cache:      opts.Cache,
	}
	e.postCond = sync.NewCond(&e.postMu)
	return e
}

// Ping verifica o storage (healthz)
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// write executa fn numa Tx de escrita exclusiva. Erro em fn desfaz tudo.
func (e *Engine) write(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	defer e.metrics.observeWrite(op, time.Now())

	e.mu.Lock()
	rec, balances, err := e.commit(ctx, op, fn)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ticket := e.postNext
	e.postNext++
	e.mu.Unlock()

	// Redis e Kafka não seguram o lock de escrita, mas respeitam a ordem dos commits
	e.waitTurn(ticket)
	defer e.doneTurn()
	e.afterCommit(ctx, op, rec, balances)
	return nil
}

func (e *Engine) waitTurn(ticket uint64) {
	e.postMu.Lock()
	defer e.postMu.Unlock()
	for e.postTurn != ticket {
		e.postCond.Wait()
	}
}

func (e *Engine) doneTurn() {
	e.postMu.Lock()
	e.postTurn++
	e.postMu.Unlock()
	e.postCond.Broadcast()
}

// commit roda fn e confirma a Tx; chamado com e.mu travado
func (e *Engine) commit(ctx context.Context, op string, fn func(tx store.Tx) error) (*recorder, map[ledger.AccountID]int64, error) {
	raw, err := e.store.BeginWrite(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin write: %w", err)
	}
	rec := newRecorder(raw)
	if err := fn(rec); err != nil {
		_ = raw.Rollback()
		e.rejected(op, err)
		return nil, nil, err
	}
	balances, err := rec.balances(ctx)
	if err != nil {
		_ = raw.Rollback()
		return nil, nil, fmt.Errorf("read committed balances: %w", err)
	}
	if err := raw.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return rec, balances, nil
}

func (e *Engine) afterCommit(ctx context.Context, op string, rec *recorder, balances map[ledger.AccountID]int64) {
	for _, t := range rec.txns {
		e.metrics.appended(string(t.Kind))
		e.log.Debug("ledger append",
			zap.String("op", op),
			zap.Int64("seq", t.Sequence),
			zap.String("kind", string(t.Kind)),
			zap.String("hash", t.Hash),
		)
	}

	// a requisição pode já ter sido cancelada; o commit não
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	if e.cache != nil && len(balances) > 0 {
		if err := e.cache.Put(ctx, rec.headSeq(), balances); err != nil {
			e.log.Warn("balance cache put failed", zap.String("op", op), zap.Error(err))
			// sem o Put a chave ficaria com o saldo anterior até o TTL
			if err := e.cache.Invalidate(ctx, accounts(balances)...); err != nil {
				e.log.Warn("balance cache invalidate failed", zap.String("op", op), zap.Error(err))
			}
		}
	}
	if e.pub == nil {
		return
	}
	if len(rec.txns) > 0 {
		if err := e.pub.PublishTransactions(ctx, rec.txns); err != nil {
			e.log.Warn("publish transactions failed", zap.String("op", op), zap.Error(err))
		}
	}
	if bets := rec.betUpdates(); len(bets) > 0 {
		if err := e.pub.PublishBetUpdates(ctx, bets); err != nil {
			e.log.Warn("publish bet updates failed", zap.String("op", op), zap.Error(err))
		}
	}
}

func accounts(balances map[ledger.AccountID]int64) []ledger.AccountID {
	out := make([]ledger.AccountID, 0, len(balances))
	for acc := range balances {
		out = append(out, acc)
	}
	return out
}

func (e *Engine) rejected(op string, err error) {
	reason := RejectReason(err)
	e.metrics.rejected(op, reason)
	if reason == "internal" {
		e.log.Error("write failed", zap.String("op", op), zap.Error(err))
		return
	}
	e.log.Info("write rejected", zap.String("op", op), zap.String("reason", reason), zap.Error(err))
}

// RejectReason classifica o erro de uma operação rejeitada (métrica, log e status HTTP)
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, store.ErrNegativeBalance):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrLedgerHalted):
		return "halted"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidEntry),
		errors.Is(err, betting.ErrAmountOutOfRange), errors.Is(err, betting.ErrInvalidSide),
		errors.Is(err, betting.ErrInvalidWinner), errors.Is(err, betting.ErrInvalidEvent),
		errors.Is(err, ErrInvalidAccount):
		return "validation"
	case errors.Is(err, betting.ErrEventNotAcceptingBets), errors.Is(err, betting.ErrInvalidTransition),
		errors.Is(err, betting.ErrWinnerConflict), errors.Is(err, betting.ErrBetTerminal),
		errors.Is(err, betting.ErrNotBetOwner):
		return "state"
	case errors.Is(err, betting.ErrEventNotFound), errors.Is(err, betting.ErrBetNotFound):
		return "not_found"
	case errors.Is(err, ErrLedgerStillBroken):
		return "integrity"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}

// userAccount valida um id de usuário; ids com ':' são reservados às contas do sistema
func userAccount(userID string) (ledger.AccountID, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	acc := ledger.AccountID(userID)
	if acc.IsSystem() {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidAccount, userID)
	}
	return acc, nil
}
