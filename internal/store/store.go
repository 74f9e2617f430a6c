package store

import (
	"context"
	"errors"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
)

// ErrNegativeBalance é a última barreira: nenhuma conta fica negativa,
// mesmo que a pré-checagem do ledger seja contornada
var ErrNegativeBalance = errors.New("balance would become negative")

// Tx é a unidade de escrita completa: ledger, saldos, eventos e apostas.
// Só existe uma Tx de escrita aberta por vez.
type Tx interface {
	betting.Tx
	// leituras do ledger dentro da Tx, para auditar com o lock de escrita
	ledger.Source

	Halt(ctx context.Context, reason string) error
	Resume(ctx context.Context) error

	Commit() error
	Rollback() error
}

// Store expõe a abertura da Tx de escrita e as leituras sobre o estado confirmado
type Store interface {
	BeginWrite(ctx context.Context) (Tx, error)

	Balance(ctx context.Context, acc ledger.AccountID) (int64, error)
	Balances(ctx context.Context) (map[ledger.AccountID]int64, error)
	Transactions(ctx context.Context, afterSeq int64, limit int) ([]ledger.Transaction, error)
	// History retorna as transações que tocam a conta, da mais recente para a mais antiga
	History(ctx context.Context, acc ledger.AccountID, limit int) ([]ledger.Transaction, error)

	Event(ctx context.Context, id string) (*betting.Event, error)
	Bet(ctx context.Context, id string) (*betting.Bet, error)
	EventBets(ctx context.Context, eventID string) ([]betting.Bet, error)

	Halted(ctx context.Context) (halted bool, reason string, err error)
	Ping(ctx context.Context) error
}
