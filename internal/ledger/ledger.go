package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Tx é a unidade atômica de escrita usada pelo Ledger.
// Quem abre a Tx garante que só existe um escritor por vez;
// Head e AddBalance só são chamados de dentro de Append.
type Tx interface {
	Head(ctx context.Context) (seq int64, hash string, err error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	Balance(ctx context.Context, acc AccountID) (int64, error)
	AddBalance(ctx context.Context, acc AccountID, delta int64) error
	Halted(ctx context.Context) (halted bool, reason string, err error)
}

// Ledger grava transações encadeadas e aplica os deltas de saldo na mesma Tx
type Ledger struct {
	now func() time.Time
}

// New cria um Ledger com relógio de parede
func New() *Ledger { return &Ledger{now: time.Now} }

// WithClock troca o relógio (testes)
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Append valida a entrada, encadeia o hash e aplica o efeito de saldo.
// Se qualquer passo falhar nada é gravado: o chamador faz rollback da Tx.
func (l *Ledger) Append(ctx context.Context, tx Tx, e Entry) (*Transaction, error) {
	if err := validate(e); err != nil {
		return nil, err
	}

	halted, reason, err := tx.Halted(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger state: %w", err)
	}
	if halted {
		return nil, fmt.Errorf("%w (%s)", ErrLedgerHalted, reason)
	}

	// pré-checagem de saldo antes de qualquer escrita
	if e.Kind.Debits() && e.From != nil && e.AmountCents > 0 {
		bal, err := tx.Balance(ctx, *e.From)
		if err != nil {
			return nil, fmt.Errorf("read balance %s: %w", *e.From, err)
		}
		if bal < e.AmountCents {
			return nil, ErrInsufficientFunds
		}
	}

	payload, err := encodePayload(e.Payload)
	if err != nil {
		return nil, err
	}

	seq, prev, err := tx.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	t := &Transaction{
		Sequence:     seq + 1,
		PreviousHash: prev,
		From:         e.From,
		To:           e.To,
		AmountCents:  e.AmountCents,
		Kind:         e.Kind,
		Payload:      payload,
		CreatedAt:    l.now().UTC().Truncate(time.Microsecond),
	}
	t.Hash = NextHash(prev, t.Fields())

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := applyBalances(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func validate(e Entry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if e.AmountCents < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidAmount, e.AmountCents)
	}
	eff := effects[e.Kind]
	if eff.needFrom && e.From == nil {
		return fmt.Errorf("%w: %s requires from_account", ErrInvalidEntry, e.Kind)
	}
	if eff.needTo && e.To == nil {
		return fmt.Errorf("%w: %s requires to_account", ErrInvalidEntry, e.Kind)
	}
	switch e.Kind {
	case KindActivityLog:
		if e.AmountCents != 0 {
			return fmt.Errorf("%w: activity_log must carry zero amount", ErrInvalidAmount)
		}
	case KindDeposit, KindWithdrawal:
		if e.AmountCents == 0 {
			return fmt.Errorf("%w: %s of zero", ErrInvalidAmount, e.Kind)
		}
	}
	if e.Kind == KindDeposit && e.From != nil {
		return fmt.Errorf("%w: deposit has no from_account", ErrInvalidEntry)
	}
	if e.Kind == KindWithdrawal && e.To != nil {
		return fmt.Errorf("%w: withdrawal has no to_account", ErrInvalidEntry)
	}
	if e.From != nil && e.To != nil && *e.From == *e.To {
		return fmt.Errorf("%w: from and to are the same account", ErrInvalidEntry)
	}
	return nil
}

func encodePayload(p any) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: payload is not valid json", ErrInvalidEntry)
		}
		return v, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrInvalidEntry, err)
	}
	return b, nil
}
