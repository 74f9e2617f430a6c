package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/store"
)

// VerifyLedger reexecuta o ledger inteiro com o lock de escrita, para ler um
// snapshot consistente. Se a cadeia ou os saldos não batem, o ledger é
// marcado como halted e novas escritas falham até ResumeLedger.
func (e *Engine) VerifyLedger(ctx context.Context) (ledger.Report, error) {
	var rep ledger.Report
	err := e.write(ctx, "verify_ledger", func(tx store.Tx) error {
		r, err := ledger.Verify(ctx, tx)
		if err != nil {
			return err
		}
		rep = r
		if r.Valid {
			return nil
		}
		halted, _, err := tx.Halted(ctx)
		if err != nil {
			return fmt.Errorf("read ledger state: %w", err)
		}
		if halted {
			return nil
		}
		return tx.Halt(ctx, haltReason(r))
	})
	if err != nil {
		return ledger.Report{}, err
	}

	e.metrics.verified(rep.Valid)
	if !rep.Valid {
		fields := []zap.Field{zap.String("reason", rep.Reason), zap.Int64("checked", rep.Checked)}
		if rep.BrokenAtSequence != nil {
			fields = append(fields, zap.Int64("broken_at_sequence", *rep.BrokenAtSequence))
		}
		if len(rep.BalanceMismatches) > 0 {
			fields = append(fields, zap.Int("balance_mismatches", len(rep.BalanceMismatches)))
		}
		e.log.Error("ledger integrity violation, appends halted", fields...)
	}
	return rep, nil
}

// ResumeLedger libera as escritas depois da remediação manual.
// Só funciona se uma verificação nova passar; grava activity_log com o operador.
func (e *Engine) ResumeLedger(ctx context.Context, operator string) (*ledger.Transaction, error) {
	acc, err := userAccount(operator)
	if err != nil {
		return nil, err
	}
	var out *ledger.Transaction
	err = e.write(ctx, "resume_ledger", func(tx store.Tx) error {
		rep, err := ledger.Verify(ctx, tx)
		if err != nil {
			return err
		}
		if !rep.Valid {
			return fmt.Errorf("%w: %s", ErrLedgerStillBroken, rep.Reason)
		}
		halted, reason, err := tx.Halted(ctx)
		if err != nil {
			return fmt.Errorf("read ledger state: %w", err)
		}
		if err := tx.Resume(ctx); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		t, err := e.ledger.Append(ctx, tx, ledger.Entry{
			From:    acc.Ptr(),
			Kind:    ledger.KindActivityLog,
			Payload: map[string]any{"activity": "ledger_resumed", "was_halted": halted, "halt_reason": reason},
		})
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.verified(true)
	e.log.Warn("ledger resumed", zap.String("operator", operator), zap.Int64("seq", out.Sequence))
	return out, nil
}

// Halted informa se o ledger está parado por violação de integridade
func (e *Engine) Halted(ctx context.Context) (bool, string, error) {
	return e.store.Halted(ctx)
}

func haltReason(r ledger.Report) string {
	if r.BrokenAtSequence != nil {
		return fmt.Sprintf("chain broken at sequence %d: %s", *r.BrokenAtSequence, r.Reason)
	}
	return r.Reason
}
