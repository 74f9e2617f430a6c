// Package auditor roda a verificação completa do ledger em intervalo fixo
// e publica um alerta de integridade quando ela falha.
package auditor

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	skafka "github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

type Verifier interface {
	VerifyLedger(ctx context.Context) (ledger.Report, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Auditor struct {
	Log      *zap.Logger
	Verifier Verifier
	Alerts   MessageWriter // nil: só loga
	Interval time.Duration

	OnRun   func(valid bool)
	OnError func(string)

	now       func() time.Time
	lastAlert string // evita repetir o mesmo alerta a cada ciclo
}

// Run verifica logo ao subir e depois a cada Interval, até o contexto acabar
func (a *Auditor) Run(ctx context.Context) error {
	t := time.NewTicker(a.Interval)
	defer t.Stop()
	for {
		if _, err := a.Check(ctx); err != nil && ctx.Err() == nil {
			a.Log.Warn("ledger audit failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Check executa uma verificação; um alerta é publicado a cada falha nova
func (a *Auditor) Check(ctx context.Context) (ledger.Report, error) {
	rep, err := a.Verifier.VerifyLedger(ctx)
	if err != nil {
		a.onError("verify")
		return rep, err
	}
	if a.OnRun != nil {
		a.OnRun(rep.Valid)
	}
	if rep.Valid {
		if a.lastAlert != "" {
			a.Log.Info("ledger integrity restored")
		}
		a.lastAlert = ""
		return rep, nil
	}

	sig := signature(rep)
	if sig == a.lastAlert {
		return rep, nil
	}
	if err := a.alert(ctx, rep); err != nil {
		a.onError("alert")
		return rep, err
	}
	a.lastAlert = sig
	return rep, nil
}

func (a *Auditor) alert(ctx context.Context, rep ledger.Report) error {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	al := events.IntegrityAlert{
		BrokenAtSequence: rep.BrokenAtSequence,
		Reason:           rep.Reason,
		Checked:          rep.Checked,
		DetectedAt:       now().UTC(),
	}
	for _, acc := range rep.BalanceMismatches {
		al.BalanceMismatches = append(al.BalanceMismatches, string(acc))
	}
	a.Log.Error("ledger integrity alert", zap.String("reason", rep.Reason), zap.Int64("checked", rep.Checked))
	if a.Alerts == nil {
		return nil
	}
	msg, err := skafka.JSONMessage("ledger", al)
	if err != nil {
		return err
	}
	return a.Alerts.WriteMessages(ctx, msg)
}

func (a *Auditor) onError(phase string) {
	if a.OnError != nil {
		a.OnError(phase)
	}
}

func signature(rep ledger.Report) string {
	if rep.BrokenAtSequence != nil {
		return fmt.Sprintf("%d|%s", *rep.BrokenAtSequence, rep.Reason)
	}
	return fmt.Sprintf("-|%s|%v", rep.Reason, rep.BalanceMismatches)
}
