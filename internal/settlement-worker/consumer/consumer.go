package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/settlement-worker/client"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

const (
	defaultRetries = 3
	defaultBackoff = 300 * time.Millisecond
	maxHoldBackoff = 30 * time.Second
)

var errInvalidResult = errors.New("invalid event result")

// MessageReader é o subconjunto do kafka.Reader usado pelo loop (commit manual)
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Settler liquida ou cancela um evento (bet-service via HTTP)
type Settler interface {
	Settle(ctx context.Context, eventID string, winner betting.Winner) (*betting.Report, error)
	Cancel(ctx context.Context, eventID string) (*betting.Report, error)
}

// Processor consome event_results, chama o bet-service e, se não der,
// manda a mensagem original para a DLQ. O offset só é confirmado depois
// que a mensagem foi liquidada ou foi para a DLQ.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Settler Settler
	DLQ     MessageWriter // nil: só loga e descarta

	Retries int           // tentativas extras em erro transitório (default 3)
	Backoff time.Duration // espera base, cresce linear por tentativa (default 300ms)

	OnConsumed     func()       // métricas (counter++)
	OnSettled      func(string) // outcome
	OnDeadLettered func()
	OnError        func(string) // métricas por fase
}

// Run inicia o loop principal de consumo; retorna quando o contexto for cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.hold(ctx, m); err != nil {
			return err
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.onError("commit")
		}
	}
}

// hold repete Handle na mesma mensagem até ela ser liquidada ou ir para a DLQ.
// Não pode seguir para a próxima: o commit de um offset maior confirma este também.
func (p *Processor) hold(ctx context.Context, m kafka.Message) error {
	wait := p.backoff()
	for {
		err := p.Handle(ctx, m)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Log.Error("event result not handled, holding offset",
			zap.String("key", string(m.Key)),
			zap.Int64("offset", m.Offset),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		if wait *= 2; wait > maxHoldBackoff {
			wait = maxHoldBackoff
		}
	}
}

// Handle processa uma mensagem. Retorna erro só quando nem a DLQ aceitou.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var res events.EventResult
	if err := json.Unmarshal(m.Value, &res); err != nil {
		p.onError("decode")
		return p.deadLetter(ctx, m, fmt.Errorf("%w: %v", errInvalidResult, err), 0)
	}
	if err := validate(res); err != nil {
		p.onError("validate")
		return p.deadLetter(ctx, m, err, 0)
	}

	attempts, err := p.apply(ctx, res)
	if err == nil {
		if p.OnSettled != nil {
			p.OnSettled(res.Outcome)
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.onError("settle")
	return p.deadLetter(ctx, m, err, attempts)
}

// apply chama o bet-service repetindo erros transitórios; settle/cancel são idempotentes
func (p *Processor) apply(ctx context.Context, res events.EventResult) (int, error) {
	retries := p.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	backoff := p.backoff()

	var err error
	for attempt := 1; ; attempt++ {
		var rep *betting.Report
		rep, err = p.call(ctx, res)
		if err == nil {
			p.Log.Info("event result applied",
				zap.String("eventId", res.EventID),
				zap.String("outcome", res.Outcome),
				zap.String("status", string(rep.Status)),
				zap.Int("paid", len(rep.PaidBets)),
				zap.Int("refunded", len(rep.RefundedBets)),
				zap.Int("attempts", attempt),
			)
			return attempt, nil
		}
		if !client.Retriable(err) || attempt > retries {
			return attempt, err
		}
		p.Log.Warn("settle failed, retrying", zap.String("eventId", res.EventID), zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, backoff*time.Duration(attempt)) {
			return attempt, ctx.Err()
		}
	}
}

func (p *Processor) call(ctx context.Context, res events.EventResult) (*betting.Report, error) {
	if res.Outcome == events.OutcomeCancel {
		return p.Settler.Cancel(ctx, res.EventID)
	}
	return p.Settler.Settle(ctx, res.EventID, betting.Winner(res.Outcome))
}

// deadLetter reenvia a mensagem original com o motivo nos headers
func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error, attempts int) error {
	p.Log.Error("event result dead-lettered", zap.String("key", string(m.Key)), zap.Int("attempts", attempts), zap.Error(cause))
	if p.DLQ == nil {
		return nil
	}
	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
			{Key: "source_topic", Value: []byte(m.Topic)},
		},
	}
	if err := p.DLQ.WriteMessages(ctx, dl); err != nil {
		p.onError("dlq")
		return fmt.Errorf("write dlq: %w", err)
	}
	if p.OnDeadLettered != nil {
		p.OnDeadLettered()
	}
	return nil
}

func (p *Processor) backoff() time.Duration {
	if p.Backoff <= 0 {
		return defaultBackoff
	}
	return p.Backoff
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}

func validate(res events.EventResult) error {
	if res.EventID == "" {
		return fmt.Errorf("%w: event_id required", errInvalidResult)
	}
	if res.Outcome != events.OutcomeCancel && !betting.Winner(res.Outcome).Valid() {
		return fmt.Errorf("%w: outcome %q", errInvalidResult, res.Outcome)
	}
	return nil
}

// sleep espera d ou até o contexto acabar; false se cancelado
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
