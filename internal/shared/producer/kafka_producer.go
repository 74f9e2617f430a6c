package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/ledger"
	"github.com/radieske/p2p-bet-ledger/internal/engine"
	skafka "github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

// MessageWriter é o subconjunto do kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica o que o engine confirmou: transações em
// ledger_transactions e mudanças de aposta em bet_updates.
// Writer nil desliga o tópico correspondente.
type KafkaPublisher struct {
	Transactions MessageWriter
	BetUpdates   MessageWriter
	now          func() time.Time
}

var _ engine.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(transactions, betUpdates MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Transactions: transactions, BetUpdates: betUpdates, now: time.Now}
}

// PublishTransactions usa o sequence_no como chave; um único lote por commit
func (p *KafkaPublisher) PublishTransactions(ctx context.Context, txns []ledger.Transaction) error {
	if p.Transactions == nil || len(txns) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(txns))
	for i := range txns {
		msg, err := skafka.JSONMessage(fmt.Sprint(txns[i].Sequence), TransactionEvent(&txns[i]))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.Transactions.WriteMessages(ctx, msgs...)
}

// PublishBetUpdates usa o event_id como chave, mantendo a ordem por evento
func (p *KafkaPublisher) PublishBetUpdates(ctx context.Context, bets []betting.Bet) error {
	if p.BetUpdates == nil || len(bets) == 0 {
		return nil
	}
	ts := p.now()
	msgs := make([]kafka.Message, 0, len(bets))
	for i := range bets {
		msg, err := skafka.JSONMessage(bets[i].EventID, BetUpdateEvent(&bets[i], ts))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.BetUpdates.WriteMessages(ctx, msgs...)
}

func TransactionEvent(t *ledger.Transaction) events.TransactionAppended {
	return events.TransactionAppended{
		Sequence:     t.Sequence,
		Hash:         t.Hash,
		PreviousHash: t.PreviousHash,
		From:         accountString(t.From),
		To:           accountString(t.To),
		AmountCents:  t.AmountCents,
		Kind:         string(t.Kind),
		Payload:      t.Payload,
		CreatedAt:    t.CreatedAt,
	}
}

func BetUpdateEvent(b *betting.Bet, ts time.Time) events.BetUpdate {
	e := events.BetUpdate{
		BetID:       b.ID,
		EventID:     b.EventID,
		UserID:      b.UserID,
		Side:        string(b.Side),
		AmountCents: b.AmountCents,
		Status:      string(b.Status),
		TsUnixMs:    ts.UnixMilli(),
		UpdatedAt:   ts.UTC(),
	}
	if b.CounterpartyBetID != nil {
		e.CounterpartyBetID = *b.CounterpartyBetID
	}
	return e
}

func accountString(acc *ledger.AccountID) *string {
	if acc == nil {
		return nil
	}
	s := string(*acc)
	return &s
}
