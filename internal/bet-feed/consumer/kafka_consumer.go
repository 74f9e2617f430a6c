package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/bet-feed/pubsub"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type BetCache interface {
	SetCurrent(ctx context.Context, u events.BetUpdate) error
}

type Broadcaster interface {
	Publish(ctx context.Context, u pubsub.WSUpdate) error
}

// Processor consome bet_updates do Kafka, atualiza o cache e faz o broadcast
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	Cache       BetCache
	Broadcaster Broadcaster

	OnConsumed  func()       // métricas (counter++)
	OnCached    func()       // métricas
	OnBroadcast func()       // métricas
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.handle(ctx, m.Value)
	}
}

func (p *Processor) handle(ctx context.Context, value []byte) {
	var u events.BetUpdate
	if err := json.Unmarshal(value, &u); err != nil || u.BetID == "" || u.EventID == "" {
		p.Log.Warn("invalid message", zap.Error(err))
		p.onError("decode")
		return
	}

	// cache falho não impede o broadcast
	if err := p.Cache.SetCurrent(ctx, u); err != nil {
		p.Log.Warn("redis set failed", zap.String("betId", u.BetID), zap.Error(err))
		p.onError("cache")
	} else if p.OnCached != nil {
		p.OnCached()
	}

	if err := p.Broadcaster.Publish(ctx, pubsub.WSUpdate{EventID: u.EventID, Payload: u}); err != nil {
		p.Log.Warn("redis publish failed", zap.String("betId", u.BetID), zap.Error(err))
		p.onError("broadcast")
		return
	}
	if p.OnBroadcast != nil {
		p.OnBroadcast()
	}
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}
