package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

// RedisCache guarda o último estado conhecido de cada aposta, num hash por evento
// Client: cliente Redis
// TTL: expiração do hash do evento, renovada a cada atualização
type RedisCache struct {
	Client redis.Cmdable
	TTL    time.Duration
}

func NewRedisCache(c redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// key gera a chave Redis das apostas de um evento
func key(eventID string) string { return "bets:event:" + eventID }

// SetCurrent grava o estado da aposta e renova o TTL do evento
func (r *RedisCache) SetCurrent(ctx context.Context, u events.BetUpdate) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key(u.EventID), u.BetID, b)
	pipe.Expire(ctx, key(u.EventID), r.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set bet %s: %w", u.BetID, err)
	}
	return nil
}

// EventBets lista as apostas em cache do evento, mais antigas primeiro
func (r *RedisCache) EventBets(ctx context.Context, eventID string) ([]events.BetUpdate, error) {
	all, err := r.Client.HGetAll(ctx, key(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]events.BetUpdate, 0, len(all))
	for id, raw := range all {
		var u events.BetUpdate
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("cached bet %s: %w", id, err)
		}
		out = append(out, u)
	}
	SortUpdates(out)
	return out, nil
}

// Bet retorna o estado em cache; ok=false quando ausente
func (r *RedisCache) Bet(ctx context.Context, eventID, betID string) (events.BetUpdate, bool, error) {
	var u events.BetUpdate
	raw, err := r.Client.HGet(ctx, key(eventID), betID).Bytes()
	if errors.Is(err, redis.Nil) {
		return u, false, nil
	}
	if err != nil {
		return u, false, fmt.Errorf("redis hget: %w", err)
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, false, err
	}
	return u, true, nil
}

// SortUpdates ordena por última atualização, com bet_id como desempate
func SortUpdates(us []events.BetUpdate) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].TsUnixMs != us[j].TsUnixMs {
			return us[i].TsUnixMs < us[j].TsUnixMs
		}
		return us[i].BetID < us[j].BetID
	})
}
