package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/p2p-bet-ledger/internal/ledger"
)

const balanceKeyPrefix = "balance:"

// putScript grava {seq, cents} em cada chave só se o seq guardado for menor.
// ARGV: seq, ttl_ms, cents...
var putScript = redis.NewScript(`
local seq = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
for i, key in ipairs(KEYS) do
  local cur = tonumber(redis.call('HGET', key, 'seq') or '-1')
  if cur < seq then
    redis.call('HSET', key, 'seq', ARGV[1], 'cents', ARGV[i + 2])
    redis.call('PEXPIRE', key, ttl)
  end
end
return 1
`)

// fillScript preenche apenas chave ausente, com seq 0 (qualquer Put sobrescreve)
var fillScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'seq', '0', 'cents', ARGV[1])
  redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
  return 1
end
return 0
`)

// BalanceCache guarda saldos confirmados no Redis, um hash por conta
type BalanceCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewBalanceCache(rdb redis.Cmdable, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

func balanceKey(acc ledger.AccountID) string { return balanceKeyPrefix + string(acc) }

func (c *BalanceCache) Get(ctx context.Context, acc ledger.AccountID) (int64, bool, error) {
	v, err := c.rdb.HGet(ctx, balanceKey(acc), "cents").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis hget: %w", err)
	}
	cents, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cached balance %q: %w", v, err)
	}
	return cents, true, nil
}

func (c *BalanceCache) Fill(ctx context.Context, acc ledger.AccountID, cents int64) error {
	err := fillScript.Run(ctx, c.rdb, []string{balanceKey(acc)}, cents, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis fill: %w", err)
	}
	return nil
}

func (c *BalanceCache) Put(ctx context.Context, seq int64, balances map[ledger.AccountID]int64) error {
	if len(balances) == 0 {
		return nil
	}
	keys := make([]string, 0, len(balances))
	args := make([]any, 0, len(balances)+2)
	args = append(args, seq, c.ttl.Milliseconds())
	for acc, cents := range balances {
		keys = append(keys, balanceKey(acc))
		args = append(args, cents)
	}
	if err := putScript.Run(ctx, c.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis put balances: %w", err)
	}
	return nil
}

// Invalidate apaga as chaves das contas (usado quando o Put pós-commit falha)
func (c *BalanceCache) Invalidate(ctx context.Context, accs ...ledger.AccountID) error {
	if len(accs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(accs))
	for _, acc := range accs {
		keys = append(keys, balanceKey(acc))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del balances: %w", err)
	}
	return nil
}
