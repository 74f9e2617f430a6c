package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	scache "github.com/radieske/p2p-bet-ledger/internal/shared/cache"
	"github.com/radieske/p2p-bet-ledger/pkg/contracts/events"
)

func TestSortUpdates(t *testing.T) {
	us := []events.BetUpdate{
		{BetID: "b3", TsUnixMs: 20},
		{BetID: "b2", TsUnixMs: 10},
		{BetID: "b1", TsUnixMs: 10},
	}
	SortUpdates(us)
	if us[0].BetID != "b1" || us[1].BetID != "b2" || us[2].BetID != "b3" {
		t.Fatalf("order = %v %v %v", us[0].BetID, us[1].BetID, us[2].BetID)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb, err := scache.ConnectRedis(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()

	ctx := context.Background()
	c := NewRedisCache(rdb, time.Minute)
	ev := "e-" + uuid.NewString()

	_ = c.SetCurrent(ctx, events.BetUpdate{BetID: "b1", EventID: ev, Status: "pending", TsUnixMs: 1})
	_ = c.SetCurrent(ctx, events.BetUpdate{BetID: "b2", EventID: ev, Status: "matched", TsUnixMs: 2})
	_ = c.SetCurrent(ctx, events.BetUpdate{BetID: "b1", EventID: ev, Status: "matched", TsUnixMs: 2})

	bets, err := c.EventBets(ctx, ev)
	if err != nil || len(bets) != 2 || bets[0].BetID != "b1" || bets[0].Status != "matched" {
		t.Fatalf("bets = %+v (%v)", bets, err)
	}
	if _, ok, _ := c.Bet(ctx, ev, "nope"); ok {
		t.Fatal("missing bet reported present")
	}
	if ttl := rdb.TTL(ctx, key(ev)).Val(); ttl <= 0 {
		t.Fatalf("ttl = %s", ttl)
	}
}
