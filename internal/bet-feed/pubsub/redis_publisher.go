package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

type RedisBroadcaster struct {
	r       redis.Cmdable
	channel string
}

func NewRedisBroadcaster(r redis.Cmdable, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

// Publish serializa o update e envia no canal do feed
func (b *RedisBroadcaster) Publish(ctx context.Context, u WSUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// Payload padrão para o WS do bet-feed
type WSUpdate struct {
	EventID string `json:"eventId"`
	Payload any    `json:"payload"`
}
