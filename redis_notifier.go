package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannelPrefix is prepended to the stream ID to name the channel
const DefaultRedisChannelPrefix = "events:"

type redisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier publishes JSON messages on Redis pub/sub. Packets go to
// the channel of their stream; any other value goes to prefix+"all".
func NewRedisNotifier(client *redis.Client, prefix string) Notifier {
	if prefix == "" {
		prefix = DefaultRedisChannelPrefix
	}
	return &redisNotifier{
		client: client,
		prefix: prefix,
	}
}

func (p *redisNotifier) Publish(data interface{}) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	channel := p.prefix + "all"
	if packet, ok := data.(Packet); ok {
		channel = p.prefix + packet.StreamID
	}

	err = p.client.Publish(context.Background(), channel, rawData).Err()
	if err != nil {
		return fmt.Errorf("failed publishing to %s: %w", channel, err)
	}
	return nil
}
