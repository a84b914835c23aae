package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/playperu/promptparty/internal/promptparty"
)

// DefaultChannel is the pub/sub channel audit entries are mirrored to.
const DefaultChannel = "promptparty:events"

// RedisMirror publishes every audit entry on a Redis pub/sub channel so the
// log can be followed live from outside the process.
type RedisMirror struct {
	rdb     *goredis.Client
	channel string
}

func NewRedisMirror(rdb *goredis.Client, channel string) *RedisMirror {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisMirror{rdb: rdb, channel: channel}
}

func (m *RedisMirror) AppendEvent(ctx context.Context, e promptparty.EventLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	return m.rdb.Publish(ctx, m.channel, data).Err()
}

// Tail subscribes to the mirror channel. The returned channel is closed
// when ctx is done or the subscription ends; call the returned func to
// unsubscribe early.
func Tail(ctx context.Context, rdb *goredis.Client, channel string, logger *slog.Logger) (<-chan promptparty.EventLogEntry, func()) {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := rdb.Subscribe(ctx, channel)

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan promptparty.EventLogEntry, 16)

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e promptparty.EventLogEntry
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					logger.Warn("decoding mirrored entry", "error", err)
					continue
				}
				select {
				case out <- e:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return out, func() {
		cancel()
		_ = sub.Close()
	}
}
