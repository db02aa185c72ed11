// README: Change notifier; publishes entity mutations to a real-time channel.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"roadcall/internal/types"
)

// Notifier fans out entity mutations so clients observe state changes
// without polling. Publish is fire-and-forget: implementations must never
// fail the operation that triggered the notification. Callers publish only
// after the mutation is committed.
type Notifier interface {
	Publish(ctx context.Context, entity string, id types.ID, payload any)
}

// Envelope is the wire shape of a change notification.
type Envelope struct {
	Entity     string    `json:"entity"`
	EntityID   types.ID  `json:"entity_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RedisNotifier struct {
	client *redis.Client
	log    *zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, log *zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, log: log}
}

// ChannelFor returns the pub/sub channel for an entity type. Transport-level
// concerns (reconnect, polling fallback) belong to subscribers.
func ChannelFor(entity string) string {
	return "roadcall:changes:" + entity
}

func (n *RedisNotifier) Publish(ctx context.Context, entity string, id types.ID, payload any) {
	env := Envelope{
		Entity:     entity,
		EntityID:   id,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		n.log.Error().Err(err).Str("entity", entity).Str("id", string(id)).Msg("notify: marshal failed")
		return
	}
	if err := n.client.Publish(ctx, ChannelFor(entity), body).Err(); err != nil {
		n.log.Error().Err(err).Str("entity", entity).Str("id", string(id)).Msg("notify: publish failed")
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Publish(ctx context.Context, entity string, id types.ID, payload any) {}
