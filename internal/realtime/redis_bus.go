package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBus distribuye notificaciones entre procesos usando pub/sub de Redis.
type RedisBus struct {
	client redisPubSubClient
	prefix string
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client: client,
		prefix: "chat:conversation:",
		logger: logger,
	}
}

func (b *RedisBus) channel(conversationID string) string {
	return b.prefix + conversationID
}

func (b *RedisBus) Publish(ctx context.Context, n Notification) error {
	if err := n.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(n.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %w", ErrTransport, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, conversationID string, h Handler) (Subscription, error) {
	if err := validateSubscribe(conversationID, h); err != nil {
		return nil, err
	}

	ps := b.client.Subscribe(ctx, b.channel(conversationID))
	// Receive confirma la suscripcion antes de devolver el handle.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %w", ErrTransport, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(conversationID, cancel)

	go func() {
		defer close(sub.done)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if subCtx.Err() == nil {
						sub.fail(fmt.Errorf("%w: channel closed", ErrTransport))
					}
					return
				}
				n, err := decodeNotification(msg.Payload)
				if err != nil || n.ConversationID != conversationID {
					b.logger.Warn("discarding realtime payload",
						zap.String("conversation_id", conversationID),
						zap.Error(err),
					)
					continue
				}
				h(subCtx, n)
			}
		}
	}()

	return sub, nil
}

func decodeNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if err := n.validate(); err != nil {
		return Notification{}, err
	}
	return n, nil
}
