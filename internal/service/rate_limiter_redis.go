package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisSendTimeout = 500 * time.Millisecond

// sendCounter es la parte de *redis.Client que usa el limiter.
type sendCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisSendRateLimiter cuenta envios por remitente en buckets de ventana fija
// compartidos entre procesos. Cada bucket es una clave propia
// chat:send:<remitente>:<bucket>, de modo que el corte de ventana no depende
// del TTL.
type redisSendRateLimiter struct {
	counter sendCounter
	logger  *zap.Logger
	window  time.Duration
	max     int64
	now     func() time.Time
}

func NewRedisSendRateLimiter(client *redis.Client, logger *zap.Logger, window time.Duration, max int) SendRateLimiter {
	if client == nil {
		return nil
	}
	return newRedisSendRateLimiter(client, logger, window, max)
}

func newRedisSendRateLimiter(counter sendCounter, logger *zap.Logger, window time.Duration, max int) *redisSendRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window < time.Second {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisSendRateLimiter{
		counter: counter,
		logger:  logger,
		window:  window,
		max:     int64(max),
		now:     time.Now,
	}
}

func (l *redisSendRateLimiter) bucketKey(sender string, at time.Time) string {
	return fmt.Sprintf("chat:send:%s:%d", sender, at.UnixNano()/int64(l.window))
}

// Allow deja pasar el envio si Redis no responde. Cada fallo queda en el log
// con el remitente afectado.
func (l *redisSendRateLimiter) Allow(key string) bool {
	if l == nil || l.counter == nil {
		return true
	}
	sender := strings.TrimSpace(key)
	if sender == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisSendTimeout)
	defer cancel()

	bucket := l.bucketKey(sender, l.now())
	count, err := l.counter.Incr(ctx, bucket).Result()
	if err != nil {
		l.logger.Warn("send rate limit unavailable, allowing message",
			zap.String("sender_id", sender),
			zap.Error(err),
		)
		return true
	}
	if count == 1 {
		// El bucket sobrevive una ventana extra para tolerar desfase de relojes.
		if err := l.counter.Expire(ctx, bucket, 2*l.window).Err(); err != nil {
			l.logger.Warn("send rate limit bucket without expiry",
				zap.String("key", bucket),
				zap.Error(err),
			)
		}
	}
	return count <= l.max
}
