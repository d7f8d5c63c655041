package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis provides the per-order transition lock. Only one state transition may
// run against an order at a time, whatever request carried it in.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getOrderLockDuration returns the lock TTL from the environment or the
// default. The TTL is a safety net against a crashed holder, not a lease the
// code renews.
func (r *Redis) getOrderLockDuration() time.Duration {
	defaultDuration := 2 * time.Minute

	lockTTLStr := os.Getenv("ORDER_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid ORDER_LOCK_TTL_SECONDS value '" + lockTTLStr + "', using default 2 minutes")
		return defaultDuration
	}

	return time.Duration(lockTTLSec) * time.Second
}

// LockOrder takes the transition lock for an order. The owner token tells
// apart the holder so an unrelated unlock cannot release someone else's lock.
func (r *Redis) LockOrder(ctx context.Context, orderID, owner string) (bool, error) {
	key := "order_lock:" + orderID
	ok, err := r.Client.SetNX(ctx, key, owner, r.getOrderLockDuration()).Result()
	return ok, err
}

// UnlockOrder releases the transition lock if this owner still holds it.
func (r *Redis) UnlockOrder(ctx context.Context, orderID, owner string) error {
	key := fmt.Sprintf("order_lock:%s", orderID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// IsLocked reports whether an order currently holds a transition lock,
// without taking it.
func (r *Redis) IsLocked(ctx context.Context, orderID string) (bool, error) {
	_, err := r.Client.Get(ctx, "order_lock:"+orderID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
