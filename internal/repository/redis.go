package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

// Скрипты меняют запись только пока она находится в статусе pending.
var completeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
  local decoded = cjson.decode(current)
  if decoded["status"] ~= "pending" then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

var releaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
local decoded = cjson.decode(current)
if decoded["status"] == "pending" then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger хранит журнал расчётов в Redis: одна запись без срока жизни на заказ.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLedger подключается к Redis по URL и проверяет соединение.
func NewRedisLedger(ctx context.Context, url, prefix string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisLedgerFromClient(client, prefix), nil
}

// NewRedisLedgerFromClient создаёт журнал поверх готового клиента Redis.
func NewRedisLedgerFromClient(client redis.UniversalClient, prefix string) *RedisLedger {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "rwa-bridge:settlement"
	}

	return &RedisLedger{
		client: client,
		prefix: trimmed,
		now:    time.Now,
	}
}

func (l *RedisLedger) key(orderID string) string {
	return l.prefix + ":" + orderID
}

// Close закрывает соединение с Redis.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// Get возвращает запись журнала по идентификатору заказа.
func (l *RedisLedger) Get(ctx context.Context, orderID string) (*model.Settlement, error) {
	raw, err := l.client.Get(ctx, l.key(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}

	var s model.Settlement
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode settlement %s: %w", orderID, err)
	}
	return &s, nil
}

// Reserve создаёт ожидающую запись через SETNX.
func (l *RedisLedger) Reserve(ctx context.Context, orderID string) (bool, error) {
	payload, err := json.Marshal(model.Settlement{
		OrderID:   orderID,
		Status:    model.SettlementStatusPending,
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encode settlement: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key(orderID), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("reserve settlement: %w", err)
	}
	return ok, nil
}

// Complete записывает итог расчёта, если запись отсутствует или ещё ожидает завершения.
func (l *RedisLedger) Complete(ctx context.Context, s model.Settlement) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settlement: %w", err)
	}

	written, err := completeScript.Run(ctx, l.client, []string{l.key(s.OrderID)}, payload).Int64()
	if err != nil {
		return fmt.Errorf("complete settlement: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("%w: %s", ErrSettlementExists, s.OrderID)
	}
	return nil
}

// Release удаляет ожидающую запись по заказу.
func (l *RedisLedger) Release(ctx context.Context, orderID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(orderID)}).Err(); err != nil {
		return fmt.Errorf("release settlement: %w", err)
	}
	return nil
}
