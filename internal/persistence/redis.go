// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on github.com/redis/go-redis/v9. The two
// compound operations are single Lua EVALs: Redis executes a script
// atomically, which makes them correct across any number of service
// instances without in-process locks.
type RedisStore struct {
	c redis.Cmdable
}

// NewRedisStore connects to a Redis at addr ("127.0.0.1:6379").
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreFromClient wraps an existing client. Used by the e2e tests.
func NewRedisStoreFromClient(c redis.Cmdable) *RedisStore {
	return &RedisStore{c: c}
}

// createPaymentScript is the uniqueness gate of payment recording:
// SET NX on the record key decides the winner, and only the winner applies
// the aggregate side effects. A duplicate request therefore never
// double-counts revenue no matter how the callers interleave.
// Returns 1 when the record was created, 0 when it already existed.
const createPaymentScript = `
local created = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', tonumber(ARGV[2]))
if not created then
  return 0
end
redis.call('INCRBY', KEYS[2], tonumber(ARGV[3]))
redis.call('INCR', KEYS[3])
if ARGV[4] == '1' then
  redis.call('SET', KEYS[4], ARGV[5], 'EX', tonumber(ARGV[2]))
end
return 1
`

// reserveSlotScript implements increment-then-validate: the INCR reserves a
// slot and the rollback happens inside the same script, so concurrent
// callers can never observe an over-consumed counter.
// Returns the post-increment value on success, -1 when quota is exhausted.
const reserveSlotScript = `
local used = redis.call('INCR', KEYS[1])
if used > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return -1
end
if used == 1 and tonumber(ARGV[2]) > 0 then
  redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
end
return used
`

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.c.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) CreatePayment(ctx context.Context, w PaymentWrite) (bool, error) {
	hasOrder := "0"
	orderKey := w.PaymentKey // placeholder; unused when hasOrder == 0
	if w.OrderKey != "" {
		hasOrder = "1"
		orderKey = w.OrderKey
	}
	keys := []string{w.PaymentKey, TotalAmountKey, AmountCountKey(w.Amount), orderKey}
	args := []interface{}{w.Record, int(w.TTL.Seconds()), w.Amount, hasOrder, w.OrderValue}
	res, err := s.c.Eval(ctx, createPaymentScript, keys, args...).Result()
	if err != nil {
		return false, fmt.Errorf("redis create payment %s: %w", w.PaymentKey, err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("redis create payment %s: unexpected reply %v", w.PaymentKey, res)
	}
	return n == 1, nil
}

func (s *RedisStore) ReserveSlot(ctx context.Context, key string, max int64, ttl time.Duration) (bool, error) {
	res, err := s.c.Eval(ctx, reserveSlotScript, []string{key}, max, int(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve %s: %w", key, err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("redis reserve %s: unexpected reply %v", key, res)
	}
	return n > 0, nil
}

func (s *RedisStore) ReleaseSlot(ctx context.Context, key string) error {
	if err := s.c.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.c.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	return m, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	if err := s.c.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZRange(ctx context.Context, key string) ([]string, error) {
	vs, err := s.c.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %s: %w", key, err)
	}
	return vs, nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.c.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) RPush(ctx context.Context, key, value string) error {
	if err := s.c.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LRange(ctx context.Context, key string) ([]string, error) {
	vs, err := s.c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	return vs, nil
}
