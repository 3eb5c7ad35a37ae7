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

// Package persistence abstracts the shared external store that every
// service instance coordinates through. All cross-request atomicity
// (idempotent payment creation, quota slot reservation) lives behind this
// interface so handler code never performs read-modify-write on shared
// counters.
package persistence

import (
	"context"
	"fmt"
	"time"
)

// Store is the minimal surface the ledger and content service need from the
// external key-value store. Implementations must make CreatePayment and
// ReserveSlot atomic with respect to concurrent callers on any instance.
type Store interface {
	// Get returns the string value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value at key with the given TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrBy atomically adds delta to the integer at key and returns the
	// new value. The key is created at zero if absent.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// CreatePayment atomically stores the payment record only if absent.
	// When the write wins it also applies the aggregate side effects
	// (total-amount counter, per-amount counter, optional order mapping)
	// in the same atomic step. Returns false if the record already existed,
	// in which case no side effect is applied.
	CreatePayment(ctx context.Context, w PaymentWrite) (bool, error)

	// ReserveSlot atomically increments the usage counter at key and
	// validates it against max. If the post-increment value exceeds max the
	// increment is rolled back inside the same atomic step and false is
	// returned. The counter inherits ttl on first creation.
	ReserveSlot(ctx context.Context, key string, max int64, ttl time.Duration) (bool, error)
	// ReleaseSlot decrements a previously reserved slot. Used only to
	// compensate when the entity write after a reservation fails.
	ReleaseSlot(ctx context.Context, key string) error

	// Hash, sorted-set and list primitives backing the content store.
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRange(ctx context.Context, key string) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	RPush(ctx context.Context, key, value string) error
	LRange(ctx context.Context, key string) ([]string, error)
}

// PaymentWrite carries one guarded payment-record creation.
type PaymentWrite struct {
	PaymentKey string // payment:<id>
	Record     string // serialized PaymentRecord
	Amount     int64  // whole currency units; added to the aggregates on win
	OrderKey   string // optional order:<orderID> mapping key; empty to skip
	OrderValue string // canonical payment identifier the mapping points at
	TTL        time.Duration
}

// Key layout helpers. The layout is shared between the Redis and in-memory
// implementations and with the e2e tests, so it lives here.

func PaymentKey(id string) string        { return fmt.Sprintf("payment:%s", id) }
func SentencesUsedKey(id string) string  { return fmt.Sprintf("payment:%s:sentences_used", id) }
func StoriesUsedKey(id string) string    { return fmt.Sprintf("payment:%s:stories_used", id) }
func OrderKey(orderID string) string     { return fmt.Sprintf("order:%s", orderID) }
func StoryMetaKey(id string) string      { return fmt.Sprintf("story:%s:meta", id) }
func StorySentencesKey(id string) string { return fmt.Sprintf("story:%s:sentences", id) }
func SentenceKey(id string) string       { return fmt.Sprintf("sentence:%s", id) }
func AmountCountKey(amount int64) string { return fmt.Sprintf("count:%d", amount) }

// Global counter keys.
const (
	TotalPaymentsKey = "totalPayments"
	TotalAmountKey   = "totalAmount"
	StoryIndexKey    = "story:all"
)
