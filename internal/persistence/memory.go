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
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a single-process Store used by unit tests and the
// dependency-free demo mode. A single mutex stands in for Redis's
// single-threaded script execution, so the compound operations have the
// same atomicity the Lua scripts provide.
//
// Not for multi-instance deployments: nothing here is shared across
// processes.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	zsets   map[string][]zmember
	lists   map[string][]string
	expiry  map[string]time.Time
	skew    time.Duration // test clock offset, see Advance
}

type zmember struct {
	score  int64
	member string
	seq    int64 // insertion order; breaks score ties like Redis lexicographic ids do
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string][]zmember),
		lists:   make(map[string][]string),
		expiry:  make(map[string]time.Time),
	}
}

// Advance shifts the store's notion of now forward. Tests use it to expire
// payment records without sleeping.
func (s *MemoryStore) Advance(d time.Duration) {
	s.mu.Lock()
	s.skew += d
	s.mu.Unlock()
}

func (s *MemoryStore) now() time.Time { return time.Now().Add(s.skew) }

// expired reports and lazily deletes an expired string key. Caller holds mu.
func (s *MemoryStore) expired(key string) bool {
	dl, ok := s.expiry[key]
	if !ok || s.now().Before(dl) {
		return false
	}
	delete(s.strings, key)
	delete(s.expiry, key)
	return true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		return "", false, nil
	}
	v, ok := s.strings[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *MemoryStore) setLocked(key, value string, ttl time.Duration) {
	s.strings[key] = value
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key, delta), nil
}

func (s *MemoryStore) incrLocked(key string, delta int64) int64 {
	s.expired(key)
	n, _ := strconv.ParseInt(s.strings[key], 10, 64)
	n += delta
	s.strings[key] = strconv.FormatInt(n, 10)
	return n
}

func (s *MemoryStore) CreatePayment(_ context.Context, w PaymentWrite) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expired(w.PaymentKey) {
		if _, exists := s.strings[w.PaymentKey]; exists {
			return false, nil
		}
	}
	s.setLocked(w.PaymentKey, w.Record, w.TTL)
	s.incrLocked(TotalAmountKey, w.Amount)
	s.incrLocked(AmountCountKey(w.Amount), 1)
	if w.OrderKey != "" {
		s.setLocked(w.OrderKey, w.OrderValue, w.TTL)
	}
	return true, nil
}

func (s *MemoryStore) ReserveSlot(_ context.Context, key string, max int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.incrLocked(key, 1)
	if used > max {
		s.incrLocked(key, -1)
		return false, nil
	}
	if used == 1 && ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	}
	return true, nil
}

func (s *MemoryStore) ReleaseSlot(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrLocked(key, -1)
	return nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, score int64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs := s.zsets[key]
	for i := range zs {
		if zs[i].member == member {
			zs[i].score = score
			return nil
		}
	}
	s.zsets[key] = append(zs, zmember{score: score, member: member, seq: int64(len(zs))})
	return nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs := make([]zmember, len(s.zsets[key]))
	copy(zs, s.zsets[key])
	sort.SliceStable(zs, func(i, j int) bool {
		if zs[i].score != zs[j].score {
			return zs[i].score < zs[j].score
		}
		return zs[i].seq < zs[j].seq
	})
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.member
	}
	return out, nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) RPush(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], value)
	return nil
}

func (s *MemoryStore) LRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lists[key]))
	copy(out, s.lists[key])
	return out, nil
}
