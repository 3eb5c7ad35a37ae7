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

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"storyfund/internal/persistence"
	"storyfund/internal/telemetry"
)

// RetentionTTL is how long a payment record and its usage counters live.
// After expiry the payment is treated as never having existed.
const RetentionTTL = 30 * 24 * time.Hour

// Ledger maps payment identifiers to their verified amount, tier and
// remaining quota. Record is the single idempotent entry point both
// provider adapters funnel into.
type Ledger struct {
	store persistence.Store
	ttl   time.Duration
}

// NewLedger builds a ledger over the shared store with the default
// 30-day retention window.
func NewLedger(store persistence.Store) *Ledger {
	return &Ledger{store: store, ttl: RetentionTTL}
}

// NewLedgerWithTTL overrides the retention window. Used by tests.
func NewLedgerWithTTL(store persistence.Store, ttl time.Duration) *Ledger {
	return &Ledger{store: store, ttl: ttl}
}

// VerifiedPayment is the provider-neutral input to Record: a payment one of
// the adapters has already confirmed with its gateway.
type VerifiedPayment struct {
	// PaymentID is the canonical payment key: provider-prefixed for the
	// webhook path ("cashfree_<orderID>"), the raw gateway transaction id
	// for the Razorpay pull path.
	PaymentID string
	// OrderID is the gateway order identifier, when the provider has one.
	// It is persisted as a mapping so a later pull verification for an
	// order already settled by webhook resolves to the same record.
	OrderID  string
	Provider string
	Amount   int64 // whole currency units, already rounded by the adapter
}

// Record registers a verified payment exactly once. Safe to call any
// number of times, concurrently or sequentially, for the same logical
// payment: only the first call creates a record, assigns a rank and moves
// the aggregate counters; every other call returns the stored record.
//
// The rank INCR is issued unconditionally before the guarded record write,
// so a lost race wastes a rank. Rank density is not guaranteed; rank
// monotonicity and uniqueness of the stored record are.
func (l *Ledger) Record(ctx context.Context, p VerifiedPayment) (*PaymentRecord, error) {
	if p.PaymentID == "" {
		return nil, fmt.Errorf("%w: empty payment identifier", ErrValidation)
	}
	key := persistence.PaymentKey(p.PaymentID)

	// Fast path: the payment is already on record.
	if rec, err := l.load(ctx, key); err != nil {
		return nil, err
	} else if rec != nil {
		telemetry.ObserveDuplicatePayment()
		return rec, nil
	}

	// Rank value generation. This atomic fetch-and-increment is the single
	// serialization point; the SET NX below, not this counter, is the
	// uniqueness guard.
	rank, err := l.store.IncrBy(ctx, persistence.TotalPaymentsKey, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: rank sequencer: %v", ErrStore, err)
	}

	ent := ResolveTier(p.Amount)
	rec := PaymentRecord{
		PaymentID:    p.PaymentID,
		OrderID:      p.OrderID,
		Provider:     p.Provider,
		Amount:       p.Amount,
		Tier:         ent.Tier,
		Rank:         rank,
		MaxSentences: ent.MaxSentences,
		MaxStories:   ent.MaxStories,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal payment record: %w", err)
	}

	w := persistence.PaymentWrite{
		PaymentKey: key,
		Record:     string(raw),
		Amount:     p.Amount,
		TTL:        l.ttl,
	}
	if p.OrderID != "" {
		w.OrderKey = persistence.OrderKey(p.OrderID)
		w.OrderValue = p.PaymentID
	}
	created, err := l.store.CreatePayment(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", ErrStore, err)
	}
	if !created {
		// Lost the creation race; our rank is wasted. Return the winner.
		telemetry.ObserveWastedRank()
		telemetry.ObserveDuplicatePayment()
		winner, err := l.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			// The winner expired between its write and our read. The next
			// attempt re-runs the idempotent path from scratch.
			return nil, fmt.Errorf("%w: payment record vanished after race", ErrStore)
		}
		return winner, nil
	}

	telemetry.ObservePaymentRecorded(p.Provider)
	log.WithFields(log.Fields{
		"payment_id": p.PaymentID,
		"provider":   p.Provider,
		"amount":     p.Amount,
		"tier":       rec.Tier,
		"rank":       rank,
	}).Info("Payment recorded")
	return &rec, nil
}

// Lookup returns the record for a canonical payment identifier, or
// ErrPaymentNotFound when it does not exist or has expired.
func (l *Ledger) Lookup(ctx context.Context, paymentID string) (*PaymentRecord, error) {
	rec, err := l.load(ctx, persistence.PaymentKey(paymentID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrPaymentNotFound
	}
	return rec, nil
}

// ResolveOrder follows the order→payment mapping written by the webhook
// path. ok is false when no mapping exists yet (webhook not landed).
func (l *Ledger) ResolveOrder(ctx context.Context, orderID string) (string, bool, error) {
	v, ok, err := l.store.Get(ctx, persistence.OrderKey(orderID))
	if err != nil {
		return "", false, fmt.Errorf("%w: order lookup: %v", ErrStore, err)
	}
	return v, ok, nil
}

// Entitlements answers the entitlement query for a payment identifier.
// A missing or expired payment yields Exists=false, not an error.
func (l *Ledger) Entitlements(ctx context.Context, paymentID string) (*Entitlements, error) {
	rec, err := l.load(ctx, persistence.PaymentKey(paymentID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &Entitlements{Exists: false}, nil
	}
	usage, err := l.Usage(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &Entitlements{
		Exists:             true,
		Record:             *rec,
		Usage:              *usage,
		Used:               usage.SentencesUsed+usage.StoriesUsed >= 1,
		SentencesRemaining: rec.MaxSentences - usage.SentencesUsed,
		StoriesRemaining:   rec.MaxStories - usage.StoriesUsed,
	}, nil
}

// Usage reads the live usage counters for a payment.
func (l *Ledger) Usage(ctx context.Context, paymentID string) (*Usage, error) {
	sentences, err := l.counter(ctx, persistence.SentencesUsedKey(paymentID))
	if err != nil {
		return nil, err
	}
	stories, err := l.counter(ctx, persistence.StoriesUsedKey(paymentID))
	if err != nil {
		return nil, err
	}
	return &Usage{SentencesUsed: sentences, StoriesUsed: stories}, nil
}

// Stats reads the global aggregates. Display-only; never consulted by the
// entitlement-decision paths.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	total, err := l.counter(ctx, persistence.TotalPaymentsKey)
	if err != nil {
		return nil, err
	}
	amount, err := l.counter(ctx, persistence.TotalAmountKey)
	if err != nil {
		return nil, err
	}
	st := &Stats{TotalPayments: total, TotalAmount: amount, CountByAmount: make(map[int64]int64, len(tierTable))}
	for a := range tierTable {
		n, err := l.counter(ctx, persistence.AmountCountKey(a))
		if err != nil {
			return nil, err
		}
		st.CountByAmount[a] = n
	}
	return st, nil
}

func (l *Ledger) load(ctx context.Context, key string) (*PaymentRecord, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: payment lookup: %v", ErrStore, err)
	}
	if !ok {
		return nil, nil
	}
	var rec PaymentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode payment record %s: %w", key, err)
	}
	return &rec, nil
}

func (l *Ledger) counter(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %s: %v", ErrStore, key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}
