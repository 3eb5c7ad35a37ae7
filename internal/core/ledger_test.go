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
	"errors"
	"sync"
	"testing"
	"time"

	"storyfund/internal/persistence"
)

func TestLedger_Record_AssignsRankAndQuota(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()

	rec, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_a", Provider: "razorpay", Amount: 5})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Rank != 1 {
		t.Fatalf("first rank = %d, want 1", rec.Rank)
	}
	if rec.Tier != TierPro || rec.MaxSentences != 3 || rec.MaxStories != 1 {
		t.Fatalf("unexpected entitlement: %+v", rec)
	}

	rec2, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_b", Provider: "razorpay", Amount: 1})
	if err != nil {
		t.Fatalf("record second: %v", err)
	}
	if rec2.Rank != 2 {
		t.Fatalf("second rank = %d, want 2", rec2.Rank)
	}
}

func TestLedger_Record_IdempotentSequential(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()
	p := VerifiedPayment{PaymentID: "pay_dup", Provider: "razorpay", Amount: 11}

	first, err := l.Record(ctx, p)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := l.Record(ctx, p)
		if err != nil {
			t.Fatalf("repeat %d: %v", i, err)
		}
		if again.Rank != first.Rank {
			t.Fatalf("repeat %d rank = %d, want %d", i, again.Rank, first.Rank)
		}
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAmount != 11 {
		t.Fatalf("totalAmount = %d, want 11 (duplicates must not double-count)", stats.TotalAmount)
	}
	if stats.CountByAmount[11] != 1 {
		t.Fatalf("count[11] = %d, want 1", stats.CountByAmount[11])
	}
}

// TestLedger_Record_IdempotentConcurrent is the recording race property:
// any number of concurrent recordings of one identifier yields exactly one
// stored record with one permanent rank.
func TestLedger_Record_IdempotentConcurrent(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()
	const workers = 32

	var wg sync.WaitGroup
	start := make(chan struct{})
	ranks := make([]int64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rec, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_race", Provider: "cashfree", Amount: 5})
			if err != nil {
				errs[i] = err
				return
			}
			ranks[i] = rec.Rank
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ranks[i] != ranks[0] {
			t.Fatalf("worker %d saw rank %d, worker 0 saw %d; one payment must have one rank", i, ranks[i], ranks[0])
		}
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAmount != 5 {
		t.Fatalf("totalAmount = %d, want 5", stats.TotalAmount)
	}
	if stats.CountByAmount[5] != 1 {
		t.Fatalf("count[5] = %d, want 1", stats.CountByAmount[5])
	}
}

func TestLedger_Record_DistinctIdentifiersGetDistinctRanks(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()

	seen := make(map[int64]string)
	var maxRank int64
	for _, id := range []string{"pay_1", "pay_2", "pay_3", "pay_4", "pay_5"} {
		rec, err := l.Record(ctx, VerifiedPayment{PaymentID: id, Provider: "razorpay", Amount: 1})
		if err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
		if prev, dup := seen[rec.Rank]; dup {
			t.Fatalf("rank %d assigned to both %s and %s", rec.Rank, prev, id)
		}
		seen[rec.Rank] = id
		if rec.Rank > maxRank {
			maxRank = rec.Rank
		}
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPayments != maxRank {
		t.Fatalf("totalPayments = %d, want max rank %d", stats.TotalPayments, maxRank)
	}
}

func TestLedger_Record_UnknownAmountRecordedWithZeroQuota(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()

	rec, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_odd", Provider: "razorpay", Amount: 7})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Tier != TierUnknown || rec.MaxSentences != 0 || rec.MaxStories != 0 {
		t.Fatalf("unknown amount entitlement = %+v, want unknown/0/0", rec)
	}
	// Recorded for accounting: rank and totals still move.
	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAmount != 7 {
		t.Fatalf("totalAmount = %d, want 7", stats.TotalAmount)
	}
}

func TestLedger_OrderMapping_SettlesOnOneRecord(t *testing.T) {
	l := NewLedger(persistence.NewMemoryStore())
	ctx := context.Background()

	// Webhook path records with the order mapping.
	rec, err := l.Record(ctx, VerifiedPayment{PaymentID: "cashfree_ord1", OrderID: "ord1", Provider: "cashfree", Amount: 2})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	mapped, ok, err := l.ResolveOrder(ctx, "ord1")
	if err != nil || !ok {
		t.Fatalf("resolve order: ok=%v err=%v", ok, err)
	}
	if mapped != "cashfree_ord1" {
		t.Fatalf("order maps to %q, want cashfree_ord1", mapped)
	}

	// A later pull verification resolves to the same record.
	again, err := l.Record(ctx, VerifiedPayment{PaymentID: mapped, OrderID: "ord1", Provider: "cashfree", Amount: 2})
	if err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if again.Rank != rec.Rank {
		t.Fatalf("pull path minted a second record: rank %d vs %d", again.Rank, rec.Rank)
	}
}

func TestLedger_Expiry_TreatsPaymentAsNeverExisting(t *testing.T) {
	store := persistence.NewMemoryStore()
	l := NewLedgerWithTTL(store, time.Hour)
	ctx := context.Background()

	if _, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_ttl", Provider: "razorpay", Amount: 5}); err != nil {
		t.Fatalf("record: %v", err)
	}
	store.Advance(2 * time.Hour)

	if _, err := l.Lookup(ctx, "pay_ttl"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("lookup after expiry = %v, want ErrPaymentNotFound", err)
	}
	ent, err := l.Entitlements(ctx, "pay_ttl")
	if err != nil {
		t.Fatalf("entitlements: %v", err)
	}
	if ent.Exists {
		t.Fatalf("expired payment reported as existing")
	}
}

func TestLedger_Entitlements_DerivedUsedView(t *testing.T) {
	store := persistence.NewMemoryStore()
	l := NewLedger(store)
	svc := NewContentService(store, l)
	ctx := context.Background()

	if _, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_used", Provider: "razorpay", Amount: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	creator, err := l.Record(ctx, VerifiedPayment{PaymentID: "pay_host", Provider: "razorpay", Amount: 2})
	if err != nil {
		t.Fatalf("record host: %v", err)
	}
	story, _, err := svc.CreateStory(ctx, creator.PaymentID, "title", "first")
	if err != nil {
		t.Fatalf("create story: %v", err)
	}

	ent, err := l.Entitlements(ctx, "pay_used")
	if err != nil {
		t.Fatalf("entitlements: %v", err)
	}
	if ent.Used || ent.SentencesRemaining != 1 {
		t.Fatalf("fresh entry payment: used=%v remaining=%d, want false/1", ent.Used, ent.SentencesRemaining)
	}

	if _, err := svc.AddSentence(ctx, "pay_used", story.ID, "hello"); err != nil {
		t.Fatalf("add sentence: %v", err)
	}
	ent, err = l.Entitlements(ctx, "pay_used")
	if err != nil {
		t.Fatalf("entitlements after use: %v", err)
	}
	if !ent.Used || ent.SentencesRemaining != 0 {
		t.Fatalf("spent entry payment: used=%v remaining=%d, want true/0", ent.Used, ent.SentencesRemaining)
	}
}
