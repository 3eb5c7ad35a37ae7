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

// PaymentRecord is one verified, gateway-confirmed payment. Everything but
// the external usage counters is frozen at first successful verification;
// re-verifying or re-delivering the same payment returns this record
// unchanged. Changing the tier table later never alters an issued record.
type PaymentRecord struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId,omitempty"`
	Provider  string `json:"provider"`
	// Amount in the currency's smallest whole unit. Gateways that report
	// fractional subunits are rounded by their adapter before this point.
	Amount int64 `json:"amount"`
	Tier   Tier  `json:"tier"`
	// Rank is the global sequence number assigned at first verification.
	// Strictly increasing, unique, never reassigned. A rank is also the
	// sort key of every sentence this payment authors; two distinct
	// payments can therefore never collide on a sentence rank.
	Rank         int64 `json:"rank"`
	MaxSentences int64 `json:"maxSentences"`
	MaxStories   int64 `json:"maxStories"`
}

// Usage is the mutable side of an entitlement, kept in separate atomic
// counters next to the record.
type Usage struct {
	SentencesUsed int64 `json:"sentencesUsed"`
	StoriesUsed   int64 `json:"storiesUsed"`
}

// Entitlements answers the entitlement query: record state plus live usage
// and derived views.
type Entitlements struct {
	Exists bool          `json:"exists"`
	Record PaymentRecord `json:"record,omitzero"`
	Usage  Usage         `json:"usage"`
	// Used is the legacy single-use boolean, derived from the counters
	// (never stored): true once any quota of the record has been consumed.
	Used               bool  `json:"used"`
	SentencesRemaining int64 `json:"sentencesRemaining"`
	StoriesRemaining   int64 `json:"storiesRemaining"`
}

// Stats are the global aggregate counters. Monotonic; mutated only inside
// the guarded payment-creation step.
type Stats struct {
	TotalPayments int64           `json:"totalPayments"`
	TotalAmount   int64           `json:"totalAmount"`
	CountByAmount map[int64]int64 `json:"countByAmount"`
}
