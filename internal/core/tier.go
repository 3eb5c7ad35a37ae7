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

// Tier names the entitlement level a payment amount buys.
type Tier string

const (
	TierEntry   Tier = "entry"
	TierCreator Tier = "creator"
	TierPro     Tier = "pro"
	TierMaestro Tier = "maestro"
	// TierUnknown is the sentinel for amounts outside the table. Such
	// payments are still recorded for accounting but entitle nothing.
	TierUnknown Tier = "unknown"
)

// Entitlement is the quota a tier grants at verification time.
type Entitlement struct {
	Tier         Tier
	MaxSentences int64
	MaxStories   int64
}

// tierTable is the single monetization lever. Both the verification path
// and the mutation-gating path must consult it through ResolveTier; it is
// never re-derived elsewhere.
var tierTable = map[int64]Entitlement{
	1:  {Tier: TierEntry, MaxSentences: 1, MaxStories: 0},
	2:  {Tier: TierCreator, MaxSentences: 0, MaxStories: 1},
	5:  {Tier: TierPro, MaxSentences: 3, MaxStories: 1},
	11: {Tier: TierMaestro, MaxSentences: 5, MaxStories: 3},
}

// ResolveTier maps a whole-unit amount to its entitlement. Amounts outside
// the table resolve to TierUnknown with zero quota.
func ResolveTier(amount int64) Entitlement {
	if e, ok := tierTable[amount]; ok {
		return e
	}
	return Entitlement{Tier: TierUnknown}
}
