package core

import "testing"

func TestResolveTier_Table(t *testing.T) {
	cases := []struct {
		amount       int64
		tier         Tier
		maxSentences int64
		maxStories   int64
	}{
		{1, TierEntry, 1, 0},
		{2, TierCreator, 0, 1},
		{5, TierPro, 3, 1},
		{11, TierMaestro, 5, 3},
		{0, TierUnknown, 0, 0},
		{3, TierUnknown, 0, 0},
		{100, TierUnknown, 0, 0},
		{-1, TierUnknown, 0, 0},
	}
	for _, c := range cases {
		got := ResolveTier(c.amount)
		if got.Tier != c.tier || got.MaxSentences != c.maxSentences || got.MaxStories != c.maxStories {
			t.Fatalf("ResolveTier(%d) = %+v, want tier=%s sentences=%d stories=%d",
				c.amount, got, c.tier, c.maxSentences, c.maxStories)
		}
	}
}
