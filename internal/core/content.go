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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"storyfund/internal/persistence"
	"storyfund/internal/telemetry"
)

// MaxTitleLen is the stored title ceiling; longer titles are truncated, not
// rejected.
const MaxTitleLen = 100

// DefaultMaxSentenceLen is the story-variant sentence ceiling. The gossip
// variant of the product ran with 30.
const DefaultMaxSentenceLen = 150

// Story is a content unit with its ordered sentences.
type Story struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	CreatorRank   int64      `json:"creatorRank"`
	Sentences     []Sentence `json:"sentences,omitempty"`
	SentenceCount int64      `json:"sentenceCount"`
}

// Sentence is one permanent, rank-ordered contribution. Never edited or
// deleted once created.
type Sentence struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Rank int64  `json:"rank"`
}

// ContentService is the quota-gated mutator: every content mutation checks
// and consumes the paying user's remaining quota through the store's atomic
// reservation, never a read-then-write.
type ContentService struct {
	store          persistence.Store
	ledger         *Ledger
	maxSentenceLen int
	ttl            time.Duration
}

// NewContentService uses the story-variant sentence limit.
func NewContentService(store persistence.Store, ledger *Ledger) *ContentService {
	return NewContentServiceWithLimit(store, ledger, DefaultMaxSentenceLen)
}

// NewContentServiceWithLimit sets the product-variant sentence length
// ceiling (30 for the gossip variant, 150 for stories).
func NewContentServiceWithLimit(store persistence.Store, ledger *Ledger, maxSentenceLen int) *ContentService {
	if maxSentenceLen <= 0 {
		maxSentenceLen = DefaultMaxSentenceLen
	}
	return &ContentService{store: store, ledger: ledger, maxSentenceLen: maxSentenceLen, ttl: ledger.ttl}
}

// CreateStory creates a content unit with its first sentence, consuming one
// story slot of the payment's quota. Preconditions run in order: payload,
// payment, quota; the first failure wins.
func (s *ContentService) CreateStory(ctx context.Context, paymentID, title, firstSentence string) (*Story, *Sentence, error) {
	if paymentID == "" || strings.TrimSpace(title) == "" || strings.TrimSpace(firstSentence) == "" {
		return nil, nil, fmt.Errorf("%w: paymentId, title and firstSentence are required", ErrValidation)
	}
	if len(firstSentence) > s.maxSentenceLen {
		return nil, nil, fmt.Errorf("%w: sentence must be %d characters or less", ErrValidation, s.maxSentenceLen)
	}
	payment, err := s.ledger.Lookup(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}

	// Reserve the slot before writing anything. The reservation is the
	// uniqueness guard: if two tabs race for the last slot, exactly one
	// INCR validates and the other is rolled back inside the store.
	usedKey := persistence.StoriesUsedKey(paymentID)
	ok, err := s.store.ReserveSlot(ctx, usedKey, payment.MaxStories, s.ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reserve story slot: %v", ErrStore, err)
	}
	if !ok {
		telemetry.ObserveQuotaDenied("story")
		return nil, nil, fmt.Errorf("%w: story creation limit is %d", ErrQuotaExceeded, payment.MaxStories)
	}

	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	storyID := newID("story")
	sentenceID := newID("sentence")
	if err := s.persistStory(ctx, storyID, title, paymentID, payment.Rank); err != nil {
		s.release(ctx, usedKey)
		return nil, nil, err
	}
	if err := s.persistSentence(ctx, storyID, sentenceID, firstSentence, paymentID, payment.Rank); err != nil {
		s.release(ctx, usedKey)
		return nil, nil, err
	}
	if err := s.store.RPush(ctx, persistence.StoryIndexKey, storyID); err != nil {
		s.release(ctx, usedKey)
		return nil, nil, fmt.Errorf("%w: index story: %v", ErrStore, err)
	}

	telemetry.ObserveContentCreated("story")
	log.WithFields(log.Fields{"story_id": storyID, "payment_id": paymentID, "rank": payment.Rank}).Info("Story created")
	story := &Story{ID: storyID, Title: title, CreatorRank: payment.Rank, SentenceCount: 1}
	sentence := &Sentence{ID: sentenceID, Text: firstSentence, Rank: payment.Rank}
	return story, sentence, nil
}

// AddSentence appends a sentence to an existing story, consuming one
// sentence slot. Ordering within the story follows the author's payment
// rank; same-rank sentences (multiple contributions from one payment) keep
// insertion order via the time-prefixed sentence id.
func (s *ContentService) AddSentence(ctx context.Context, paymentID, storyID, text string) (*Sentence, error) {
	if paymentID == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: paymentId and text are required", ErrValidation)
	}
	if len(text) > s.maxSentenceLen {
		return nil, fmt.Errorf("%w: sentence must be %d characters or less", ErrValidation, s.maxSentenceLen)
	}
	payment, err := s.ledger.Lookup(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.HGetAll(ctx, persistence.StoryMetaKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("%w: story lookup: %v", ErrStore, err)
	}
	if meta["title"] == "" {
		return nil, ErrStoryNotFound
	}

	usedKey := persistence.SentencesUsedKey(paymentID)
	ok, err := s.store.ReserveSlot(ctx, usedKey, payment.MaxSentences, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve sentence slot: %v", ErrStore, err)
	}
	if !ok {
		telemetry.ObserveQuotaDenied("sentence")
		return nil, fmt.Errorf("%w: sentence limit is %d", ErrQuotaExceeded, payment.MaxSentences)
	}

	sentenceID := newID("sentence")
	if err := s.persistSentence(ctx, storyID, sentenceID, text, paymentID, payment.Rank); err != nil {
		s.release(ctx, usedKey)
		return nil, err
	}

	telemetry.ObserveContentCreated("sentence")
	return &Sentence{ID: sentenceID, Text: text, Rank: payment.Rank}, nil
}

// ListStories returns every story ordered by creator rank ascending,
// independent of creation wall-clock order.
func (s *ContentService) ListStories(ctx context.Context) ([]Story, error) {
	ids, err := s.store.LRange(ctx, persistence.StoryIndexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: list stories: %v", ErrStore, err)
	}
	stories := make([]Story, 0, len(ids))
	for _, id := range ids {
		meta, err := s.store.HGetAll(ctx, persistence.StoryMetaKey(id))
		if err != nil {
			return nil, fmt.Errorf("%w: story meta %s: %v", ErrStore, id, err)
		}
		if meta["title"] == "" {
			continue
		}
		n, err := s.store.ZCard(ctx, persistence.StorySentencesKey(id))
		if err != nil {
			return nil, fmt.Errorf("%w: sentence count %s: %v", ErrStore, id, err)
		}
		rank, _ := strconv.ParseInt(meta["createdRank"], 10, 64)
		stories = append(stories, Story{ID: id, Title: meta["title"], CreatorRank: rank, SentenceCount: n})
	}
	// Insertion order is wall-clock; the contract is rank order.
	sort.SliceStable(stories, func(i, j int) bool { return stories[i].CreatorRank < stories[j].CreatorRank })
	return stories, nil
}

// GetStory fetches one story with its sentences in rank order.
func (s *ContentService) GetStory(ctx context.Context, storyID string) (*Story, error) {
	meta, err := s.store.HGetAll(ctx, persistence.StoryMetaKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("%w: story lookup: %v", ErrStore, err)
	}
	if meta["title"] == "" {
		return nil, ErrStoryNotFound
	}
	ids, err := s.store.ZRange(ctx, persistence.StorySentencesKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("%w: sentences %s: %v", ErrStore, storyID, err)
	}
	sentences := make([]Sentence, 0, len(ids))
	for _, id := range ids {
		h, err := s.store.HGetAll(ctx, persistence.SentenceKey(id))
		if err != nil {
			return nil, fmt.Errorf("%w: sentence %s: %v", ErrStore, id, err)
		}
		rank, _ := strconv.ParseInt(h["rank"], 10, 64)
		sentences = append(sentences, Sentence{ID: id, Text: h["text"], Rank: rank})
	}
	rank, _ := strconv.ParseInt(meta["createdRank"], 10, 64)
	return &Story{
		ID:            storyID,
		Title:         meta["title"],
		CreatorRank:   rank,
		Sentences:     sentences,
		SentenceCount: int64(len(sentences)),
	}, nil
}

func (s *ContentService) persistStory(ctx context.Context, storyID, title, paymentID string, rank int64) error {
	err := s.store.HSet(ctx, persistence.StoryMetaKey(storyID), map[string]string{
		"title":            title,
		"creatorPaymentId": paymentID,
		"createdRank":      strconv.FormatInt(rank, 10),
	})
	if err != nil {
		return fmt.Errorf("%w: persist story: %v", ErrStore, err)
	}
	return nil
}

func (s *ContentService) persistSentence(ctx context.Context, storyID, sentenceID, text, paymentID string, rank int64) error {
	err := s.store.HSet(ctx, persistence.SentenceKey(sentenceID), map[string]string{
		"text":            text,
		"authorPaymentId": paymentID,
		"rank":            strconv.FormatInt(rank, 10),
		"storyId":         storyID,
	})
	if err != nil {
		return fmt.Errorf("%w: persist sentence: %v", ErrStore, err)
	}
	if err := s.store.ZAdd(ctx, persistence.StorySentencesKey(storyID), rank, sentenceID); err != nil {
		return fmt.Errorf("%w: order sentence: %v", ErrStore, err)
	}
	return nil
}

// release compensates a reservation whose entity write failed. Best-effort:
// a failure here leaves the counter one high, which under-consumes, never
// over-consumes.
func (s *ContentService) release(ctx context.Context, usedKey string) {
	if err := s.store.ReleaseSlot(ctx, usedKey); err != nil {
		log.WithError(err).WithField("key", usedKey).Error("Failed to release reserved quota slot")
	}
}

// newID builds a collision-resistant identifier. The millisecond prefix
// keeps same-score sorted-set members in insertion order, which is the tie
// break the sentence ordering contract requires.
func newID(kind string) string {
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().UnixMilli(), strings.Split(uuid.NewString(), "-")[0])
}
