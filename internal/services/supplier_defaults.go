package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const (
	supplierPatternTokens      = 3
	defaultSimilarityThreshold = 0.8
)

// CategoryLearner records that a label was classified under a category.
type CategoryLearner interface {
	Learn(ctx context.Context, entityID uuid.UUID, label, category string) error
}

// CategorySuggestion is the learned category that best fits a label
type CategorySuggestion struct {
	Category   string  `json:"category"`
	Pattern    string  `json:"supplier_pattern"`
	UsageCount int32   `json:"usage_count"`
	Score      float64 `json:"score"`
}

type cachedDefaults struct {
	defaults []models.SupplierDefault
	loadedAt time.Time
}

// SupplierDefaults learns per-entity supplier categories from manual
// classification and suggests them for new transactions.
type SupplierDefaults struct {
	store               models.SupplierDefaultStore
	cache               map[uuid.UUID]cachedDefaults
	cacheMutex          sync.RWMutex
	cacheTTL            time.Duration
	similarityThreshold float64
	now                 func() time.Time
}

// NewSupplierDefaults creates a new supplier defaults instance
func NewSupplierDefaults(store models.SupplierDefaultStore) *SupplierDefaults {
	return &SupplierDefaults{
		store:               store,
		cache:               make(map[uuid.UUID]cachedDefaults),
		cacheTTL:            5 * time.Minute,
		similarityThreshold: defaultSimilarityThreshold,
		now:                 time.Now,
	}
}

// SupplierPattern keys a label by its first three whitespace-separated
// tokens, uppercased.
func SupplierPattern(label string) string {
	tokens := strings.Fields(strings.ToUpper(label))
	if len(tokens) > supplierPatternTokens {
		tokens = tokens[:supplierPatternTokens]
	}
	return strings.Join(tokens, " ")
}

// Learn upserts the (pattern, entity) association and bumps its usage count.
func (s *SupplierDefaults) Learn(ctx context.Context, entityID uuid.UUID, label, category string) error {
	pattern := SupplierPattern(label)
	category = strings.TrimSpace(category)
	if pattern == "" || category == "" {
		return nil
	}

	if err := s.store.UpsertSupplierDefault(ctx, pattern, entityID, category); err != nil {
		return fmt.Errorf("failed to upsert supplier default %q: %w", pattern, err)
	}

	s.InvalidateEntityCache(entityID)
	return nil
}

// LoadEntityDefaults returns the learned defaults for an entity, cached for cacheTTL
func (s *SupplierDefaults) LoadEntityDefaults(ctx context.Context, entityID uuid.UUID) ([]models.SupplierDefault, error) {
	s.cacheMutex.RLock()
	cached, ok := s.cache[entityID]
	s.cacheMutex.RUnlock()

	if ok && s.now().Sub(cached.loadedAt) < s.cacheTTL {
		return cached.defaults, nil
	}

	defaults, err := s.store.ListSupplierDefaults(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier defaults: %w", err)
	}

	s.cacheMutex.Lock()
	s.cache[entityID] = cachedDefaults{defaults: defaults, loadedAt: s.now()}
	s.cacheMutex.Unlock()

	return defaults, nil
}

// InvalidateEntityCache clears the cached defaults for a specific entity
func (s *SupplierDefaults) InvalidateEntityCache(entityID uuid.UUID) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	delete(s.cache, entityID)
}

// Suggest returns the best learned category for label, or nil when nothing fits.
func (s *SupplierDefaults) Suggest(ctx context.Context, entityID uuid.UUID, label string) (*CategorySuggestion, error) {
	pattern := SupplierPattern(label)
	if pattern == "" {
		return nil, nil
	}

	defaults, err := s.LoadEntityDefaults(ctx, entityID)
	if err != nil {
		return nil, err
	}

	return s.bestDefault(pattern, strings.ToUpper(label), defaults), nil
}

// bestDefault picks the highest scoring default; usage count breaks ties
func (s *SupplierDefaults) bestDefault(pattern, label string, defaults []models.SupplierDefault) *CategorySuggestion {
	var best *CategorySuggestion

	for _, d := range defaults {
		matched, score := s.matchPattern(pattern, label, d.SupplierPattern)
		if !matched {
			continue
		}

		if best == nil || score > best.Score || (score == best.Score && d.UsageCount > best.UsageCount) {
			best = &CategorySuggestion{
				Category:   d.DefaultCategory,
				Pattern:    d.SupplierPattern,
				UsageCount: d.UsageCount,
				Score:      score,
			}
		}
	}

	return best
}

// matchPattern compares a label against a learned pattern: exact pattern,
// then substring, then fuzzy.
func (s *SupplierDefaults) matchPattern(pattern, label, learned string) (bool, float64) {
	if learned == "" {
		return false, 0
	}
	if pattern == learned {
		return true, 1.0
	}
	if strings.Contains(label, learned) {
		return true, 0.9
	}

	similarity := calculateSimilarity(pattern, learned)
	if similarity >= s.similarityThreshold {
		return true, similarity * 0.9
	}
	return false, 0
}

// calculateSimilarity returns a Levenshtein ratio between 0 and 1, 1 meaning identical
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == "" && s2 == "" {
		return 1.0
	}
	if s1 == "" || s2 == "" {
		return 0.0
	}
	return levenshtein.RatioForStrings([]rune(s1), []rune(s2), levenshtein.DefaultOptions)
}
