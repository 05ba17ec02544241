package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
)

// EntityRegistry serves the list of legal entities from a short-lived cache.
type EntityRegistry struct {
	store      models.EntityStore
	entities   []models.Entity
	byID       map[uuid.UUID]models.Entity
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration
	lastLoaded time.Time
	now        func() time.Time
}

// NewEntityRegistry creates a new entity registry
func NewEntityRegistry(store models.EntityStore, ttl time.Duration) *EntityRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EntityRegistry{
		store:    store,
		byID:     make(map[uuid.UUID]models.Entity),
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// List returns every entity sorted by name
func (r *EntityRegistry) List(ctx context.Context) ([]models.Entity, error) {
	r.cacheMutex.RLock()
	if r.fresh() {
		entities := r.entities
		r.cacheMutex.RUnlock()
		return entities, nil
	}
	r.cacheMutex.RUnlock()

	return r.load(ctx)
}

// Lookup returns a single entity by id
func (r *EntityRegistry) Lookup(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	if _, err := r.List(ctx); err != nil {
		return nil, err
	}

	r.cacheMutex.RLock()
	defer r.cacheMutex.RUnlock()

	entity, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{Resource: "entity", ID: id.String()}
	}
	return &entity, nil
}

// Invalidate forces the next call to reload from the store
func (r *EntityRegistry) Invalidate() {
	r.cacheMutex.Lock()
	defer r.cacheMutex.Unlock()
	r.lastLoaded = time.Time{}
}

func (r *EntityRegistry) load(ctx context.Context) ([]models.Entity, error) {
	r.cacheMutex.Lock()
	defer r.cacheMutex.Unlock()

	// Another caller may have refreshed while we waited
	if r.fresh() {
		return r.entities, nil
	}

	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list_entities", Err: fmt.Errorf("failed to load entities: %w", err)}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})

	byID := make(map[uuid.UUID]models.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	r.entities = entities
	r.byID = byID
	r.lastLoaded = r.now()
	return entities, nil
}

// fresh must be called with cacheMutex held
func (r *EntityRegistry) fresh() bool {
	return !r.lastLoaded.IsZero() && r.now().Sub(r.lastLoaded) < r.cacheTTL
}
