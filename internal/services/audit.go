package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
)

// AuditLogger records what happened to an entity. Calls are best-effort.
type AuditLogger interface {
	LogAudit(ctx context.Context, action, entityType, entityID string, metadata map[string]any) error
}

// StoreAuditLogger persists audit entries through an AuditStore.
type StoreAuditLogger struct {
	store models.AuditStore
	now   func() time.Time
}

// NewStoreAuditLogger creates an audit logger backed by store
func NewStoreAuditLogger(store models.AuditStore) *StoreAuditLogger {
	return &StoreAuditLogger{store: store, now: time.Now}
}

func (l *StoreAuditLogger) LogAudit(ctx context.Context, action, entityType, entityID string, metadata map[string]any) error {
	entry := models.AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		CreatedAt:  l.now().UTC(),
	}
	if actor, ok := metadata["actor"].(string); ok {
		entry.Actor = actor
	}
	if err := l.store.InsertAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", action, err)
	}
	return nil
}
