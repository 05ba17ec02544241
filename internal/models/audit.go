package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the reconciliation transitions.
const (
	ActionTransactionClassified = "transaction_classified"
	ActionInvoiceLinked         = "invoice_linked"
	ActionInvoiceUnlinked       = "invoice_unlinked"
	ActionTransactionVerified   = "transaction_verified"
	ActionTransactionFlagged    = "transaction_flagged"

	EntityTypeBankTransaction = "bank_transaction"
)

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SupplierDefault is a learned (label pattern, entity) -> category association.
type SupplierDefault struct {
	ID              uuid.UUID `json:"id"`
	SupplierPattern string    `json:"supplier_pattern"`
	EntityID        uuid.UUID `json:"entity_id"`
	DefaultCategory string    `json:"default_category"`
	UsageCount      int32     `json:"usage_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}
