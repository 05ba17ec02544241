package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded update finds the row in another state.
	ErrConflict = errors.New("record changed concurrently")
)

// InvoiceGuard is checked against the stored invoice inside the update.
// CurrentTransactionID nil means the stored invoice must be unlinked.
type InvoiceGuard struct {
	CurrentTransactionID *uuid.UUID
}

// TransactionFilter selects transactions by accounting date, To exclusive.
type TransactionFilter struct {
	EntityID *uuid.UUID
	From     time.Time
	To       time.Time
}

// InvoiceFilter selects orphan invoices.
type InvoiceFilter struct {
	EntityID  *uuid.UUID
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
}

// TransactionStore defines data access for bank transactions
type TransactionStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*BankTransaction, error)
	// ListTransactions returns newest accounting_date first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]BankTransaction, error)
	UpdateTransaction(ctx context.Context, txn *BankTransaction) error
}

// InvoiceStore defines data access for invoices
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindInvoiceByTransaction returns the invoice pointing at txnID, or ErrNotFound.
	FindInvoiceByTransaction(ctx context.Context, txnID uuid.UUID) (*Invoice, error)
	// ListOrphanInvoices returns unmatched invoices, newest invoice_date first.
	ListOrphanInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	CreateInvoice(ctx context.Context, inv *Invoice) error
	// UpdateInvoice returns ErrConflict when the guard does not hold.
	UpdateInvoice(ctx context.Context, inv *Invoice, guard InvoiceGuard) error
}

// ReconciliationStore is everything a transition reads and writes.
type ReconciliationStore interface {
	TransactionStore
	InvoiceStore
}

// Transactor is implemented by stores that can run several writes atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(store ReconciliationStore) error) error
}

// EntityStore defines read access to legal entities
type EntityStore interface {
	ListEntities(ctx context.Context) ([]Entity, error)
}

// AuditStore persists audit entries
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, entry AuditEntry) error
}

// SupplierDefaultStore persists learned supplier categories
type SupplierDefaultStore interface {
	UpsertSupplierDefault(ctx context.Context, pattern string, entityID uuid.UUID, category string) error
	ListSupplierDefaults(ctx context.Context, entityID uuid.UUID) ([]SupplierDefault, error)
}
