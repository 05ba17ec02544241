package handlers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/rapprochement/rapprochement-api/internal/services"
)

// Reconciler applies the reconciliation transitions
type Reconciler interface {
	Classify(ctx context.Context, txnID uuid.UUID, in services.ClassifyInput, actor string) (*services.Pair, error)
	LinkInvoice(ctx context.Context, txnID, invoiceID uuid.UUID, actor string) (*services.Pair, error)
	UnlinkInvoice(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	Reject(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	ConfirmMatch(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	Verify(ctx context.Context, txnID uuid.UUID, notes *string, actor string) (*services.Pair, error)
	Flag(ctx context.Context, txnID uuid.UUID, reason string, notes *string, actor string) (*services.Pair, error)
	CreateInvoiceAndLink(ctx context.Context, txnID uuid.UUID, in services.NewInvoiceInput, actor string) (*services.Pair, error)
}

// Coordinator serves period views, candidate ranking and batch review
type Coordinator interface {
	Entities(ctx context.Context) ([]models.Entity, error)
	LoadPeriod(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, error)
	Coverage(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, services.CoverageReport, error)
	LoadOrphanInvoices(ctx context.Context, limit int) ([]models.Invoice, error)
	Invoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	SuggestForTransaction(ctx context.Context, txnID uuid.UUID) ([]services.Candidate, error)
	Candidates(ctx context.Context, txnID uuid.UUID, opts services.MatchOptions) ([]services.Candidate, error)
	SuggestCategory(ctx context.Context, txnID uuid.UUID) (*services.CategorySuggestion, error)
	ReviewBatch(ctx context.Context, actions []services.BatchAction, actor string) services.BatchResult
	RepairTransaction(ctx context.Context, txnID uuid.UUID) (bool, error)
	MatchDefaults() services.MatchOptions
}

// StorageService interface defines methods for invoice document storage
type StorageService interface {
	GenerateInvoiceKey(entityID uuid.UUID, filename string) (string, error)
	PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error)
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentValidator checks invoice documents
type DocumentValidator interface {
	ValidateUpload(filename, contentType string) error
	ValidateDocument(reader io.Reader, filename, contentType string) (*services.ValidationResult, error)
}

var (
	_ Reconciler        = (*services.Reconciler)(nil)
	_ Coordinator       = (*services.Coordinator)(nil)
	_ StorageService    = (*services.StorageService)(nil)
	_ DocumentValidator = (*services.DocumentValidator)(nil)
)
