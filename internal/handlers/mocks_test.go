package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/rapprochement/rapprochement-api/internal/services"
	"github.com/rapprochement/rapprochement-api/internal/utils"
	"github.com/stretchr/testify/require"
)

// MockReconciler is a mock implementation of Reconciler for testing
type MockReconciler struct {
	ClassifyFunc             func(ctx context.Context, txnID uuid.UUID, in services.ClassifyInput, actor string) (*services.Pair, error)
	LinkInvoiceFunc          func(ctx context.Context, txnID, invoiceID uuid.UUID, actor string) (*services.Pair, error)
	UnlinkInvoiceFunc        func(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	RejectFunc               func(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	ConfirmMatchFunc         func(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error)
	VerifyFunc               func(ctx context.Context, txnID uuid.UUID, notes *string, actor string) (*services.Pair, error)
	FlagFunc                 func(ctx context.Context, txnID uuid.UUID, reason string, notes *string, actor string) (*services.Pair, error)
	CreateInvoiceAndLinkFunc func(ctx context.Context, txnID uuid.UUID, in services.NewInvoiceInput, actor string) (*services.Pair, error)
}

func (m *MockReconciler) Classify(ctx context.Context, txnID uuid.UUID, in services.ClassifyInput, actor string) (*services.Pair, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, txnID, in, actor)
	}
	return nil, fmt.Errorf("classify not mocked")
}

func (m *MockReconciler) LinkInvoice(ctx context.Context, txnID, invoiceID uuid.UUID, actor string) (*services.Pair, error) {
	if m.LinkInvoiceFunc != nil {
		return m.LinkInvoiceFunc(ctx, txnID, invoiceID, actor)
	}
	return nil, fmt.Errorf("link not mocked")
}

func (m *MockReconciler) UnlinkInvoice(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error) {
	if m.UnlinkInvoiceFunc != nil {
		return m.UnlinkInvoiceFunc(ctx, txnID, actor)
	}
	return nil, fmt.Errorf("unlink not mocked")
}

func (m *MockReconciler) Reject(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error) {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, txnID, actor)
	}
	return nil, fmt.Errorf("reject not mocked")
}

func (m *MockReconciler) ConfirmMatch(ctx context.Context, txnID uuid.UUID, actor string) (*services.Pair, error) {
	if m.ConfirmMatchFunc != nil {
		return m.ConfirmMatchFunc(ctx, txnID, actor)
	}
	return nil, fmt.Errorf("confirm not mocked")
}

func (m *MockReconciler) Verify(ctx context.Context, txnID uuid.UUID, notes *string, actor string) (*services.Pair, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, txnID, notes, actor)
	}
	return nil, fmt.Errorf("verify not mocked")
}

func (m *MockReconciler) Flag(ctx context.Context, txnID uuid.UUID, reason string, notes *string, actor string) (*services.Pair, error) {
	if m.FlagFunc != nil {
		return m.FlagFunc(ctx, txnID, reason, notes, actor)
	}
	return nil, fmt.Errorf("flag not mocked")
}

func (m *MockReconciler) CreateInvoiceAndLink(ctx context.Context, txnID uuid.UUID, in services.NewInvoiceInput, actor string) (*services.Pair, error) {
	if m.CreateInvoiceAndLinkFunc != nil {
		return m.CreateInvoiceAndLinkFunc(ctx, txnID, in, actor)
	}
	return nil, fmt.Errorf("create invoice not mocked")
}

// MockCoordinator is a mock implementation of Coordinator for testing
type MockCoordinator struct {
	EntitiesFunc              func(ctx context.Context) ([]models.Entity, error)
	LoadPeriodFunc            func(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, error)
	CoverageFunc              func(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, services.CoverageReport, error)
	LoadOrphanInvoicesFunc    func(ctx context.Context, limit int) ([]models.Invoice, error)
	InvoiceFunc               func(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	SuggestForTransactionFunc func(ctx context.Context, txnID uuid.UUID) ([]services.Candidate, error)
	CandidatesFunc            func(ctx context.Context, txnID uuid.UUID, opts services.MatchOptions) ([]services.Candidate, error)
	SuggestCategoryFunc       func(ctx context.Context, txnID uuid.UUID) (*services.CategorySuggestion, error)
	ReviewBatchFunc           func(ctx context.Context, actions []services.BatchAction, actor string) services.BatchResult
	RepairTransactionFunc     func(ctx context.Context, txnID uuid.UUID) (bool, error)
}

func (m *MockCoordinator) Entities(ctx context.Context) ([]models.Entity, error) {
	if m.EntitiesFunc != nil {
		return m.EntitiesFunc(ctx)
	}
	return nil, nil
}

func (m *MockCoordinator) LoadPeriod(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, error) {
	if m.LoadPeriodFunc != nil {
		return m.LoadPeriodFunc(ctx, entityID, period)
	}
	return nil, nil
}

func (m *MockCoordinator) Coverage(ctx context.Context, entityID *uuid.UUID, period services.Period) ([]models.BankTransaction, services.CoverageReport, error) {
	if m.CoverageFunc != nil {
		return m.CoverageFunc(ctx, entityID, period)
	}
	return nil, services.CoverageReport{}, nil
}

func (m *MockCoordinator) LoadOrphanInvoices(ctx context.Context, limit int) ([]models.Invoice, error) {
	if m.LoadOrphanInvoicesFunc != nil {
		return m.LoadOrphanInvoicesFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockCoordinator) Invoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if m.InvoiceFunc != nil {
		return m.InvoiceFunc(ctx, id)
	}
	return nil, &services.NotFoundError{Resource: "invoice", ID: id.String()}
}

func (m *MockCoordinator) SuggestForTransaction(ctx context.Context, txnID uuid.UUID) ([]services.Candidate, error) {
	if m.SuggestForTransactionFunc != nil {
		return m.SuggestForTransactionFunc(ctx, txnID)
	}
	return nil, nil
}

func (m *MockCoordinator) Candidates(ctx context.Context, txnID uuid.UUID, opts services.MatchOptions) ([]services.Candidate, error) {
	if m.CandidatesFunc != nil {
		return m.CandidatesFunc(ctx, txnID, opts)
	}
	return nil, nil
}

func (m *MockCoordinator) SuggestCategory(ctx context.Context, txnID uuid.UUID) (*services.CategorySuggestion, error) {
	if m.SuggestCategoryFunc != nil {
		return m.SuggestCategoryFunc(ctx, txnID)
	}
	return nil, nil
}

func (m *MockCoordinator) ReviewBatch(ctx context.Context, actions []services.BatchAction, actor string) services.BatchResult {
	if m.ReviewBatchFunc != nil {
		return m.ReviewBatchFunc(ctx, actions, actor)
	}
	return services.BatchResult{}
}

func (m *MockCoordinator) RepairTransaction(ctx context.Context, txnID uuid.UUID) (bool, error) {
	if m.RepairTransactionFunc != nil {
		return m.RepairTransactionFunc(ctx, txnID)
	}
	return false, nil
}

func (m *MockCoordinator) MatchDefaults() services.MatchOptions {
	return services.DefaultMatchOptions()
}

// MockStorageService is a mock implementation of StorageService for testing
type MockStorageService struct {
	GenerateInvoiceKeyFunc func(entityID uuid.UUID, filename string) (string, error)
	PresignUploadFunc      func(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignDownloadFunc    func(ctx context.Context, key string, expiry time.Duration) (string, error)
	DownloadFileFunc       func(ctx context.Context, key string) (io.ReadCloser, error)
}

func (m *MockStorageService) GenerateInvoiceKey(entityID uuid.UUID, filename string) (string, error) {
	if m.GenerateInvoiceKeyFunc != nil {
		return m.GenerateInvoiceKeyFunc(entityID, filename)
	}
	return fmt.Sprintf("invoices/%s/mock-%s", entityID, filename), nil
}

func (m *MockStorageService) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if m.PresignUploadFunc != nil {
		return m.PresignUploadFunc(ctx, key, contentType, expiry)
	}
	return fmt.Sprintf("https://s3.amazonaws.com/bucket/%s?X-Amz-Signature=mock", key), nil
}

func (m *MockStorageService) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.PresignDownloadFunc != nil {
		return m.PresignDownloadFunc(ctx, key, expiry)
	}
	return fmt.Sprintf("https://s3.amazonaws.com/bucket/%s?X-Amz-Signature=mock", key), nil
}

func (m *MockStorageService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.DownloadFileFunc != nil {
		return m.DownloadFileFunc(ctx, key)
	}
	return nil, fmt.Errorf("file not found")
}

// newTestApp mounts one route behind a fake auth middleware. An empty actor
// simulates an unauthenticated request.
func newTestApp(method, path, actor string, handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	app.Add([]string{method}, path, func(c fiber.Ctx) error {
		if actor != "" {
			c.Locals("user_id", actor)
		}
		return handler(c)
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var result map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	}
	return resp, result
}
