package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/services"
	"github.com/rapprochement/rapprochement-api/internal/utils"
)

const (
	// MaxBatchSize caps the actions accepted by one batch review request
	MaxBatchSize = 200

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// TransactionHandler handles the review of bank transactions
type TransactionHandler struct {
	coordinator Coordinator
	reconciler  Reconciler
	now         func() time.Time
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(coordinator Coordinator, reconciler Reconciler) *TransactionHandler {
	return &TransactionHandler{
		coordinator: coordinator,
		reconciler:  reconciler,
		now:         time.Now,
	}
}

// GetTransactions returns the transactions of a period
// GET /v1/transactions?month=YYYY-MM&ytd=false&entity_id=
func (h *TransactionHandler) GetTransactions(c fiber.Ctx) error {
	period, entityID, err := parsePeriodQuery(c, h.now())
	if err != nil {
		return err
	}

	txns, err := h.coordinator.LoadPeriod(c.Context(), entityID, period)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"transactions": txns,
		"count":        len(txns),
		"period":       period.String(),
	})
}

// GetCoverage returns the reconciliation KPIs of a period, global and per entity
// GET /v1/transactions/coverage?month=YYYY-MM&ytd=false&entity_id=
func (h *TransactionHandler) GetCoverage(c fiber.Ctx) error {
	period, entityID, err := parsePeriodQuery(c, h.now())
	if err != nil {
		return err
	}

	_, report, err := h.coordinator.Coverage(c.Context(), entityID, period)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"period":    period.String(),
		"global":    report.Global,
		"by_entity": report.ByEntity,
	})
}

// ExportPeriod streams the period as an XLSX workbook
// GET /v1/transactions/export?month=YYYY-MM&ytd=false&entity_id=
func (h *TransactionHandler) ExportPeriod(c fiber.Ctx) error {
	period, entityID, err := parsePeriodQuery(c, h.now())
	if err != nil {
		return err
	}

	txns, report, err := h.coordinator.Coverage(c.Context(), entityID, period)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	export := services.PeriodExport{Period: period, Transactions: txns, Coverage: report}
	if err := export.WriteXLSX(&buf); err != nil {
		return utils.NewInternalError(err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="rapprochement-%04d-%02d.xlsx"`, period.Year, int(period.Month)))
	return c.Send(buf.Bytes())
}

// GetCandidates ranks orphan invoices for a transaction
// GET /v1/transactions/:id/candidates?amount_tolerance=10&date_tolerance=30&q=&limit=15
func (h *TransactionHandler) GetCandidates(c fiber.Ctx) error {
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}
	opts, err := parseMatchOptions(c, h.coordinator.MatchDefaults())
	if err != nil {
		return err
	}

	candidates, err := h.coordinator.Candidates(c.Context(), txnID, opts)
	if err != nil {
		return err
	}
	return utils.ListResponse(c, "candidates", candidates, len(candidates))
}

// GetSuggestions returns the quick-suggest candidates of a transaction
// GET /v1/transactions/:id/suggestions
func (h *TransactionHandler) GetSuggestions(c fiber.Ctx) error {
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}

	candidates, err := h.coordinator.SuggestForTransaction(c.Context(), txnID)
	if err != nil {
		return err
	}
	return utils.ListResponse(c, "candidates", candidates, len(candidates))
}

// GetCategorySuggestion returns the learned category for the transaction label
// GET /v1/transactions/:id/category-suggestion
func (h *TransactionHandler) GetCategorySuggestion(c fiber.Ctx) error {
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}

	suggestion, err := h.coordinator.SuggestCategory(c.Context(), txnID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"suggestion": suggestion,
		"found":      suggestion != nil,
	})
}

// ClassifyRequest represents the request body for a manual classification
type ClassifyRequest struct {
	Category        string `json:"category"`
	Comment         string `json:"comment"`
	TransactionType string `json:"transaction_type"`
	Notes           string `json:"notes"`
}

// Classify records a manual category and type
// POST /v1/transactions/:id/classify
func (h *TransactionHandler) Classify(c fiber.Ctx) error {
	var req ClassifyRequest
	return h.transition(c, &req, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.Classify(c.Context(), txnID, services.ClassifyInput{
			Category:        optionalString(req.Category),
			Comment:         optionalString(req.Comment),
			TransactionType: req.TransactionType,
			Notes:           optionalString(req.Notes),
		}, actor)
	})
}

// LinkRequest represents the request body for linking an invoice
type LinkRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// Link matches an orphan invoice to the transaction
// POST /v1/transactions/:id/link
func (h *TransactionHandler) Link(c fiber.Ctx) error {
	var req LinkRequest
	return h.transition(c, &req, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		invoiceID, err := uuid.Parse(req.InvoiceID)
		if err != nil {
			return nil, utils.NewBadRequestError("invalid invoice_id", nil)
		}
		return h.reconciler.LinkInvoice(c.Context(), txnID, invoiceID, actor)
	})
}

// Unlink detaches the invoice from the transaction
// POST /v1/transactions/:id/unlink
func (h *TransactionHandler) Unlink(c fiber.Ctx) error {
	return h.transition(c, nil, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.UnlinkInvoice(c.Context(), txnID, actor)
	})
}

// Reject discards an automatic match during verification
// POST /v1/transactions/:id/reject
func (h *TransactionHandler) Reject(c fiber.Ctx) error {
	return h.transition(c, nil, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.Reject(c.Context(), txnID, actor)
	})
}

// Confirm accepts an automatic match as manual
// POST /v1/transactions/:id/confirm
func (h *TransactionHandler) Confirm(c fiber.Ctx) error {
	return h.transition(c, nil, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.ConfirmMatch(c.Context(), txnID, actor)
	})
}

// NotesRequest carries the optional operator notes of verify and flag
type NotesRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// Verify marks the transaction as verified
// POST /v1/transactions/:id/verify
func (h *TransactionHandler) Verify(c fiber.Ctx) error {
	var req NotesRequest
	return h.transition(c, &req, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.Verify(c.Context(), txnID, optionalString(req.Notes), actor)
	})
}

// Flag sends the transaction back for review with a reason
// POST /v1/transactions/:id/flag
func (h *TransactionHandler) Flag(c fiber.Ctx) error {
	var req NotesRequest
	return h.transition(c, &req, func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error) {
		return h.reconciler.Flag(c.Context(), txnID, req.Reason, optionalString(req.Notes), actor)
	})
}

// Repair re-applies the invoice side of a partially written transition
// POST /v1/transactions/:id/repair
func (h *TransactionHandler) Repair(c fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}

	repaired, err := h.coordinator.RepairTransaction(c.Context(), txnID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"transaction_id": txnID,
		"repaired":       repaired,
	})
}

// BatchRequest represents the request body for a batch review
type BatchRequest struct {
	Actions []services.BatchAction `json:"actions"`
}

// ReviewBatch applies verify/confirm/reject to several transactions
// POST /v1/transactions/batch
func (h *TransactionHandler) ReviewBatch(c fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var req BatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return utils.NewBadRequestError("invalid request body", nil)
	}
	if len(req.Actions) == 0 {
		return utils.NewBadRequestError("actions cannot be empty", nil)
	}
	if len(req.Actions) > MaxBatchSize {
		return utils.NewBadRequestError(fmt.Sprintf("maximum %d actions per batch", MaxBatchSize), nil)
	}

	result := h.coordinator.ReviewBatch(c.Context(), req.Actions, actor)
	status := fiber.StatusOK
	if len(result.Failed) > 0 {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(result)
}

type transitionFunc func(c fiber.Ctx, txnID uuid.UUID, actor string) (*services.Pair, error)

// transition authenticates, parses the id and the optional body, then applies fn.
func (h *TransactionHandler) transition(c fiber.Ctx, body any, fn transitionFunc) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}
	if body != nil && len(c.Body()) > 0 {
		if err := c.Bind().JSON(body); err != nil {
			return utils.NewBadRequestError("invalid request body", nil)
		}
	}

	pair, err := fn(c, txnID, actor)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, pair)
}
