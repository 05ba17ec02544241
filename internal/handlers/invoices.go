package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/services"
	"github.com/rapprochement/rapprochement-api/internal/utils"
	"github.com/shopspring/decimal"
)

const (
	// PresignedURLExpiryMinutes is the expiry time for presigned URLs in minutes
	PresignedURLExpiryMinutes = 15
	// PresignedURLExpirySeconds is the expiry time for presigned URLs in seconds
	PresignedURLExpirySeconds = PresignedURLExpiryMinutes * 60

	presignedURLExpiry = PresignedURLExpiryMinutes * time.Minute
)

// InvoiceHandler handles invoices and their supporting documents
type InvoiceHandler struct {
	coordinator Coordinator
	reconciler  Reconciler
	storage     StorageService
	validator   DocumentValidator
}

// NewInvoiceHandler creates a new invoice handler. storage may be nil when
// no bucket is configured; document routes then answer 503.
func NewInvoiceHandler(coordinator Coordinator, reconciler Reconciler, storage StorageService, validator DocumentValidator) *InvoiceHandler {
	return &InvoiceHandler{
		coordinator: coordinator,
		reconciler:  reconciler,
		storage:     storage,
		validator:   validator,
	}
}

// GetOrphans returns invoices not linked to any transaction
// GET /v1/invoices/orphans?limit=100
func (h *InvoiceHandler) GetOrphans(c fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			return utils.NewBadRequestError("limit must be between 1 and 1000", nil)
		}
		limit = v
	}

	invoices, err := h.coordinator.LoadOrphanInvoices(c.Context(), limit)
	if err != nil {
		return err
	}
	return utils.ListResponse(c, "invoices", invoices, len(invoices))
}

// GetDocumentURL returns a presigned download URL for the invoice document
// GET /v1/invoices/:id/document
func (h *InvoiceHandler) GetDocumentURL(c fiber.Ctx) error {
	if h.storage == nil {
		return errStorageUnavailable
	}
	invoiceID, err := parseIDParam(c, "invoice")
	if err != nil {
		return err
	}

	inv, err := h.coordinator.Invoice(c.Context(), invoiceID)
	if err != nil {
		return err
	}
	key := inv.DocumentKey()
	if key == "" {
		return utils.NewNotFoundError("invoice document")
	}

	url, err := h.storage.PresignDownload(c.Context(), key, presignedURLExpiry)
	if err != nil {
		return utils.NewInternalError(err)
	}
	return c.JSON(fiber.Map{
		"url":        url,
		"file_name":  inv.FileName,
		"expires_in": PresignedURLExpirySeconds,
	})
}

// GetUploadURL generates a presigned URL for an invoice document upload
// Query params: entity_id, filename, content_type (all required)
// Returns: upload_url, file_key, expires_in
func (h *InvoiceHandler) GetUploadURL(c fiber.Ctx) error {
	// 1. Get query parameters
	filename := c.Query("filename")
	contentType := c.Query("content_type")

	// 2. Validate presence
	if filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "filename is required",
		})
	}
	if contentType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content_type is required",
		})
	}
	entityID, err := uuid.Parse(c.Query("entity_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "entity_id is required",
		})
	}

	// 3. Validate the document type before handing out a URL
	if err := h.validator.ValidateUpload(filename, contentType); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "unsupported file type",
			"details": err.Error(),
		})
	}

	// 4. Must be authenticated
	if _, err := requireActor(c); err != nil {
		return err
	}
	if h.storage == nil {
		return errStorageUnavailable
	}

	// 5. Generate key and URL
	key, err := h.storage.GenerateInvoiceKey(entityID, filename)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "failed to generate upload key",
			"details": err.Error(),
		})
	}
	url, err := h.storage.PresignUpload(c.Context(), key, contentType, presignedURLExpiry)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "failed to generate upload URL",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"upload_url": url,
		"file_key":   key,
		"expires_in": PresignedURLExpirySeconds,
	})
}

// CreateInvoiceRequest represents the request body for creating an invoice during verification
type CreateInvoiceRequest struct {
	Supplier    string          `json:"supplier"`
	AmountTTC   decimal.Decimal `json:"amount_ttc"`
	InvoiceDate string          `json:"invoice_date"`
	TypeService string          `json:"type_service"`
	Product     string          `json:"product"`
	FileName    string          `json:"file_name"`
	FileKey     string          `json:"file_key"`
	ContentType string          `json:"content_type"`
}

// CreateAndLink creates an invoice from an uploaded document and links it
// POST /v1/transactions/:id/invoice
func (h *InvoiceHandler) CreateAndLink(c fiber.Ctx) error {
	// 1. Authenticate and parse
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	txnID, err := parseIDParam(c, "transaction")
	if err != nil {
		return err
	}
	var req CreateInvoiceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return utils.NewBadRequestError("invalid request body", nil)
	}

	input := services.NewInvoiceInput{
		Supplier:    strings.TrimSpace(req.Supplier),
		AmountTTC:   req.AmountTTC,
		TypeService: req.TypeService,
		Product:     req.Product,
		FileName:    req.FileName,
	}
	if req.InvoiceDate != "" {
		d, err := time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			return utils.NewBadRequestError("invoice_date must be YYYY-MM-DD", nil)
		}
		input.InvoiceDate = &d
	}

	// 2. Validate the uploaded document, if any
	if req.FileKey != "" {
		if err := h.checkDocument(c, req); err != nil {
			return err
		}
		input.StoragePath = &req.FileKey
	}

	// 3. Create and link
	pair, err := h.reconciler.CreateInvoiceAndLink(c.Context(), txnID, input, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    pair,
	})
}

func (h *InvoiceHandler) checkDocument(c fiber.Ctx, req CreateInvoiceRequest) error {
	if h.storage == nil {
		return errStorageUnavailable
	}

	body, err := h.storage.DownloadFile(c.Context(), req.FileKey)
	if err != nil {
		return utils.NewBadRequestError("uploaded document not found", err.Error())
	}
	defer body.Close()

	filename := req.FileName
	if filename == "" {
		filename = req.FileKey[strings.LastIndex(req.FileKey, "/")+1:]
	}
	result, err := h.validator.ValidateDocument(body, filename, req.ContentType)
	if err != nil {
		return utils.NewInternalError(err)
	}
	if !result.Valid {
		return utils.NewBadRequestError("invalid invoice document", result.Errors)
	}
	return nil
}

var errStorageUnavailable = &utils.APIError{
	StatusCode: fiber.StatusServiceUnavailable,
	Code:       "STORAGE_UNAVAILABLE",
	Message:    "document storage is not configured",
}
