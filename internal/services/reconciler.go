package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	opClassify      = "classify"
	opLinkInvoice   = "link_invoice"
	opUnlinkInvoice = "unlink_invoice"
	opConfirmMatch  = "confirm_match"
	opVerify        = "verify"
	opReject        = "reject"
	opFlag          = "flag"
	opCreateInvoice = "create_invoice"
	opRepair        = "repair"

	rejectReason = "rejected_during_verification"
)

// Pair is the result of a transition: the transaction and, when linked, its invoice.
type Pair struct {
	Transaction *models.BankTransaction `json:"transaction"`
	Invoice     *models.Invoice         `json:"invoice,omitempty"`
}

// ClassifyInput carries the manual classification of a transaction.
type ClassifyInput struct {
	Category        *string
	Comment         *string
	TransactionType string
	Notes           *string
}

// NewInvoiceInput describes an invoice created by hand during verification.
type NewInvoiceInput struct {
	Supplier    string
	AmountTTC   decimal.Decimal
	InvoiceDate *time.Time
	TypeService string
	Product     string
	FileName    string
	StoragePath *string
}

// Reconciler applies the reconciliation transitions to a transaction and its
// invoice. Every transition validates before writing and returns either the
// new pair or a typed error.
type Reconciler struct {
	store          models.ReconciliationStore
	audit          AuditLogger
	learner        CategoryLearner
	dispatcher     Dispatcher
	logger         zerolog.Logger
	now            func() time.Time
	invoiceRetries int
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithDispatcher sets how audit and learning side effects are run.
func WithDispatcher(d Dispatcher) ReconcilerOption {
	return func(r *Reconciler) { r.dispatcher = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the reconciler logger.
func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// WithInvoiceRetries sets how often the invoice half of a pair write is
// retried when the store cannot write both halves atomically.
func WithInvoiceRetries(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n >= 0 {
			r.invoiceRetries = n
		}
	}
}

// NewReconciler creates a reconciler. audit and learner may be nil.
func NewReconciler(store models.ReconciliationStore, audit AuditLogger, learner CategoryLearner, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:          store,
		audit:          audit,
		learner:        learner,
		logger:         zerolog.Nop(),
		now:            time.Now,
		invoiceRetries: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatcher == nil {
		r.dispatcher = InlineDispatcher{Logger: r.logger}
	}
	return r
}

// Classify records a manual category, comment, type and notes. A transaction
// that was non_rapproche moves to manuel once it has a category.
func (r *Reconciler) Classify(ctx context.Context, txnID uuid.UUID, in ClassifyInput, actor string) (*Pair, error) {
	txType, err := models.ParseTransactionType(in.TransactionType)
	if err != nil {
		return nil, &ValidationError{Field: "transaction_type", Message: err.Error()}
	}

	txn, err := r.loadTransaction(ctx, opClassify, txnID)
	if err != nil {
		return nil, err
	}

	category := trimmed(in.Category)

	next := txn.Clone()
	next.ManualCategory = category
	next.ManualComment = trimmed(in.Comment)
	next.TransactionType = txType
	next.Notes = in.Notes
	if category != nil && next.Status == models.StatusNonRapproche {
		next.Status = models.StatusManuel
	}
	r.stamp(next, actor)

	if err := r.store.UpdateTransaction(ctx, next); err != nil {
		return nil, r.storeError(opClassify, "transaction", txnID, err)
	}

	metadata := map[string]any{
		"transaction_type": string(txType),
		"status":           string(next.Status),
	}
	if category != nil {
		metadata["category"] = *category
	}
	r.recordAudit(ctx, models.ActionTransactionClassified, next.ID, actor, metadata)

	if category != nil && r.learner != nil {
		entityID, label, cat := next.EntityID, next.LabelSimple, *category
		r.dispatcher.Dispatch(ctx, "supplier_default", func(ctx context.Context) error {
			return r.learner.Learn(ctx, entityID, label, cat)
		})
	}

	return &Pair{Transaction: next}, nil
}

// LinkInvoice attaches an orphan invoice to an unlinked transaction and moves
// both to manuel.
func (r *Reconciler) LinkInvoice(ctx context.Context, txnID, invoiceID uuid.UUID, actor string) (*Pair, error) {
	txn, err := r.loadTransaction(ctx, opLinkInvoice, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(opLinkInvoice, txn); err != nil {
		return nil, err
	}
	if txn.HasInvoice() {
		return nil, &InvalidStateError{
			Op:      opLinkInvoice,
			Status:  string(txn.Status),
			Message: fmt.Sprintf("transaction is already linked to invoice %s, unlink it first", txn.MatchedInvoiceID),
		}
	}

	inv, err := r.loadInvoice(ctx, opLinkInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsOrphan() {
		return nil, &InvalidStateError{
			Op:      opLinkInvoice,
			Status:  string(inv.Status),
			Message: fmt.Sprintf("invoice is already linked to transaction %s", inv.BankTransactionID),
		}
	}

	nextTxn := txn.Clone()
	nextTxn.MatchedInvoiceID = &inv.ID
	nextTxn.Status = models.StatusManuel
	nextTxn.FlaggedReason = nil
	confidence := Score(txn, inv)
	nextTxn.MatchConfidence = &confidence
	r.stamp(nextTxn, actor)

	nextInv := inv.Clone()
	nextInv.BankTransactionID = &txn.ID
	nextInv.Status = models.InvoiceManuel
	nextInv.UpdatedAt = nextTxn.UpdatedAt

	if err := r.writePair(ctx, opLinkInvoice, txn, nextTxn, nextInv, models.InvoiceGuard{}); err != nil {
		return nil, err
	}

	r.recordAudit(ctx, models.ActionInvoiceLinked, txn.ID, actor, map[string]any{
		"invoice_id":       inv.ID.String(),
		"match_confidence": confidence,
	})

	return &Pair{Transaction: nextTxn, Invoice: nextInv}, nil
}

// UnlinkInvoice detaches the invoice of a transaction and resets both to
// non_rapproche.
func (r *Reconciler) UnlinkInvoice(ctx context.Context, txnID uuid.UUID, actor string) (*Pair, error) {
	return r.detach(ctx, opUnlinkInvoice, txnID, actor, nil)
}

// Reject is an unlink performed while reviewing a match.
func (r *Reconciler) Reject(ctx context.Context, txnID uuid.UUID, actor string) (*Pair, error) {
	return r.detach(ctx, opReject, txnID, actor, map[string]any{"reason": rejectReason})
}

func (r *Reconciler) detach(ctx context.Context, op string, txnID uuid.UUID, actor string, metadata map[string]any) (*Pair, error) {
	txn, err := r.loadTransaction(ctx, op, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(op, txn); err != nil {
		return nil, err
	}
	if !txn.HasInvoice() {
		return nil, &InvalidStateError{Op: op, Status: string(txn.Status), Message: "transaction has no linked invoice"}
	}
	invoiceID := *txn.MatchedInvoiceID

	nextTxn := txn.Clone()
	nextTxn.MatchedInvoiceID = nil
	nextTxn.MatchConfidence = nil
	nextTxn.FlaggedReason = nil
	nextTxn.Status = models.StatusNonRapproche
	r.stamp(nextTxn, actor)

	linked, err := r.linkedInvoice(ctx, op, txn, invoiceID)
	if err != nil {
		return nil, err
	}

	var nextInv *models.Invoice
	if linked == nil {
		if err := r.store.UpdateTransaction(ctx, nextTxn); err != nil {
			return nil, r.storeError(op, "transaction", txnID, err)
		}
	} else {
		nextInv = linked.Clone()
		nextInv.BankTransactionID = nil
		nextInv.Status = models.InvoiceNonRapproche
		nextInv.UpdatedAt = nextTxn.UpdatedAt

		guard := models.InvoiceGuard{CurrentTransactionID: &txn.ID}
		if err := r.writePair(ctx, op, txn, nextTxn, nextInv, guard); err != nil {
			return nil, err
		}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["invoice_id"] = invoiceID.String()
	r.recordAudit(ctx, models.ActionInvoiceUnlinked, txn.ID, actor, metadata)

	return &Pair{Transaction: nextTxn, Invoice: nextInv}, nil
}

// ConfirmMatch accepts the current state of a transaction as manuel, mirroring
// the status onto its invoice when one is linked.
func (r *Reconciler) ConfirmMatch(ctx context.Context, txnID uuid.UUID, actor string) (*Pair, error) {
	txn, err := r.loadTransaction(ctx, opConfirmMatch, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(opConfirmMatch, txn); err != nil {
		return nil, err
	}

	nextTxn := txn.Clone()
	nextTxn.Status = models.StatusManuel
	nextTxn.FlaggedReason = nil
	r.stamp(nextTxn, actor)

	nextInv, err := r.writeWithInvoiceStatus(ctx, opConfirmMatch, txn, nextTxn, models.InvoiceManuel)
	if err != nil {
		return nil, err
	}

	r.recordAudit(ctx, models.ActionTransactionClassified, txn.ID, actor, map[string]any{
		"action": opConfirmMatch,
	})

	return &Pair{Transaction: nextTxn, Invoice: nextInv}, nil
}

// Verify moves a transaction to the terminal verified status. Without a
// linked invoice, notes must explain why.
func (r *Reconciler) Verify(ctx context.Context, txnID uuid.UUID, notes *string, actor string) (*Pair, error) {
	txn, err := r.loadTransaction(ctx, opVerify, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(opVerify, txn); err != nil {
		return nil, err
	}

	notes = trimmed(notes)
	if !txn.HasInvoice() && notes == nil {
		return nil, &ValidationError{Field: "notes", Message: "a justification is required to verify a transaction without invoice"}
	}

	now := r.now().UTC()
	nextTxn := txn.Clone()
	nextTxn.Status = models.StatusVerified
	nextTxn.FlaggedReason = nil
	nextTxn.VerifiedAt = &now
	if actor != "" {
		nextTxn.VerifiedBy = &actor
	}
	if notes != nil {
		nextTxn.Notes = notes
	}
	r.stamp(nextTxn, actor)

	nextInv, err := r.writeWithInvoiceStatus(ctx, opVerify, txn, nextTxn, models.InvoiceVerified)
	if err != nil {
		return nil, err
	}

	r.recordAudit(ctx, models.ActionTransactionVerified, txn.ID, actor, map[string]any{
		"with_invoice": txn.HasInvoice(),
	})

	return &Pair{Transaction: nextTxn, Invoice: nextInv}, nil
}

// Flag marks a transaction as needing attention. The invoice is untouched.
func (r *Reconciler) Flag(ctx context.Context, txnID uuid.UUID, reason string, notes *string, actor string) (*Pair, error) {
	flagReason, err := models.ParseFlagReason(reason)
	if err != nil {
		return nil, &ValidationError{Field: "reason", Message: err.Error()}
	}

	txn, err := r.loadTransaction(ctx, opFlag, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(opFlag, txn); err != nil {
		return nil, err
	}

	next := txn.Clone()
	next.Status = models.StatusFlag
	next.FlaggedReason = &flagReason
	if notes = trimmed(notes); notes != nil {
		next.Notes = notes
	}
	r.stamp(next, actor)

	if err := r.store.UpdateTransaction(ctx, next); err != nil {
		return nil, r.storeError(opFlag, "transaction", txnID, err)
	}

	r.recordAudit(ctx, models.ActionTransactionFlagged, txn.ID, actor, map[string]any{
		"reason": string(flagReason),
	})

	return &Pair{Transaction: next}, nil
}

// CreateInvoiceAndLink records an invoice entered by hand and links it to an
// unlinked transaction in the same step.
func (r *Reconciler) CreateInvoiceAndLink(ctx context.Context, txnID uuid.UUID, in NewInvoiceInput, actor string) (*Pair, error) {
	supplier := strings.TrimSpace(in.Supplier)
	if supplier == "" {
		return nil, &ValidationError{Field: "supplier", Message: "supplier is required"}
	}
	if !in.AmountTTC.IsPositive() {
		return nil, &ValidationError{Field: "amount_ttc", Message: "amount must be positive"}
	}

	txn, err := r.loadTransaction(ctx, opCreateInvoice, txnID)
	if err != nil {
		return nil, err
	}
	if err := r.requireOpen(opCreateInvoice, txn); err != nil {
		return nil, err
	}
	if txn.HasInvoice() {
		return nil, &InvalidStateError{
			Op:      opCreateInvoice,
			Status:  string(txn.Status),
			Message: fmt.Sprintf("transaction is already linked to invoice %s, unlink it first", txn.MatchedInvoiceID),
		}
	}

	now := r.now().UTC()
	inv := &models.Invoice{
		ID:                uuid.New(),
		EntityID:          txn.EntityID,
		BankTransactionID: &txn.ID,
		AmountTTC:         in.AmountTTC,
		InvoiceDate:       in.InvoiceDate,
		Supplier:          supplier,
		TypeService:       strings.TrimSpace(in.TypeService),
		Product:           strings.TrimSpace(in.Product),
		FileName:          strings.TrimSpace(in.FileName),
		StoragePath:       trimmed(in.StoragePath),
		Status:            models.InvoiceManuel,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	nextTxn := txn.Clone()
	nextTxn.MatchedInvoiceID = &inv.ID
	nextTxn.Status = models.StatusManuel
	nextTxn.FlaggedReason = nil
	confidence := Score(txn, inv)
	nextTxn.MatchConfidence = &confidence
	r.stamp(nextTxn, actor)

	if err := r.createAndLink(ctx, nextTxn, inv); err != nil {
		return nil, err
	}

	r.recordAudit(ctx, models.ActionInvoiceLinked, txn.ID, actor, map[string]any{
		"invoice_id":       inv.ID.String(),
		"match_confidence": confidence,
		"created":          true,
	})

	return &Pair{Transaction: nextTxn, Invoice: inv}, nil
}

// RepairTransaction brings the invoice side of a pair back in line with the
// transaction side after a partial failure. It reports whether anything was written.
func (r *Reconciler) RepairTransaction(ctx context.Context, txnID uuid.UUID) (bool, error) {
	txn, err := r.loadTransaction(ctx, opRepair, txnID)
	if err != nil {
		return false, err
	}

	if !txn.HasInvoice() {
		inv, err := r.store.FindInvoiceByTransaction(ctx, txn.ID)
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, &PersistenceError{Op: opRepair, Err: err}
		}

		next := inv.Clone()
		next.BankTransactionID = nil
		next.Status = models.InvoiceNonRapproche
		next.UpdatedAt = r.now().UTC()
		if err := r.store.UpdateInvoice(ctx, next, models.InvoiceGuard{CurrentTransactionID: &txn.ID}); err != nil {
			return false, r.storeError(opRepair, "invoice", inv.ID, err)
		}
		return true, nil
	}

	inv, err := r.loadInvoice(ctx, opRepair, *txn.MatchedInvoiceID)
	if err != nil {
		return false, err
	}

	want := mirroredInvoiceStatus(txn.Status)
	var guard models.InvoiceGuard
	switch {
	case inv.BankTransactionID == nil:
	case *inv.BankTransactionID != txn.ID:
		return false, &InvalidStateError{
			Op:      opRepair,
			Status:  string(inv.Status),
			Message: fmt.Sprintf("invoice is linked to transaction %s", inv.BankTransactionID),
		}
	case inv.Status == want:
		return false, nil
	default:
		guard.CurrentTransactionID = &txn.ID
	}

	next := inv.Clone()
	next.BankTransactionID = &txn.ID
	next.Status = want
	next.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateInvoice(ctx, next, guard); err != nil {
		return false, r.storeError(opRepair, "invoice", inv.ID, err)
	}
	return true, nil
}

// writeWithInvoiceStatus writes nextTxn and, when its invoice still points
// back at it, mirrors status onto the invoice.
func (r *Reconciler) writeWithInvoiceStatus(ctx context.Context, op string, prev, nextTxn *models.BankTransaction, status models.InvoiceStatus) (*models.Invoice, error) {
	var linked *models.Invoice
	if prev.HasInvoice() {
		var err error
		linked, err = r.linkedInvoice(ctx, op, prev, *prev.MatchedInvoiceID)
		if err != nil {
			return nil, err
		}
	}

	if linked == nil {
		if err := r.store.UpdateTransaction(ctx, nextTxn); err != nil {
			return nil, r.storeError(op, "transaction", nextTxn.ID, err)
		}
		return nil, nil
	}

	nextInv := linked.Clone()
	nextInv.Status = status
	nextInv.UpdatedAt = nextTxn.UpdatedAt

	guard := models.InvoiceGuard{CurrentTransactionID: &prev.ID}
	if err := r.writePair(ctx, op, prev, nextTxn, nextInv, guard); err != nil {
		return nil, err
	}
	return nextInv, nil
}

// linkedInvoice loads the invoice txn points at. It returns nil when the
// invoice is gone or points elsewhere, in which case only the transaction
// side holds the link.
func (r *Reconciler) linkedInvoice(ctx context.Context, op string, txn *models.BankTransaction, invoiceID uuid.UUID) (*models.Invoice, error) {
	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn().
			Str("op", op).
			Str("transaction_id", txn.ID.String()).
			Str("invoice_id", invoiceID.String()).
			Msg("linked invoice not found, updating transaction only")
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}

	if inv.BankTransactionID == nil || *inv.BankTransactionID != txn.ID {
		r.logger.Warn().
			Str("op", op).
			Str("transaction_id", txn.ID.String()).
			Str("invoice_id", invoiceID.String()).
			Msg("invoice does not point back at transaction, updating transaction only")
		return nil, nil
	}
	return inv, nil
}

// writePair persists both halves of a link change. Stores that support
// transactions write both atomically; otherwise the transaction is written
// first and the invoice write is retried, compensating on conflict.
func (r *Reconciler) writePair(ctx context.Context, op string, prev, nextTxn *models.BankTransaction, nextInv *models.Invoice, guard models.InvoiceGuard) error {
	if tx, ok := r.store.(models.Transactor); ok {
		err := tx.InTx(ctx, func(s models.ReconciliationStore) error {
			if err := s.UpdateInvoice(ctx, nextInv, guard); err != nil {
				return err
			}
			return s.UpdateTransaction(ctx, nextTxn)
		})
		if err != nil {
			return r.storeError(op, "invoice", nextInv.ID, err)
		}
		return nil
	}

	if err := r.store.UpdateTransaction(ctx, nextTxn); err != nil {
		return r.storeError(op, "transaction", nextTxn.ID, err)
	}

	err := r.retry(ctx, func(ctx context.Context) error {
		return r.store.UpdateInvoice(ctx, nextInv, guard)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
		if cerr := r.store.UpdateTransaction(ctx, prev); cerr != nil {
			r.logger.Error().Err(cerr).Str("op", op).Str("transaction_id", prev.ID.String()).Msg("failed to restore transaction after invoice conflict")
			return &PartialFailureError{
				Op:            op,
				TransactionID: prev.ID,
				InvoiceID:     nextInv.ID,
				Written:       sideTransaction,
				Pending:       sideTransaction,
				Err:           cerr,
				repair: func(ctx context.Context) error {
					return r.store.UpdateTransaction(ctx, prev)
				},
			}
		}
		return r.storeError(op, "invoice", nextInv.ID, err)
	}

	r.logger.Error().Err(err).Str("op", op).
		Str("transaction_id", nextTxn.ID.String()).
		Str("invoice_id", nextInv.ID.String()).
		Msg("invoice write failed after transaction write")

	return &PartialFailureError{
		Op:            op,
		TransactionID: nextTxn.ID,
		InvoiceID:     nextInv.ID,
		Written:       sideTransaction,
		Pending:       sideInvoice,
		Err:           err,
		repair: func(ctx context.Context) error {
			return r.store.UpdateInvoice(ctx, nextInv, guard)
		},
	}
}

// createAndLink inserts a new invoice already pointing at nextTxn and writes
// nextTxn. Without transactions the invoice goes first, so a failure leaves
// an invoice whose transaction side is pending.
func (r *Reconciler) createAndLink(ctx context.Context, nextTxn *models.BankTransaction, inv *models.Invoice) error {
	if tx, ok := r.store.(models.Transactor); ok {
		err := tx.InTx(ctx, func(s models.ReconciliationStore) error {
			if err := s.CreateInvoice(ctx, inv); err != nil {
				return err
			}
			return s.UpdateTransaction(ctx, nextTxn)
		})
		if err != nil {
			return r.storeError(opCreateInvoice, "transaction", nextTxn.ID, err)
		}
		return nil
	}

	if err := r.store.CreateInvoice(ctx, inv); err != nil {
		return r.storeError(opCreateInvoice, "invoice", inv.ID, err)
	}

	err := r.retry(ctx, func(ctx context.Context) error {
		return r.store.UpdateTransaction(ctx, nextTxn)
	})
	if err == nil {
		return nil
	}

	r.logger.Error().Err(err).
		Str("transaction_id", nextTxn.ID.String()).
		Str("invoice_id", inv.ID.String()).
		Msg("transaction write failed after invoice creation")

	return &PartialFailureError{
		Op:            opCreateInvoice,
		TransactionID: nextTxn.ID,
		InvoiceID:     inv.ID,
		Written:       sideInvoice,
		Pending:       sideTransaction,
		Err:           err,
		repair: func(ctx context.Context) error {
			return r.store.UpdateTransaction(ctx, nextTxn)
		},
	}
}

// retry runs fn up to invoiceRetries+1 times. Conflicts and missing rows are
// not retried.
func (r *Reconciler) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.invoiceRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (r *Reconciler) loadTransaction(ctx context.Context, op string, id uuid.UUID) (*models.BankTransaction, error) {
	txn, err := r.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, r.storeError(op, "transaction", id, err)
	}
	return txn, nil
}

func (r *Reconciler) loadInvoice(ctx context.Context, op string, id uuid.UUID) (*models.Invoice, error) {
	inv, err := r.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, r.storeError(op, "invoice", id, err)
	}
	return inv, nil
}

// requireOpen rejects transitions out of the terminal verified status.
func (r *Reconciler) requireOpen(op string, txn *models.BankTransaction) error {
	if txn.Status.IsTerminal() {
		return &InvalidStateError{Op: op, Status: string(txn.Status), Message: "transaction is already verified"}
	}
	return nil
}

// storeError maps store sentinels onto typed errors.
func (r *Reconciler) storeError(op, resource string, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return &NotFoundError{Resource: resource, ID: id.String()}
	case errors.Is(err, models.ErrConflict):
		return &InvalidStateError{Op: op, Message: fmt.Sprintf("%s %s was changed concurrently", resource, id)}
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}

func (r *Reconciler) stamp(txn *models.BankTransaction, actor string) {
	txn.UpdatedAt = r.now().UTC()
	if actor != "" {
		txn.UpdatedBy = &actor
	}
}

func (r *Reconciler) recordAudit(ctx context.Context, action string, txnID uuid.UUID, actor string, metadata map[string]any) {
	if r.audit == nil {
		return
	}
	if actor != "" {
		metadata["actor"] = actor
	}
	r.dispatcher.Dispatch(ctx, action, func(ctx context.Context) error {
		return r.audit.LogAudit(ctx, action, models.EntityTypeBankTransaction, txnID.String(), metadata)
	})
}

// mirroredInvoiceStatus is the invoice status implied by a linked transaction's status.
func mirroredInvoiceStatus(status models.ReconciliationStatus) models.InvoiceStatus {
	switch status {
	case models.StatusVerified:
		return models.InvoiceVerified
	case models.StatusNonRapproche:
		return models.InvoiceNonRapproche
	default:
		return models.InvoiceManuel
	}
}

// trimmed returns nil for nil or blank strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
