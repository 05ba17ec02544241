package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Period is a calendar month, or January through that month when YearToDate is set.
type Period struct {
	Year       int
	Month      time.Month
	YearToDate bool
}

// ParsePeriod parses a YYYY-MM month.
func ParsePeriod(month string, yearToDate bool) (Period, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return Period{}, &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q, expected YYYY-MM", month)}
	}
	return Period{Year: t.Year(), Month: t.Month(), YearToDate: yearToDate}, nil
}

// Bounds returns the [from, to) window of the period in UTC.
func (p Period) Bounds() (time.Time, time.Time) {
	from := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	if p.YearToDate {
		from = time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	to := time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return from, to
}

func (p Period) String() string {
	if p.YearToDate {
		return fmt.Sprintf("%04d-01..%04d-%02d", p.Year, p.Year, int(p.Month))
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// CoverageKPI counts a set of transactions by reconciliation outcome.
type CoverageKPI struct {
	Total           int             `json:"total"`
	Reconciled      int             `json:"reconciled"`
	Verified        int             `json:"verified"`
	NonRapprochees  int             `json:"non_rapprochees"`
	Flaggees        int             `json:"flaggees"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	CoveragePercent int             `json:"coverage_percent"`
}

// EntityCoverage is the KPI of one entity.
type EntityCoverage struct {
	EntityID   uuid.UUID `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	EntityCode string    `json:"entity_code"`
	CoverageKPI
}

// CoverageReport holds the global KPI and one KPI per entity.
type CoverageReport struct {
	Global   CoverageKPI      `json:"global"`
	ByEntity []EntityCoverage `json:"by_entity"`
}

// CoordinatorOptions are the knobs of period and candidate loading.
type CoordinatorOptions struct {
	OrphanInvoiceLimit            int
	CandidatePoolLimit            int
	SuggestAmountTolerancePercent float64
	Match                         MatchOptions
}

// DefaultCoordinatorOptions returns the documented defaults.
func DefaultCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		OrphanInvoiceLimit:            100,
		CandidatePoolLimit:            500,
		SuggestAmountTolerancePercent: 10,
		Match:                         DefaultMatchOptions(),
	}
}

// BatchAction is one review decision in a batch.
type BatchAction struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Action        string    `json:"action"`
	Notes         *string   `json:"notes,omitempty"`
}

// BatchFailure describes why one batch item was not applied.
type BatchFailure struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Code          string    `json:"code"`
	Error         string    `json:"error"`
}

// BatchResult summarises a batch review.
type BatchResult struct {
	Processed int            `json:"processed"`
	Succeeded []uuid.UUID    `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// Batch review actions
const (
	BatchVerify  = "verify"
	BatchConfirm = "confirm"
	BatchReject  = "reject"
)

// Coordinator orchestrates period-scoped reads and batch review on top of
// the Reconciler.
type Coordinator struct {
	reconciler *Reconciler
	store      models.ReconciliationStore
	entities   *EntityRegistry
	defaults   *SupplierDefaults
	opts       CoordinatorOptions
	logger     zerolog.Logger
}

// NewCoordinator creates a coordinator. defaults may be nil.
func NewCoordinator(reconciler *Reconciler, store models.ReconciliationStore, entities *EntityRegistry, defaults *SupplierDefaults, opts CoordinatorOptions, logger zerolog.Logger) *Coordinator {
	base := DefaultCoordinatorOptions()
	if opts.OrphanInvoiceLimit <= 0 {
		opts.OrphanInvoiceLimit = base.OrphanInvoiceLimit
	}
	if opts.CandidatePoolLimit <= 0 {
		opts.CandidatePoolLimit = base.CandidatePoolLimit
	}
	if opts.SuggestAmountTolerancePercent <= 0 {
		opts.SuggestAmountTolerancePercent = base.SuggestAmountTolerancePercent
	}
	if opts.Match == (MatchOptions{}) {
		opts.Match = base.Match
	}
	return &Coordinator{
		reconciler: reconciler,
		store:      store,
		entities:   entities,
		defaults:   defaults,
		opts:       opts,
		logger:     logger,
	}
}

// Reconciler exposes the transitions.
func (c *Coordinator) Reconciler() *Reconciler {
	return c.reconciler
}

// MatchDefaults returns the configured interactive matching options.
func (c *Coordinator) MatchDefaults() MatchOptions {
	return c.opts.Match
}

// Entities lists the legal entities.
func (c *Coordinator) Entities(ctx context.Context) ([]models.Entity, error) {
	return c.entities.List(ctx)
}

// LoadPeriod returns the transactions booked in the period, newest first.
func (c *Coordinator) LoadPeriod(ctx context.Context, entityID *uuid.UUID, period Period) ([]models.BankTransaction, error) {
	if entityID != nil {
		if _, err := c.entities.Lookup(ctx, *entityID); err != nil {
			return nil, err
		}
	}

	from, to := period.Bounds()
	txns, err := c.store.ListTransactions(ctx, models.TransactionFilter{EntityID: entityID, From: from, To: to})
	if err != nil {
		return nil, &PersistenceError{Op: "load_period", Err: err}
	}
	return txns, nil
}

// Invoice loads one invoice.
func (c *Coordinator) Invoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return c.reconciler.loadInvoice(ctx, "get_invoice", id)
}

// LoadOrphanInvoices returns unmatched invoices, newest first. limit <= 0
// uses the configured default.
func (c *Coordinator) LoadOrphanInvoices(ctx context.Context, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = c.opts.OrphanInvoiceLimit
	}
	invoices, err := c.store.ListOrphanInvoices(ctx, models.InvoiceFilter{Limit: limit})
	if err != nil {
		return nil, &PersistenceError{Op: "load_orphan_invoices", Err: err}
	}
	return invoices, nil
}

// Coverage loads the period and computes its KPIs.
func (c *Coordinator) Coverage(ctx context.Context, entityID *uuid.UUID, period Period) ([]models.BankTransaction, CoverageReport, error) {
	txns, err := c.LoadPeriod(ctx, entityID, period)
	if err != nil {
		return nil, CoverageReport{}, err
	}
	entities, err := c.entities.List(ctx)
	if err != nil {
		return nil, CoverageReport{}, err
	}
	return txns, ComputeCoverage(txns, entities), nil
}

// ComputeCoverage counts transactions globally and per entity. Entities are
// reported in the order given, followed by any unknown entity ids.
func ComputeCoverage(txns []models.BankTransaction, entities []models.Entity) CoverageReport {
	report := CoverageReport{Global: newCoverageKPI()}

	perEntity := make(map[uuid.UUID]*CoverageKPI)
	for i := range txns {
		txn := &txns[i]
		kpi, ok := perEntity[txn.EntityID]
		if !ok {
			k := newCoverageKPI()
			kpi = &k
			perEntity[txn.EntityID] = kpi
		}
		kpi.add(txn)
		report.Global.add(txn)
	}

	report.Global.finish()

	known := make(map[uuid.UUID]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
		kpi, ok := perEntity[e.ID]
		if !ok {
			continue
		}
		kpi.finish()
		report.ByEntity = append(report.ByEntity, EntityCoverage{
			EntityID:    e.ID,
			EntityName:  e.Name,
			EntityCode:  e.Code,
			CoverageKPI: *kpi,
		})
	}

	var unknown []uuid.UUID
	for id := range perEntity {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i].String() < unknown[j].String() })
	for _, id := range unknown {
		kpi := perEntity[id]
		kpi.finish()
		report.ByEntity = append(report.ByEntity, EntityCoverage{EntityID: id, CoverageKPI: *kpi})
	}

	return report
}

func newCoverageKPI() CoverageKPI {
	return CoverageKPI{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
}

func (k *CoverageKPI) add(txn *models.BankTransaction) {
	k.Total++
	switch {
	case txn.Status.IsReconciled():
		k.Reconciled++
		if txn.Status == models.StatusVerified {
			k.Verified++
		}
	case txn.Status == models.StatusFlag:
		k.Flaggees++
	case txn.Status == models.StatusNonRapproche:
		k.NonRapprochees++
	}
	k.TotalDebit = k.TotalDebit.Add(txn.Debit)
	k.TotalCredit = k.TotalCredit.Add(txn.Credit)
}

func (k *CoverageKPI) finish() {
	if k.Total == 0 {
		k.CoveragePercent = 0
		return
	}
	k.CoveragePercent = int(math.Round(100 * float64(k.Reconciled) / float64(k.Total)))
}

// SuggestForTransaction ranks orphan invoices within the quick-suggest amount
// tolerance of the transaction.
func (c *Coordinator) SuggestForTransaction(ctx context.Context, txnID uuid.UUID) ([]Candidate, error) {
	txn, err := c.reconciler.loadTransaction(ctx, "suggest", txnID)
	if err != nil {
		return nil, err
	}

	tolerance := c.opts.SuggestAmountTolerancePercent
	filter := models.InvoiceFilter{EntityID: &txn.EntityID, Limit: c.opts.CandidatePoolLimit}
	if amt := txn.Amount(); amt.IsPositive() {
		delta := amt.Mul(decimal.NewFromFloat(tolerance)).Div(decimal.NewFromInt(100))
		lo, hi := amt.Sub(delta), amt.Add(delta)
		filter.MinAmount, filter.MaxAmount = &lo, &hi
	}

	pool, err := c.store.ListOrphanInvoices(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "suggest", Err: err}
	}

	return RankCandidates(txn, pool, MatchOptions{
		AmountTolerancePercent: tolerance,
		DateToleranceDays:      Disabled,
		Limit:                  MaxCandidates,
	}), nil
}

// Candidates ranks the orphan pool for a transaction with caller-supplied tolerances.
func (c *Coordinator) Candidates(ctx context.Context, txnID uuid.UUID, opts MatchOptions) ([]Candidate, error) {
	txn, err := c.reconciler.loadTransaction(ctx, "candidates", txnID)
	if err != nil {
		return nil, err
	}

	pool, err := c.store.ListOrphanInvoices(ctx, models.InvoiceFilter{
		EntityID: &txn.EntityID,
		Limit:    c.opts.CandidatePoolLimit,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "candidates", Err: err}
	}

	return RankCandidates(txn, pool, opts), nil
}

// SuggestCategory returns the learned category for a transaction's label, if any.
func (c *Coordinator) SuggestCategory(ctx context.Context, txnID uuid.UUID) (*CategorySuggestion, error) {
	txn, err := c.reconciler.loadTransaction(ctx, "suggest_category", txnID)
	if err != nil {
		return nil, err
	}
	if c.defaults == nil {
		return nil, nil
	}

	suggestion, err := c.defaults.Suggest(ctx, txn.EntityID, txn.LabelSimple)
	if err != nil {
		return nil, &PersistenceError{Op: "suggest_category", Err: err}
	}
	return suggestion, nil
}

// NextInBatch returns the index to review after current, and false when the
// batch is finished.
func NextInBatch(batchLen, current int) (int, bool) {
	if current < 0 || current+1 >= batchLen {
		return 0, false
	}
	return current + 1, true
}

// ReviewBatch applies review actions in order. A failing item does not stop
// the batch; its typed error is reported.
func (c *Coordinator) ReviewBatch(ctx context.Context, actions []BatchAction, actor string) BatchResult {
	result := BatchResult{
		Succeeded: make([]uuid.UUID, 0, len(actions)),
		Failed:    make([]BatchFailure, 0),
	}

	for i, action := range actions {
		if ctx.Err() != nil {
			for _, rest := range actions[i:] {
				result.Failed = append(result.Failed, BatchFailure{
					TransactionID: rest.TransactionID,
					Code:          CodePersistence,
					Error:         ctx.Err().Error(),
				})
			}
			break
		}

		result.Processed++
		if err := c.applyReview(ctx, action, actor); err != nil {
			c.logger.Warn().Err(err).
				Str("transaction_id", action.TransactionID.String()).
				Str("action", action.Action).
				Msg("batch review item failed")
			result.Failed = append(result.Failed, BatchFailure{
				TransactionID: action.TransactionID,
				Code:          ErrorCode(err),
				Error:         err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, action.TransactionID)
	}

	return result
}

func (c *Coordinator) applyReview(ctx context.Context, action BatchAction, actor string) error {
	var err error
	switch action.Action {
	case BatchVerify:
		_, err = c.reconciler.Verify(ctx, action.TransactionID, action.Notes, actor)
	case BatchConfirm:
		_, err = c.reconciler.ConfirmMatch(ctx, action.TransactionID, actor)
	case BatchReject:
		_, err = c.reconciler.Reject(ctx, action.TransactionID, actor)
	default:
		err = &ValidationError{Field: "action", Message: fmt.Sprintf("unknown batch action %q", action.Action)}
	}
	return err
}

// Repair re-applies the pending half of a partial failure.
func (c *Coordinator) Repair(ctx context.Context, err error) error {
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		return &ValidationError{Message: "error is not a partial failure"}
	}

	if rerr := pf.Repair(ctx); rerr != nil {
		return &PersistenceError{Op: opRepair, Err: fmt.Errorf("%s: %w", pf.Op, rerr)}
	}

	c.logger.Info().
		Str("op", pf.Op).
		Str("transaction_id", pf.TransactionID.String()).
		Str("invoice_id", pf.InvoiceID.String()).
		Msg("partial failure repaired")
	return nil
}

// RepairTransaction re-derives the invoice side of a pair from the stored
// transaction. It serves callers that no longer hold the original error.
func (c *Coordinator) RepairTransaction(ctx context.Context, txnID uuid.UUID) (bool, error) {
	return c.reconciler.RepairTransaction(ctx, txnID)
}
