package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
)

// memStore is an in-memory ReconciliationStore with error injection.
type memStore struct {
	mu       sync.Mutex
	txns     map[uuid.UUID]*models.BankTransaction
	invoices map[uuid.UUID]*models.Invoice
	entities []models.Entity

	// Errors returned, in order, by the next UpdateInvoice / UpdateTransaction calls.
	invoiceErrs []error
	txnErrs     []error

	invoiceWrites int
	txnWrites     int
	listErr       error
}

func newMemStore() *memStore {
	return &memStore{
		txns:     make(map[uuid.UUID]*models.BankTransaction),
		invoices: make(map[uuid.UUID]*models.Invoice),
	}
}

func (m *memStore) addTxn(txn *models.BankTransaction) *models.BankTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[txn.ID] = txn.Clone()
	return txn
}

func (m *memStore) addInvoice(inv models.Invoice) models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv.Clone()
	return inv
}

func (m *memStore) txn(id uuid.UUID) *models.BankTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns[id].Clone()
}

func (m *memStore) invoice(id uuid.UUID) *models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil
	}
	return inv.Clone()
}

func (m *memStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return txn.Clone(), nil
}

func (m *memStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []models.BankTransaction
	for _, txn := range m.txns {
		if filter.EntityID != nil && txn.EntityID != *filter.EntityID {
			continue
		}
		if txn.AccountingDate == nil || txn.AccountingDate.Before(filter.From) || !txn.AccountingDate.Before(filter.To) {
			continue
		}
		out = append(out, *txn.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccountingDate.After(*out[j].AccountingDate)
	})
	return out, nil
}

func (m *memStore) UpdateTransaction(ctx context.Context, txn *models.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txnErrs) > 0 {
		err := m.txnErrs[0]
		m.txnErrs = m.txnErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.txns[txn.ID]; !ok {
		return models.ErrNotFound
	}
	m.txns[txn.ID] = txn.Clone()
	m.txnWrites++
	return nil
}

func (m *memStore) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return inv.Clone(), nil
}

func (m *memStore) FindInvoiceByTransaction(ctx context.Context, txnID uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.BankTransactionID != nil && *inv.BankTransactionID == txnID {
			return inv.Clone(), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ListOrphanInvoices(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []models.Invoice
	for _, inv := range m.invoices {
		if !inv.IsOrphan() {
			continue
		}
		if filter.EntityID != nil && inv.EntityID != *filter.EntityID {
			continue
		}
		if filter.MinAmount != nil && inv.AmountTTC.LessThan(*filter.MinAmount) {
			continue
		}
		if filter.MaxAmount != nil && inv.AmountTTC.GreaterThan(*filter.MaxAmount) {
			continue
		}
		out = append(out, *inv.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AmountTTC.LessThan(out[j].AmountTTC)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; ok {
		return errors.New("duplicate invoice")
	}
	m.invoices[inv.ID] = inv.Clone()
	return nil
}

func (m *memStore) UpdateInvoice(ctx context.Context, inv *models.Invoice, guard models.InvoiceGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.invoiceErrs) > 0 {
		err := m.invoiceErrs[0]
		m.invoiceErrs = m.invoiceErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return models.ErrNotFound
	}
	if !sameUUID(stored.BankTransactionID, guard.CurrentTransactionID) {
		return models.ErrConflict
	}
	m.invoices[inv.ID] = inv.Clone()
	m.invoiceWrites++
	return nil
}

func (m *memStore) ListEntities(ctx context.Context) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.Entity(nil), m.entities...), nil
}

func (m *memStore) snapshot() (map[uuid.UUID]*models.BankTransaction, map[uuid.UUID]*models.Invoice) {
	txns := make(map[uuid.UUID]*models.BankTransaction, len(m.txns))
	for id, txn := range m.txns {
		txns[id] = txn.Clone()
	}
	invoices := make(map[uuid.UUID]*models.Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		invoices[id] = inv.Clone()
	}
	return txns, invoices
}

// memTxStore adds all-or-nothing transactions on top of memStore.
type memTxStore struct {
	*memStore
	txMu sync.Mutex
}

func newMemTxStore() *memTxStore {
	return &memTxStore{memStore: newMemStore()}
}

func (m *memTxStore) InTx(ctx context.Context, fn func(store models.ReconciliationStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	txns, invoices := m.snapshot()
	m.mu.Unlock()

	if err := fn(m.memStore); err != nil {
		m.mu.Lock()
		m.txns, m.invoices = txns, invoices
		m.mu.Unlock()
		return err
	}
	return nil
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type auditCall struct {
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
}

// recordingAudit captures audit calls and can be made to fail.
type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
	err   error
}

func (a *recordingAudit) LogAudit(ctx context.Context, action, entityType, entityID string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, auditCall{Action: action, EntityType: entityType, EntityID: entityID, Metadata: metadata})
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.calls))
	for _, c := range a.calls {
		out = append(out, c.Action)
	}
	return out
}

func (a *recordingAudit) last() auditCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

type learnCall struct {
	EntityID uuid.UUID
	Label    string
	Category string
}

type recordingLearner struct {
	mu    sync.Mutex
	calls []learnCall
	err   error
}

func (l *recordingLearner) Learn(ctx context.Context, entityID uuid.UUID, label, category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, learnCall{EntityID: entityID, Label: label, Category: category})
	return l.err
}
