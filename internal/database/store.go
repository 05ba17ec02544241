package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rapprochement/rapprochement-api/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the reconciliation, entity, audit and supplier default stores on Postgres.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

// NewStore creates a store on top of a pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// InTx runs fn inside one database transaction. fn sees a store bound to the
// transaction; any error rolls every write back.
func (s *Store) InTx(ctx context.Context, fn func(store models.ReconciliationStore) error) error {
	if s.pool == nil {
		// Already inside a transaction
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

const transactionColumns = `id, entity_id, debit, credit, accounting_date, operation_date,
	label_simple, label_operation, reference, details,
	category, subcategory, manual_category, manual_comment, transaction_type,
	rapprochement_status, rapprochement_notes, matched_invoice_id, matched_tenant_id,
	match_confidence, split_group_id, flagged_reason, verified_by, verified_at, updated_by, updated_at`

const invoiceColumns = `id, entity_id, bank_transaction_id, amount_ttc, invoice_date,
	supplier, type_service, product, file_name, storage_path, file_path,
	rapprochement_status, confidence_score, created_at, updated_at`

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id = $1`, toPgUUID(id))
	txn, err := scanTransaction(row)
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	return txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM bank_transactions
		WHERE accounting_date >= $1 AND accounting_date < $2
		  AND ($3::uuid IS NULL OR entity_id = $3)
		ORDER BY accounting_date DESC, id`,
		toPgDate(filter.From), toPgDate(filter.To), toNullPgUUID(filter.EntityID))
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()

	var txns []models.BankTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, storeErr("scan transaction", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list transactions", err)
	}
	return txns, nil
}

// UpdateTransaction writes every mutable reconciliation column. Imported
// fields (amounts, dates, labels) are never touched.
func (s *Store) UpdateTransaction(ctx context.Context, txn *models.BankTransaction) error {
	var reason *string
	if txn.FlaggedReason != nil {
		r := string(*txn.FlaggedReason)
		reason = &r
	}
	tag, err := s.db.Exec(ctx, `UPDATE bank_transactions SET
			manual_category = $2, manual_comment = $3, transaction_type = $4,
			rapprochement_status = $5, rapprochement_notes = $6,
			matched_invoice_id = $7, matched_tenant_id = $8, match_confidence = $9,
			split_group_id = $10, flagged_reason = $11,
			verified_by = $12, verified_at = $13, updated_by = $14, updated_at = $15
		WHERE id = $1`,
		toPgUUID(txn.ID),
		txn.ManualCategory, txn.ManualComment, string(txn.TransactionType),
		string(txn.Status), txn.Notes,
		toNullPgUUID(txn.MatchedInvoiceID), toNullPgUUID(txn.MatchedTenantID), txn.MatchConfidence,
		toNullPgUUID(txn.SplitGroupID), reason,
		txn.VerifiedBy, txn.VerifiedAt, txn.UpdatedBy, txn.UpdatedAt,
	)
	if err != nil {
		return storeErr("update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	row := s.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, toPgUUID(id))
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, storeErr("get invoice", err)
	}
	return inv, nil
}

func (s *Store) FindInvoiceByTransaction(ctx context.Context, txnID uuid.UUID) (*models.Invoice, error) {
	row := s.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE bank_transaction_id = $1`, toPgUUID(txnID))
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, storeErr("find invoice by transaction", err)
	}
	return inv, nil
}

func (s *Store) ListOrphanInvoices(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, error) {
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE bank_transaction_id IS NULL
		  AND ($1::uuid IS NULL OR entity_id = $1)
		  AND ($2::numeric IS NULL OR amount_ttc >= $2)
		  AND ($3::numeric IS NULL OR amount_ttc <= $3)
		ORDER BY invoice_date DESC NULLS LAST, id
		LIMIT $4`,
		toNullPgUUID(filter.EntityID), toNullNumeric(filter.MinAmount), toNullNumeric(filter.MaxAmount), limit)
	if err != nil {
		return nil, storeErr("list orphan invoices", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, storeErr("scan invoice", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list orphan invoices", err)
	}
	return invoices, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	_, err := s.db.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		toPgUUID(inv.ID), toPgUUID(inv.EntityID), toNullPgUUID(inv.BankTransactionID),
		toNumeric(inv.AmountTTC), toNullPgDate(inv.InvoiceDate),
		inv.Supplier, inv.TypeService, inv.Product, inv.FileName, inv.StoragePath, inv.FilePath,
		string(inv.Status), inv.ConfidenceScore, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return storeErr("create invoice", err)
	}
	return nil
}

// UpdateInvoice writes the link columns only when the stored link still
// equals guard.CurrentTransactionID.
func (s *Store) UpdateInvoice(ctx context.Context, inv *models.Invoice, guard models.InvoiceGuard) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET
			bank_transaction_id = $2, rapprochement_status = $3, confidence_score = $4, updated_at = $5
		WHERE id = $1 AND bank_transaction_id IS NOT DISTINCT FROM $6`,
		toPgUUID(inv.ID), toNullPgUUID(inv.BankTransactionID), string(inv.Status),
		inv.ConfidenceScore, inv.UpdatedAt, toNullPgUUID(guard.CurrentTransactionID),
	)
	if err != nil {
		return storeErr("update invoice", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, toPgUUID(inv.ID)).Scan(&exists); err != nil {
		return storeErr("update invoice", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, code FROM entities ORDER BY name`)
	if err != nil {
		return nil, storeErr("list entities", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var id pgtype.UUID
		var e models.Entity
		if err := rows.Scan(&id, &e.Name, &e.Code); err != nil {
			return nil, storeErr("scan entity", err)
		}
		e.ID = fromPgUUID(id)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list entities", err)
	}
	return entities, nil
}

func (s *Store) InsertAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	var actor *string
	if entry.Actor != "" {
		actor = &entry.Actor
	}
	_, err := s.db.Exec(ctx, `INSERT INTO audit_log (id, action, entity_type, entity_id, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		toPgUUID(entry.ID), entry.Action, entry.EntityType, entry.EntityID, actor, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return storeErr("insert audit entry", err)
	}
	return nil
}

// UpsertSupplierDefault records the category for a pattern and bumps its usage count.
func (s *Store) UpsertSupplierDefault(ctx context.Context, pattern string, entityID uuid.UUID, category string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO supplier_defaults (supplier_pattern, entity_id, default_category, usage_count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (supplier_pattern, entity_id) DO UPDATE SET
			default_category = EXCLUDED.default_category,
			usage_count = supplier_defaults.usage_count + 1,
			updated_at = now()`,
		pattern, toPgUUID(entityID), category,
	)
	if err != nil {
		return storeErr("upsert supplier default", err)
	}
	return nil
}

func (s *Store) ListSupplierDefaults(ctx context.Context, entityID uuid.UUID) ([]models.SupplierDefault, error) {
	rows, err := s.db.Query(ctx, `SELECT id, supplier_pattern, entity_id, default_category, usage_count, updated_at
		FROM supplier_defaults WHERE entity_id = $1
		ORDER BY usage_count DESC, supplier_pattern`, toPgUUID(entityID))
	if err != nil {
		return nil, storeErr("list supplier defaults", err)
	}
	defer rows.Close()

	var defaults []models.SupplierDefault
	for rows.Next() {
		var id, entity pgtype.UUID
		var d models.SupplierDefault
		if err := rows.Scan(&id, &d.SupplierPattern, &entity, &d.DefaultCategory, &d.UsageCount, &d.UpdatedAt); err != nil {
			return nil, storeErr("scan supplier default", err)
		}
		d.ID = fromPgUUID(id)
		d.EntityID = fromPgUUID(entity)
		defaults = append(defaults, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list supplier defaults", err)
	}
	return defaults, nil
}

func scanTransaction(row pgx.Row) (*models.BankTransaction, error) {
	var (
		txn                               models.BankTransaction
		id, entityID                      pgtype.UUID
		invoiceID, tenantID, splitGroupID pgtype.UUID
		debit, credit                     pgtype.Numeric
		accountingDate, operationDate     pgtype.Date
		txnType, status                   string
		reason                            *string
		verifiedAt                        *time.Time
	)
	err := row.Scan(
		&id, &entityID, &debit, &credit, &accountingDate, &operationDate,
		&txn.LabelSimple, &txn.LabelOperation, &txn.Reference, &txn.Details,
		&txn.Category, &txn.Subcategory, &txn.ManualCategory, &txn.ManualComment, &txnType,
		&status, &txn.Notes, &invoiceID, &tenantID,
		&txn.MatchConfidence, &splitGroupID, &reason, &txn.VerifiedBy, &verifiedAt, &txn.UpdatedBy, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.ID = fromPgUUID(id)
	txn.EntityID = fromPgUUID(entityID)
	txn.MatchedInvoiceID = fromNullPgUUID(invoiceID)
	txn.MatchedTenantID = fromNullPgUUID(tenantID)
	txn.SplitGroupID = fromNullPgUUID(splitGroupID)
	txn.Debit = fromNumeric(debit)
	txn.Credit = fromNumeric(credit)
	txn.AccountingDate = fromPgDate(accountingDate)
	txn.OperationDate = fromPgDate(operationDate)
	txn.VerifiedAt = verifiedAt
	txn.TransactionType = models.TransactionType(txnType)
	txn.Status = models.ReconciliationStatus(status)
	if reason != nil {
		r := models.FlagReason(*reason)
		txn.FlaggedReason = &r
	}
	return &txn, nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		inv          models.Invoice
		id, entityID pgtype.UUID
		txnID        pgtype.UUID
		amount       pgtype.Numeric
		invoiceDate  pgtype.Date
		status       string
	)
	err := row.Scan(
		&id, &entityID, &txnID, &amount, &invoiceDate,
		&inv.Supplier, &inv.TypeService, &inv.Product, &inv.FileName, &inv.StoragePath, &inv.FilePath,
		&status, &inv.ConfidenceScore, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.ID = fromPgUUID(id)
	inv.EntityID = fromPgUUID(entityID)
	inv.BankTransactionID = fromNullPgUUID(txnID)
	inv.AmountTTC = fromNumeric(amount)
	inv.InvoiceDate = fromPgDate(invoiceDate)
	inv.Status = models.InvoiceStatus(status)
	return &inv, nil
}

// storeErr maps driver errors onto the store sentinels.
func storeErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, models.ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

var (
	_ models.ReconciliationStore  = (*Store)(nil)
	_ models.Transactor           = (*Store)(nil)
	_ models.EntityStore          = (*Store)(nil)
	_ models.AuditStore           = (*Store)(nil)
	_ models.SupplierDefaultStore = (*Store)(nil)
)
