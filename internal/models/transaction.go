package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankTransaction is a bank movement imported for an entity. Ingestion happens
// elsewhere; this service only moves it through the reconciliation states.
type BankTransaction struct {
	ID       uuid.UUID `json:"id"`
	EntityID uuid.UUID `json:"entity_id"`

	// At most one of Debit and Credit is non-zero.
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`

	AccountingDate *time.Time `json:"accounting_date,omitempty"`
	OperationDate  *time.Time `json:"operation_date,omitempty"`
	LabelSimple    string     `json:"label_simple"`
	LabelOperation string     `json:"label_operation"`
	Reference      string     `json:"reference"`
	Details        string     `json:"details"`

	Category        *string         `json:"category,omitempty"`
	Subcategory     *string         `json:"subcategory,omitempty"`
	ManualCategory  *string         `json:"manual_category,omitempty"`
	ManualComment   *string         `json:"manual_comment,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`

	Status           ReconciliationStatus `json:"rapprochement_status"`
	Notes            *string              `json:"rapprochement_notes,omitempty"`
	MatchedInvoiceID *uuid.UUID           `json:"matched_invoice_id,omitempty"`
	MatchedTenantID  *uuid.UUID           `json:"matched_tenant_id,omitempty"`
	MatchConfidence  *int                 `json:"match_confidence,omitempty"`
	SplitGroupID     *uuid.UUID           `json:"split_group_id,omitempty"`
	FlaggedReason    *FlagReason          `json:"flagged_reason,omitempty"`

	VerifiedBy *string    `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	UpdatedBy  *string    `json:"updated_by,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Amount is the debit when one was booked, the credit otherwise.
func (t *BankTransaction) Amount() decimal.Decimal {
	if t.Debit.IsPositive() {
		return t.Debit
	}
	return t.Credit
}

// HasInvoice reports whether the transaction points at an invoice.
func (t *BankTransaction) HasInvoice() bool {
	return t.MatchedInvoiceID != nil
}

// Clone returns a copy that shares no pointers with t.
func (t *BankTransaction) Clone() *BankTransaction {
	c := *t
	c.AccountingDate = cloneTime(t.AccountingDate)
	c.OperationDate = cloneTime(t.OperationDate)
	c.Category = cloneString(t.Category)
	c.Subcategory = cloneString(t.Subcategory)
	c.ManualCategory = cloneString(t.ManualCategory)
	c.ManualComment = cloneString(t.ManualComment)
	c.Notes = cloneString(t.Notes)
	c.MatchedInvoiceID = cloneUUID(t.MatchedInvoiceID)
	c.MatchedTenantID = cloneUUID(t.MatchedTenantID)
	c.SplitGroupID = cloneUUID(t.SplitGroupID)
	c.VerifiedBy = cloneString(t.VerifiedBy)
	c.VerifiedAt = cloneTime(t.VerifiedAt)
	c.UpdatedBy = cloneString(t.UpdatedBy)
	if t.MatchConfidence != nil {
		v := *t.MatchConfidence
		c.MatchConfidence = &v
	}
	if t.FlaggedReason != nil {
		v := *t.FlaggedReason
		c.FlaggedReason = &v
	}
	return &c
}

// Invoice is a supplier document that may back exactly one bank transaction.
type Invoice struct {
	ID                uuid.UUID  `json:"id"`
	EntityID          uuid.UUID  `json:"entity_id"`
	BankTransactionID *uuid.UUID `json:"bank_transaction_id,omitempty"`

	AmountTTC   decimal.Decimal `json:"amount_ttc"`
	InvoiceDate *time.Time      `json:"invoice_date,omitempty"`

	Supplier    string  `json:"supplier"`
	TypeService string  `json:"type_service"`
	Product     string  `json:"product"`
	FileName    string  `json:"file_name"`
	StoragePath *string `json:"storage_path,omitempty"`
	FilePath    *string `json:"file_path,omitempty"`

	Status          InvoiceStatus `json:"rapprochement_status"`
	ConfidenceScore *int          `json:"confidence_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOrphan reports whether no transaction is linked to the invoice.
func (i *Invoice) IsOrphan() bool {
	return i.BankTransactionID == nil
}

// DocumentKey returns the object key of the supporting document, preferring
// storage_path over the legacy file_path.
func (i *Invoice) DocumentKey() string {
	if i.StoragePath != nil && *i.StoragePath != "" {
		return *i.StoragePath
	}
	if i.FilePath != nil {
		return *i.FilePath
	}
	return ""
}

// Clone returns a copy that shares no pointers with i.
func (i *Invoice) Clone() *Invoice {
	c := *i
	c.BankTransactionID = cloneUUID(i.BankTransactionID)
	c.InvoiceDate = cloneTime(i.InvoiceDate)
	c.StoragePath = cloneString(i.StoragePath)
	c.FilePath = cloneString(i.FilePath)
	if i.ConfidenceScore != nil {
		v := *i.ConfidenceScore
		c.ConfidenceScore = &v
	}
	return &c
}

// Entity is a legal entity owning bank accounts and invoices.
type Entity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
