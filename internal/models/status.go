package models

import "fmt"

// ReconciliationStatus is the rapprochement state of a bank transaction.
type ReconciliationStatus string

const (
	StatusNonRapproche ReconciliationStatus = "non_rapproche"
	StatusAuto         ReconciliationStatus = "auto"
	StatusManuel       ReconciliationStatus = "manuel"
	StatusVerified     ReconciliationStatus = "verified"
	StatusFlag         ReconciliationStatus = "flag"
)

// ParseReconciliationStatus rejects any value outside the known states.
func ParseReconciliationStatus(s string) (ReconciliationStatus, error) {
	switch ReconciliationStatus(s) {
	case StatusNonRapproche, StatusAuto, StatusManuel, StatusVerified, StatusFlag:
		return ReconciliationStatus(s), nil
	}
	return "", fmt.Errorf("unknown reconciliation status %q", s)
}

// IsReconciled reports whether the status counts toward coverage.
func (s ReconciliationStatus) IsReconciled() bool {
	switch s {
	case StatusAuto, StatusManuel, StatusVerified:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s ReconciliationStatus) IsTerminal() bool {
	return s == StatusVerified
}

// InvoiceStatus is the subset of reconciliation states mirrored on an invoice.
type InvoiceStatus string

const (
	InvoiceNonRapproche InvoiceStatus = "non_rapproche"
	InvoiceManuel       InvoiceStatus = "manuel"
	InvoiceVerified     InvoiceStatus = "verified"
)

// ParseInvoiceStatus rejects any value outside the mirrored states.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceNonRapproche, InvoiceManuel, InvoiceVerified:
		return InvoiceStatus(s), nil
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// FlagReason explains why a transaction needs review.
type FlagReason string

const (
	FlagPossibleDuplicate FlagReason = "possible_duplicate"
	FlagWrongEntity       FlagReason = "wrong_entity"
	FlagUnusualAmount     FlagReason = "unusual_amount"
	FlagDateGap           FlagReason = "date_gap"
	FlagManualReview      FlagReason = "manual_review"
)

// FlagReasons lists every accepted reason, in display order.
func FlagReasons() []FlagReason {
	return []FlagReason{
		FlagPossibleDuplicate,
		FlagWrongEntity,
		FlagUnusualAmount,
		FlagDateGap,
		FlagManualReview,
	}
}

// ParseFlagReason rejects empty values and anything outside the closed set.
func ParseFlagReason(s string) (FlagReason, error) {
	switch FlagReason(s) {
	case FlagPossibleDuplicate, FlagWrongEntity, FlagUnusualAmount, FlagDateGap, FlagManualReview:
		return FlagReason(s), nil
	case "":
		return "", fmt.Errorf("flag reason is required")
	}
	return "", fmt.Errorf("unknown flag reason %q", s)
}

// TransactionType is the operator-facing classification tag of a transaction.
type TransactionType string

const (
	TypeNonClasse       TransactionType = "non_classe"
	TypeCharge          TransactionType = "charge"
	TypeRevenu          TransactionType = "revenu"
	TypeLoyer           TransactionType = "loyer"
	TypeFraisBancaires  TransactionType = "frais_bancaires"
	TypeVirementInterne TransactionType = "virement_interne"
	TypeImpot           TransactionType = "impot"
	TypeRemboursement   TransactionType = "remboursement"
)

// ParseTransactionType maps "" to non_classe and rejects unknown tags.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(s) {
	case "":
		return TypeNonClasse, nil
	case TypeNonClasse, TypeCharge, TypeRevenu, TypeLoyer, TypeFraisBancaires,
		TypeVirementInterne, TypeImpot, TypeRemboursement:
		return TransactionType(s), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}
