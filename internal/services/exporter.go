package services

import (
	"fmt"
	"io"

	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	SheetTransactions = "Transactions"
	SheetCoverage     = "Couverture"
)

var transactionHeaders = []interface{}{
	"Date", "Libellé", "Référence", "Débit", "Crédit", "Catégorie", "Type",
	"Statut", "Facture", "Confiance", "Motif", "Notes", "Vérifié par",
}

var coverageHeaders = []interface{}{
	"Entité", "Code", "Transactions", "Rapprochées", "Vérifiées",
	"Non rapprochées", "Flaggées", "Total débit", "Total crédit", "Couverture %",
}

// PeriodExport writes a reconciliation period as an XLSX workbook
type PeriodExport struct {
	Period       Period
	Transactions []models.BankTransaction
	Coverage     CoverageReport
}

// WriteXLSX renders the transactions sheet and the coverage sheet to w.
func (e PeriodExport) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetTransactions); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := setRow(f, SheetTransactions, 1, transactionHeaders); err != nil {
		return err
	}
	for i := range e.Transactions {
		if err := setRow(f, SheetTransactions, i+2, transactionRow(&e.Transactions[i])); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetCoverage); err != nil {
		return fmt.Errorf("failed to create coverage sheet: %w", err)
	}
	if err := setRow(f, SheetCoverage, 1, coverageHeaders); err != nil {
		return err
	}
	row := 2
	for _, ec := range e.Coverage.ByEntity {
		if err := setRow(f, SheetCoverage, row, coverageRow(ec.EntityName, ec.EntityCode, ec.CoverageKPI)); err != nil {
			return err
		}
		row++
	}
	if err := setRow(f, SheetCoverage, row, coverageRow("Total "+e.Period.String(), "", e.Coverage.Global)); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func transactionRow(txn *models.BankTransaction) []interface{} {
	date := ""
	if txn.AccountingDate != nil {
		date = txn.AccountingDate.Format("2006-01-02")
	}
	category := deref(txn.ManualCategory)
	if category == "" {
		category = deref(txn.Category)
	}
	invoice := ""
	if txn.MatchedInvoiceID != nil {
		invoice = txn.MatchedInvoiceID.String()
	}
	var confidence interface{} = ""
	if txn.MatchConfidence != nil {
		confidence = *txn.MatchConfidence
	}
	reason := ""
	if txn.FlaggedReason != nil {
		reason = string(*txn.FlaggedReason)
	}

	return []interface{}{
		date,
		txn.LabelSimple,
		txn.Reference,
		txn.Debit.InexactFloat64(),
		txn.Credit.InexactFloat64(),
		category,
		string(txn.TransactionType),
		string(txn.Status),
		invoice,
		confidence,
		reason,
		deref(txn.Notes),
		deref(txn.VerifiedBy),
	}
}

func coverageRow(name, code string, k CoverageKPI) []interface{} {
	return []interface{}{
		name,
		code,
		k.Total,
		k.Reconciled,
		k.Verified,
		k.NonRapprochees,
		k.Flaggees,
		k.TotalDebit.InexactFloat64(),
		k.TotalCredit.InexactFloat64(),
		k.CoveragePercent,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
