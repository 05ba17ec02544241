package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTxn(entityID uuid.UUID, label, debit, date string) *models.BankTransaction {
	txn := &models.BankTransaction{
		ID:              uuid.New(),
		EntityID:        entityID,
		LabelSimple:     label,
		Debit:           amount(debit),
		TransactionType: models.TypeNonClasse,
		Status:          models.StatusNonRapproche,
	}
	if date != "" {
		txn.AccountingDate = day(date)
	}
	return txn
}

func newInvoice(entityID uuid.UUID, supplier, ttc, date string) models.Invoice {
	inv := models.Invoice{
		ID:        uuid.New(),
		EntityID:  entityID,
		Supplier:  supplier,
		AmountTTC: amount(ttc),
		Status:    models.InvoiceNonRapproche,
	}
	if date != "" {
		inv.InvoiceDate = day(date)
	}
	return inv
}

func TestScore_Scenarios(t *testing.T) {
	entity := uuid.New()
	txn := newTxn(entity, "EDF ENERGIE", "120.00", "2025-03-10")

	t.Run("perfect match scores 100", func(t *testing.T) {
		inv := newInvoice(entity, "EDF", "120.00", "2025-03-10")
		assert.Equal(t, 100, Score(txn, &inv))
	})

	t.Run("unrelated invoice scores 0", func(t *testing.T) {
		inv := newInvoice(uuid.New(), "ORANGE", "45.00", "2025-01-01")
		detail := ScoreDetail(txn, &inv)
		assert.Equal(t, 0, detail.Name)
		assert.Equal(t, 0, detail.Amount)
		assert.Equal(t, 0, detail.Date)
		assert.Equal(t, 0, detail.Total)
	})
}

func TestNameScore(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		supplier string
		want     int
	}{
		{name: "label token inside supplier", label: "EDF ENERGIE", supplier: "EDF", want: 50},
		{name: "supplier token inside label", label: "PRLV SEPA ORANGE SA", supplier: "Orange", want: 50},
		{name: "case insensitive", label: "free mobile", supplier: "FREE", want: 50},
		{name: "comma separated label", label: "URSSAF,COTISATIONS", supplier: "Urssaf Ile-de-France", want: 50},
		{name: "no overlap", label: "EDF ENERGIE", supplier: "ORANGE", want: 0},
		{name: "empty label", label: "", supplier: "EDF", want: 0},
		{name: "empty supplier", label: "EDF", supplier: "  ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nameScore(tt.label, tt.supplier))
		})
	}
}

func TestAmountScore(t *testing.T) {
	tests := []struct {
		name    string
		tx      string
		invoice string
		want    int
	}{
		{name: "exact", tx: "120.00", invoice: "120.00", want: 30},
		{name: "3 percent apart", tx: "100.00", invoice: "97.00", want: 27},
		{name: "15 percent apart", tx: "100.00", invoice: "115.00", want: 15},
		{name: "30 percent apart", tx: "100.00", invoice: "130.00", want: 0},
		{name: "far apart clamps to zero", tx: "120.00", invoice: "45.00", want: 0},
		{name: "zero transaction amount", tx: "0", invoice: "45.00", want: 0},
		{name: "zero invoice amount", tx: "45.00", invoice: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, amountScore(amount(tt.tx), amount(tt.invoice)))
		})
	}
}

func TestDateScore(t *testing.T) {
	tests := []struct {
		name    string
		tx      *time.Time
		invoice *time.Time
		want    int
	}{
		{name: "same day", tx: day("2025-03-10"), invoice: day("2025-03-10"), want: 20},
		{name: "3 days", tx: day("2025-03-10"), invoice: day("2025-03-07"), want: 18},
		{name: "15 days", tx: day("2025-03-10"), invoice: day("2025-03-25"), want: 10},
		{name: "30 days", tx: day("2025-03-10"), invoice: day("2025-02-08"), want: 0},
		{name: "far apart", tx: day("2025-03-10"), invoice: day("2025-01-01"), want: 0},
		{name: "missing invoice date", tx: day("2025-03-10"), invoice: nil, want: 0},
		{name: "missing accounting date", tx: nil, invoice: day("2025-03-10"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dateScore(tt.tx, tt.invoice))
		})
	}
}

func TestScore_Bounds(t *testing.T) {
	entity := uuid.New()
	labels := []string{"", "EDF", "EDF ENERGIE", "SNCF VOYAGES", "a,b,c"}
	amounts := []string{"0", "0.01", "45.00", "120.00", "99999.99"}
	dates := []string{"", "2025-01-01", "2025-03-10", "2026-12-31"}

	for _, label := range labels {
		for _, a := range amounts {
			for _, d := range dates {
				txn := newTxn(entity, label, a, d)
				for _, supplier := range labels {
					for _, b := range amounts {
						inv := newInvoice(entity, supplier, b, d)
						score := Score(txn, &inv)
						require.GreaterOrEqual(t, score, 0)
						require.LessOrEqual(t, score, 100)
					}
				}
			}
		}
	}
}

func TestRankCandidates_Filters(t *testing.T) {
	entity := uuid.New()
	other := uuid.New()
	txn := newTxn(entity, "EDF ENERGIE", "120.00", "2025-03-10")

	sameEntity := newInvoice(entity, "EDF", "120.00", "2025-03-10")
	otherEntity := newInvoice(other, "EDF", "120.00", "2025-03-10")
	tooExpensive := newInvoice(entity, "EDF", "140.00", "2025-03-10")
	tooOld := newInvoice(entity, "EDF", "118.00", "2024-12-01")
	undated := newInvoice(entity, "ENGIE", "125.00", "")

	pool := []models.Invoice{sameEntity, otherEntity, tooExpensive, tooOld, undated}

	got := RankCandidates(txn, pool, DefaultMatchOptions())
	require.Len(t, got, 2)
	assert.Equal(t, sameEntity.ID, got[0].Invoice.ID)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, undated.ID, got[1].Invoice.ID)

	for _, c := range got {
		assert.Equal(t, entity, c.Invoice.EntityID)
	}
}

func TestRankCandidates_WiderTolerances(t *testing.T) {
	entity := uuid.New()
	txn := newTxn(entity, "EDF ENERGIE", "120.00", "2025-03-10")
	pool := []models.Invoice{
		newInvoice(entity, "EDF", "140.00", "2025-03-10"),
		newInvoice(entity, "EDF", "118.00", "2024-12-01"),
	}

	opts := DefaultMatchOptions()
	opts.AmountTolerancePercent = 20
	opts.DateToleranceDays = 120

	assert.Len(t, RankCandidates(txn, pool, opts), 2)

	opts.AmountTolerancePercent = Disabled
	opts.DateToleranceDays = Disabled
	assert.Len(t, RankCandidates(txn, pool, opts), 2)
}

func TestRankCandidates_Query(t *testing.T) {
	entity := uuid.New()
	txn := newTxn(entity, "PRLV SEPA", "50.00", "2025-03-10")

	byProduct := newInvoice(entity, "Acme", "50.00", "2025-03-10")
	byProduct.Product = "Abonnement FIBRE"
	byFile := newInvoice(entity, "Other", "50.00", "2025-03-10")
	byFile.FileName = "facture-fibre-mars.pdf"
	unrelated := newInvoice(entity, "Bureau Vallée", "50.00", "2025-03-10")

	got := RankCandidates(txn, []models.Invoice{byProduct, byFile, unrelated}, MatchOptions{
		AmountTolerancePercent: 10,
		DateToleranceDays:      30,
		Query:                  "Fibre",
	})

	require.Len(t, got, 2)
	assert.Equal(t, byProduct.ID, got[0].Invoice.ID)
	assert.Equal(t, byFile.ID, got[1].Invoice.ID)
}

func TestRankCandidates_OrderAndLimit(t *testing.T) {
	entity := uuid.New()
	txn := newTxn(entity, "EDF ENERGIE", "100.00", "2025-03-10")

	var pool []models.Invoice
	for i := 0; i < 20; i++ {
		pool = append(pool, newInvoice(entity, fmt.Sprintf("SUPPLIER %d", i), "100.00", "2025-03-10"))
	}
	best := newInvoice(entity, "EDF", "100.00", "2025-03-10")
	pool = append(pool, best)

	got := RankCandidates(txn, pool, DefaultMatchOptions())
	require.Len(t, got, MaxCandidates)
	assert.Equal(t, best.ID, got[0].Invoice.ID)

	// equal scores keep pool order
	for i := 1; i < len(got); i++ {
		assert.Equal(t, pool[i-1].ID, got[i].Invoice.ID)
	}
}

func TestRankCandidates_ZeroAmountSkipsAmountFilter(t *testing.T) {
	entity := uuid.New()
	txn := newTxn(entity, "VIR", "0", "")
	pool := []models.Invoice{newInvoice(entity, "Any", "999.00", "2020-01-01")}

	assert.Len(t, RankCandidates(txn, pool, DefaultMatchOptions()), 1)
}
