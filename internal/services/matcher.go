package services

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/shopspring/decimal"
)

const (
	nameWeight   = 50
	amountWeight = 30
	dateWeight   = 20

	// Relative amount gap at which the amount sub-score reaches zero.
	amountFalloffPercent = 30
	// Day gap at which the date sub-score reaches zero.
	dateFalloffDays = 30

	// MaxCandidates caps the ranked list returned to the UI.
	MaxCandidates = 15

	// Disabled turns off a tolerance filter in MatchOptions.
	Disabled = -1
)

// MatchOptions tunes RankCandidates. A negative tolerance disables the
// corresponding filter.
type MatchOptions struct {
	AmountTolerancePercent float64
	DateToleranceDays      int
	Query                  string
	Limit                  int
}

// DefaultMatchOptions returns the interactive ranking defaults: ±10% amount,
// ±30 days, top 15.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		AmountTolerancePercent: 10,
		DateToleranceDays:      30,
		Limit:                  MaxCandidates,
	}
}

// ScoreBreakdown holds the sub-scores behind a confidence score.
type ScoreBreakdown struct {
	Name   int `json:"name"`
	Amount int `json:"amount"`
	Date   int `json:"date"`
	Total  int `json:"total"`
}

// Candidate is an invoice annotated with its confidence for a transaction.
type Candidate struct {
	Invoice   models.Invoice `json:"invoice"`
	Score     int            `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Score returns the 0-100 confidence that inv supports txn.
func Score(txn *models.BankTransaction, inv *models.Invoice) int {
	return ScoreDetail(txn, inv).Total
}

// ScoreDetail returns the sub-scores and their clamped total.
func ScoreDetail(txn *models.BankTransaction, inv *models.Invoice) ScoreBreakdown {
	b := ScoreBreakdown{
		Name:   nameScore(txn.LabelSimple, inv.Supplier),
		Amount: amountScore(txn.Amount(), inv.AmountTTC),
		Date:   dateScore(txn.AccountingDate, inv.InvoiceDate),
	}
	b.Total = min(b.Name+b.Amount+b.Date, 100)
	return b
}

// nameScore is binary: the first token of either side must appear in the
// other side's full text.
func nameScore(label, supplier string) int {
	labelToken := strings.ToUpper(firstToken(label))
	supplierToken := strings.ToUpper(firstToken(supplier))
	if labelToken == "" || supplierToken == "" {
		return 0
	}
	if strings.Contains(strings.ToUpper(supplier), labelToken) ||
		strings.Contains(strings.ToUpper(label), supplierToken) {
		return nameWeight
	}
	return 0
}

func amountScore(txAmount, invAmount decimal.Decimal) int {
	if !txAmount.IsPositive() || !invAmount.IsPositive() {
		return 0
	}
	gap := txAmount.Sub(invAmount).Abs().Div(txAmount)
	falloff := decimal.NewFromInt(amountFalloffPercent).Div(decimal.NewFromInt(100))
	ratio := decimal.NewFromInt(1).Sub(gap.Div(falloff))
	score := ratio.Mul(decimal.NewFromInt(amountWeight)).Round(0).IntPart()
	return clampScore(int(score), amountWeight)
}

func dateScore(txDate, invDate *time.Time) int {
	if txDate == nil || invDate == nil {
		return 0
	}
	days := float64(daysApart(*txDate, *invDate))
	score := math.Floor(dateWeight*(1-days/dateFalloffDays) + 0.5)
	return clampScore(int(score), dateWeight)
}

// RankCandidates filters pool down to plausible invoices for txn, scores them
// and returns the best first. Ties keep pool order.
func RankCandidates(txn *models.BankTransaction, pool []models.Invoice, opts MatchOptions) []Candidate {
	amount := txn.Amount()
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	candidates := make([]Candidate, 0, len(pool))
	for i := range pool {
		inv := &pool[i]
		if inv.EntityID != txn.EntityID {
			continue
		}
		if amount.IsPositive() && opts.AmountTolerancePercent >= 0 &&
			!withinAmountTolerance(amount, inv.AmountTTC, opts.AmountTolerancePercent) {
			continue
		}
		if txn.AccountingDate != nil && opts.DateToleranceDays >= 0 && inv.InvoiceDate != nil &&
			daysApart(*txn.AccountingDate, *inv.InvoiceDate) > opts.DateToleranceDays {
			continue
		}
		if query != "" && !invoiceMatchesQuery(inv, query) {
			continue
		}

		breakdown := ScoreDetail(txn, inv)
		candidates = append(candidates, Candidate{
			Invoice:   *inv,
			Score:     breakdown.Total,
			Breakdown: breakdown,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	limit := opts.Limit
	if limit <= 0 || limit > MaxCandidates {
		limit = MaxCandidates
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// withinAmountTolerance reports whether candidate is within ±percent of amount.
func withinAmountTolerance(amount, candidate decimal.Decimal, percent float64) bool {
	allowed := amount.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
	return amount.Sub(candidate).Abs().LessThanOrEqual(allowed)
}

func invoiceMatchesQuery(inv *models.Invoice, query string) bool {
	return strings.Contains(strings.ToLower(inv.Supplier), query) ||
		strings.Contains(strings.ToLower(inv.Product), query) ||
		strings.Contains(strings.ToLower(inv.FileName), query)
}

// firstToken splits on whitespace and commas.
func firstToken(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// daysApart counts calendar days between a and b, ignoring time of day.
func daysApart(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func clampScore(score, ceiling int) int {
	if score < 0 {
		return 0
	}
	if score > ceiling {
		return ceiling
	}
	return score
}
