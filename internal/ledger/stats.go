package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats are the aggregates shown on the dashboard.
// All sums consider non-deleted transactions only.
type Stats struct {
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	Balance          decimal.Decimal `json:"balance"`
	DailyIncome      decimal.Decimal `json:"daily_income"`
	DailyExpense     decimal.Decimal `json:"daily_expense"`
	TransactionCount int             `json:"transaction_count"`
	TrashedCount     int             `json:"trashed_count"`
}

// ComputeStats aggregates active transactions. The daily figures cover
// transactions dated on the same calendar day as now, in loc.
//
// Rows flagged IsDeleted are skipped even if present in active; they only
// count towards TrashedCount when passed in trashed.
func ComputeStats(active, trashed []Transaction, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	today := dayOf(now, loc)

	s := Stats{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		DailyIncome:  decimal.Zero,
		DailyExpense: decimal.Zero,
	}
	for _, t := range active {
		if t.IsDeleted {
			continue
		}
		s.TransactionCount++
		sameDay := dayOf(t.Date, loc) == today
		switch t.Type {
		case Received:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
			if sameDay {
				s.DailyIncome = s.DailyIncome.Add(t.Amount)
			}
		case Sent:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
			if sameDay {
				s.DailyExpense = s.DailyExpense.Add(t.Amount)
			}
		}
	}
	for _, t := range trashed {
		if t.IsDeleted {
			s.TrashedCount++
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s
}

func dayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}
