package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// sortSpec whitelists the columns a listing can be ordered by. Callers may
// name a column in snake_case or camelCase; anything else falls back.
type sortSpec struct {
	columns  map[string]string
	fallback string
}

func newSortSpec(fallback string, columns ...string) sortSpec {
	s := sortSpec{columns: make(map[string]string, 2*len(columns)), fallback: fallback}
	for _, col := range columns {
		s.columns[col] = col
		s.columns[camelCase(col)] = col
	}
	return s
}

var (
	invoiceSort = newSortSpec("invoice_date",
		"id", "created_at", "updated_at", "invoice_number", "invoice_date",
		"due_date", "status", "total_amount", "balance_due", "patient_id")
	claimSort = newSortSpec("submitted_at",
		"id", "created_at", "updated_at", "claim_number", "submitted_at",
		"status", "billed_amount", "insurance_provider")
	paymentSort = newSortSpec("payment_date",
		"id", "created_at", "updated_at", "reference_number", "payment_date",
		"amount", "method", "status")
)

// column resolves a requested sort field to a whitelisted column
func (s sortSpec) column(field string) string {
	if col, ok := s.columns[strings.TrimSpace(field)]; ok {
		return col
	}
	return s.fallback
}

// orderBy orders by the resolved column with id as tiebreaker so that pages
// stay stable. Direction defaults to descending.
func (s sortSpec) orderBy(field, dir string) clause.OrderBy {
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	col := s.column(field)
	cols := []clause.OrderByColumn{{Column: clause.Column{Name: col}, Desc: desc}}
	if col != "id" {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
	return clause.OrderBy{Columns: cols}
}

func camelCase(snake string) string {
	parts := strings.Split(snake, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
