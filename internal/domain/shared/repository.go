package shared

// Page sizing for list queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter is the paging and ordering part every ledger list query shares.
// OrderBy names a field; the repositories decide which fields are sortable.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// Normalize returns f with page bounds clamped, newest-first ordering by
// creation time when none is given and any direction other than "asc" read
// as "desc".
func (f Filter) Normalize() Filter {
	f.Page = max(f.Page, 1)
	switch {
	case f.PageSize < 1:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
	if f.OrderBy == "" {
		f.OrderBy = "created_at"
	}
	if f.OrderDir != "asc" {
		f.OrderDir = "desc"
	}
	return f
}

// Offset is the number of rows before the current page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
