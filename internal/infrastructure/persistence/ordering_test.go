package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/clause"
)

func TestSortSpec_Column(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"", "invoice_date"},
		{"due_date", "due_date"},
		{"dueDate", "due_date"},
		{" balanceDue ", "balance_due"},
		{"DUE_DATE", "invoice_date"},
		{"due_date; DROP TABLE invoices", "invoice_date"},
		{"claim_number", "invoice_date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, invoiceSort.column(tt.field), "field %q", tt.field)
	}
	assert.Equal(t, "claim_number", claimSort.column("claimNumber"))
	assert.Equal(t, "reference_number", paymentSort.column("referenceNumber"))
}

func TestSortSpec_OrderBy(t *testing.T) {
	t.Run("descending by default with id tiebreak", func(t *testing.T) {
		ob := paymentSort.orderBy("amount", "sideways")
		assert.Equal(t, []clause.OrderByColumn{
			{Column: clause.Column{Name: "amount"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}, ob.Columns)
	})

	t.Run("ascending", func(t *testing.T) {
		ob := invoiceSort.orderBy("dueDate", " ASC ")
		assert.False(t, ob.Columns[0].Desc)
		assert.Equal(t, "due_date", ob.Columns[0].Column.Name)
	})

	t.Run("id alone is not repeated", func(t *testing.T) {
		assert.Len(t, claimSort.orderBy("id", "asc").Columns, 1)
	})
}

func TestCamelCase(t *testing.T) {
	assert.Equal(t, "insuranceProvider", camelCase("insurance_provider"))
	assert.Equal(t, "id", camelCase("id"))
}
