package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Filter
		want Filter
	}{
		{"zero value", Filter{}, Filter{Page: 1, PageSize: DefaultPageSize, OrderBy: "created_at", OrderDir: "desc"}},
		{"oversized page", Filter{Page: 3, PageSize: 500, OrderBy: "due_date", OrderDir: "asc"}, Filter{Page: 3, PageSize: MaxPageSize, OrderBy: "due_date", OrderDir: "asc"}},
		{"unknown direction", Filter{Page: -2, PageSize: 5, OrderDir: "sideways"}, Filter{Page: 1, PageSize: 5, OrderBy: "created_at", OrderDir: "desc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, Filter{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
}
