package middleware

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type amountBody struct {
	Amount *decimal.Decimal `json:"amount" binding:"required,decimal_amount"`
	Date   string           `json:"service_date" binding:"omitempty,iso_date"`
}

type linesBody struct {
	Lines []struct {
		Quantity int64 `json:"quantity" binding:"required"`
	} `json:"lines" binding:"required,min=1,dive"`
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestSetupValidator_DecimalAmount(t *testing.T) {
	SetupValidator()
	SetupValidator()

	tests := []struct {
		amount string
		valid  bool
	}{
		{"150.00", true},
		{"0", true},
		{"324", true},
		{"0.5", true},
		{"10.005", false},
		{"-1.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(amountBody{Amount: dec(tt.amount)})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSetupValidator_ISODate(t *testing.T) {
	SetupValidator()

	assert.NoError(t, binding.Validator.ValidateStruct(amountBody{Amount: dec("1"), Date: "2026-03-10"}))
	assert.Error(t, binding.Validator.ValidateStruct(amountBody{Amount: dec("1"), Date: "03/10/2026"}))
	assert.Error(t, binding.Validator.ValidateStruct(amountBody{Amount: dec("1"), Date: "2026-02-30"}))
}

func TestValidationDetails(t *testing.T) {
	SetupValidator()

	t.Run("uses json names and strips the root struct", func(t *testing.T) {
		err := binding.Validator.ValidateStruct(amountBody{Amount: dec("1.234"), Date: "tomorrow"})
		require.Error(t, err)

		details := ValidationDetails(err)
		require.Len(t, details, 2)
		fields := map[string]string{}
		for _, d := range details {
			fields[d.Field] = d.Message
		}
		assert.Equal(t, "Must be a non-negative amount with at most 2 decimal places", fields["amount"])
		assert.Equal(t, "Must be a date formatted YYYY-MM-DD", fields["service_date"])
	})

	t.Run("nested slice paths", func(t *testing.T) {
		body := linesBody{}
		body.Lines = append(body.Lines, struct {
			Quantity int64 `json:"quantity" binding:"required"`
		}{})
		details := ValidationDetails(binding.Validator.ValidateStruct(body))
		require.Len(t, details, 1)
		assert.Equal(t, "lines[0].quantity", details[0].Field)
		assert.Equal(t, "This field is required", details[0].Message)
	})

	t.Run("empty slice", func(t *testing.T) {
		details := ValidationDetails(binding.Validator.ValidateStruct(linesBody{}))
		require.Len(t, details, 1)
		assert.Equal(t, "lines", details[0].Field)
	})

	t.Run("non validator errors", func(t *testing.T) {
		assert.Nil(t, ValidationDetails(assert.AnError))
	})
}
