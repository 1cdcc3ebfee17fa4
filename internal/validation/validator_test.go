package validation

import (
	"testing"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email  string          `json:"email" validate:"required,email"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0,usd"`
	Status string          `json:"status" validate:"omitempty,oneof=completed rejected"`
}

func TestStruct(t *testing.T) {
	testCases := []struct {
		name     string
		input    sample
		contains string
	}{
		{"valid", sample{Email: "a@x.com", Amount: decimal.NewFromInt(5)}, ""},
		{"missing email", sample{Amount: decimal.NewFromInt(5)}, "email is required"},
		{"bad email", sample{Email: "nope", Amount: decimal.NewFromInt(5)}, "email must be a valid email"},
		{"zero amount", sample{Email: "a@x.com"}, "amount must be greater than 0"},
		{"sub-cent amount", sample{Email: "a@x.com", Amount: decimal.RequireFromString("1.005")}, "two decimal places"},
		{"bad status", sample{Email: "a@x.com", Amount: decimal.NewFromInt(1), Status: "pending"}, "status must be one of"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Struct(tc.input)
			if tc.contains == "" {
				assert.NoError(t, err)
				return
			}

			assert.True(t, types.IsStoreError(err, types.ErrValidation))
			var storeErr *types.StoreError
			assert.True(t, types.As(err, &storeErr))
			assert.Contains(t, storeErr.Message, tc.contains)
		})
	}
}
