package decimal_test

import (
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice/internal/decimal"
)

func TestFromString(t *testing.T) {
	d, err := decimal.FromString("123456.78")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec.RequireFromString("123456.78")))

	_, err = decimal.FromString("not-a-number")
	require.Error(t, err)
}

func TestMul(t *testing.T) {
	a := dec.NewFromInt(100)
	b := dec.NewFromFloat(0.15)
	result := decimal.Mul(a, b)
	assert.True(t, result.Equal(dec.NewFromInt(15)))

	// Rounds to 2 decimal places
	result = decimal.Mul(dec.NewFromInt(3), dec.RequireFromString("33.333"))
	assert.Equal(t, "100.00", result.StringFixed(2))
}

func TestTax(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		rate     int64
		expected string
	}{
		{"18% of 100.00", "100.00", 18, "18.00"},
		{"8% of 49.90", "49.90", 8, "3.99"},
		{"0% of 100.00", "100.00", 0, "0.00"},
		{"18% of 59.97 rounds half up", "59.97", 18, "10.79"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := dec.RequireFromString(tt.base)
			result := decimal.Tax(base, dec.NewFromInt(tt.rate))
			assert.Equal(t, tt.expected, result.StringFixed(2))
		})
	}
}

func TestSum(t *testing.T) {
	values := []dec.Decimal{
		dec.RequireFromString("10.50"),
		dec.RequireFromString("20.25"),
		dec.RequireFromString("0.25"),
	}
	assert.Equal(t, "31.00", decimal.Sum(values).StringFixed(2))
	assert.True(t, decimal.Sum(nil).IsZero())
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "100.00", decimal.Amount(dec.NewFromInt(100)))
	assert.Equal(t, "0.10", decimal.Amount(dec.RequireFromString("0.1")))
	assert.Equal(t, "1234.57", decimal.Amount(dec.RequireFromString("1234.567")))
}

func TestEqualWithinCent(t *testing.T) {
	a := dec.RequireFromString("100.00")
	assert.True(t, decimal.EqualWithinCent(a, dec.RequireFromString("100.01")))
	assert.True(t, decimal.EqualWithinCent(a, dec.RequireFromString("99.99")))
	assert.False(t, decimal.EqualWithinCent(a, dec.RequireFromString("100.02")))
}

func TestSignHelpers(t *testing.T) {
	assert.True(t, decimal.IsPositive(dec.NewFromInt(1)))
	assert.False(t, decimal.IsPositive(dec.Zero))
	assert.True(t, decimal.IsNonNegative(dec.Zero))
	assert.False(t, decimal.IsNonNegative(dec.NewFromInt(-1)))
}
