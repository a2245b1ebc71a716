package num

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBpsOf(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		bps    int64
		want   string
	}{
		{"ten bps", "150", 10, "0.15"},
		{"ten bps of sum", "450", 10, "0.45"},
		{"zero bps", "12345.67", 0, "0"},
		{"one bp", "10000", 1, "1"},
		{"full notional", "42", 10000, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BpsOf(MustDecimal(tt.amount), tt.bps)
			assert.True(t, got.Equal(MustDecimal(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

// Fee releases are computed per fill while the freeze is computed on the
// total, so the fee formula has to distribute over partial notionals.
func TestBpsOfDistributes(t *testing.T) {
	parts := []string{"148.5", "1.5", "0.015"}
	total := decimal.Zero
	feeSum := decimal.Zero
	for _, p := range parts {
		d := MustDecimal(p)
		total = total.Add(d)
		feeSum = feeSum.Add(BpsOf(d, 10))
	}
	assert.True(t, BpsOf(total, 10).Equal(feeSum))
}

func TestQuantizeTruncates(t *testing.T) {
	assert.True(t, Quantize(MustDecimal("151.519"), 2).Equal(MustDecimal("151.51")))
	assert.True(t, Quantize(MustDecimal("151.5"), 2).Equal(MustDecimal("151.5")))
	assert.True(t, Quantize(MustDecimal("-0.019"), 2).Equal(MustDecimal("-0.01")))
}

func TestParse(t *testing.T) {
	d, err := Parse("148.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(MustDecimal("148.5")))

	_, err = Parse("not-a-number")
	assert.Error(t, err)
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive(One))
	assert.False(t, IsPositive(Zero))
	assert.False(t, IsPositive(MustDecimal("-1")))
}
