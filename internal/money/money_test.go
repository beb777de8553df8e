package money

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "pontos/internal/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_Arithmetic(t *testing.T) {
	tests := []struct {
		name    string
		op      func() (Amount, error)
		want    Amount
		wantErr bool
	}{
		{name: "add", op: func() (Amount, error) { return Amount(900).Add(100) }, want: 1000},
		{name: "add negative", op: func() (Amount, error) { return Amount(900).Add(-1000) }, want: -100},
		{name: "add overflow", op: func() (Amount, error) { return Max.Add(1) }, wantErr: true},
		{name: "add underflow", op: func() (Amount, error) { return Min.Add(-1) }, wantErr: true},
		{name: "sub", op: func() (Amount, error) { return Amount(10000).Sub(200) }, want: 9800},
		{name: "sub underflow", op: func() (Amount, error) { return Min.Sub(1) }, wantErr: true},
		{name: "sub overflow", op: func() (Amount, error) { return Max.Sub(-1) }, wantErr: true},
		{name: "neg", op: func() (Amount, error) { return Amount(5).Neg() }, want: -5},
		{name: "neg min", op: func() (Amount, error) { return Min.Neg() }, wantErr: true},
		{name: "sum overflow", op: func() (Amount, error) { return Sum(Max, 1, -5) }, wantErr: true},
		{name: "sum", op: func() (Amount, error) { return Sum(1, 2, 3) }, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrOverflow))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_Ordering(t *testing.T) {
	assert.Equal(t, -1, Amount(1).Cmp(2))
	assert.Equal(t, 0, Amount(2).Cmp(2))
	assert.Equal(t, 1, Amount(3).Cmp(2))
	assert.True(t, Amount(-1).IsNegative())
	assert.True(t, Zero.IsZero())
}

func TestParse(t *testing.T) {
	a, err := Parse("98.00")
	require.NoError(t, err)
	assert.Equal(t, Amount(9800), a)
	assert.Equal(t, "98.00", a.String())

	a, err = Parse("150")
	require.NoError(t, err)
	assert.Equal(t, Amount(15000), a)

	_, err = Parse("1.001")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))

	_, err = Parse("abc")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))

	_, err = FromDecimal(decimal.RequireFromString("100000000000000000000"))
	assert.True(t, errors.Is(err, apperrors.ErrOverflow))
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr error
	}{
		{in: `150`, want: 150},
		{in: `"1.50"`, want: 150},
		{in: `"98"`, want: 9800},
		{in: `"0.001"`, wantErr: apperrors.ErrInvalidAmount},
		{in: `"abc"`, wantErr: apperrors.ErrInvalidAmount},
		{in: `1.5`, wantErr: apperrors.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				Amount Amount `json:"amount"`
			}
			err := json.Unmarshal([]byte(`{"amount":`+tt.in+`}`), &got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}
