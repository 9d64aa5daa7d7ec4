package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		ok   bool
	}{
		{"lagos", Point{Lat: 6.5244, Lng: 3.3792}, true},
		{"north pole", Point{Lat: 90, Lng: 0}, true},
		{"antimeridian", Point{Lat: 0, Lng: -180}, true},
		{"lat too large", Point{Lat: 90.0001, Lng: 0}, false},
		{"lng too small", Point{Lat: 0, Lng: -180.5}, false},
		{"nan", Point{Lat: math.NaN(), Lng: 0}, false},
		{"inf", Point{Lat: 0, Lng: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidCoordinate), "got %v", err)
		})
	}
}

func TestMoneyMajorRoundTrip(t *testing.T) {
	m := FromMajor(25.5, "")
	assert.Equal(t, int64(2550), m.Amount)
	assert.Equal(t, DefaultCurrency, m.Currency)
	assert.InDelta(t, 25.5, m.Major(), 1e-9)

	sum, err := m.Add(FromMajor(4.5, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sum.Amount)
}

func TestParseMajorRejectsOutOfRange(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e17, -1e17} {
		_, err := ParseMajor(v, "")
		assert.ErrorIs(t, err, ErrMoneyOutOfRange, "value %v", v)
	}

	m, err := ParseMajor(-12.5, "USD")
	require.NoError(t, err)
	assert.Equal(t, Money{Amount: -1250, Currency: "USD"}, m)

	assert.Panics(t, func() { FromMajor(math.Inf(1), "") })
}

func TestMoneyAddGuards(t *testing.T) {
	_, err := FromMajor(10, "NGN").Add(FromMajor(10, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := Money{}.Add(FromMajor(3, "USD"))
	require.NoError(t, err)
	assert.Equal(t, Money{Amount: 300, Currency: "USD"}, sum)

	_, err = Money{Amount: math.MaxInt64, Currency: "NGN"}.Add(Money{Amount: 1, Currency: "NGN"})
	assert.ErrorIs(t, err, ErrMoneyOutOfRange)

	_, err = Money{Amount: math.MinInt64, Currency: "NGN"}.Add(Money{Amount: -1, Currency: "NGN"})
	assert.ErrorIs(t, err, ErrMoneyOutOfRange)
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36)
}
