package pricing

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

func tokens(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func testReserves() model.Reserves {
	return model.Reserves{
		Settlement: tokens(2_000_000),
		Reference:  tokens(1_000_000),
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		pegged string
		offset float64
		rate   *big.Int
		want   *big.Int
	}{
		{
			name:   "direct mode",
			pegged: "100",
			offset: 0,
			want:   tokens(200),
		},
		{
			name:   "direct mode with positive offset",
			pegged: "100",
			offset: 10,
			want:   tokens(220),
		},
		{
			name:   "direct mode with negative offset",
			pegged: "100",
			offset: -25,
			want:   tokens(150),
		},
		{
			name:   "oracle mode",
			pegged: "700",
			offset: 0,
			rate:   big.NewInt(14000000),
			want:   tokens(196),
		},
		{
			name:   "full discount",
			pegged: "100",
			offset: -100,
			want:   big.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pegged := ScalePegged(decimal.RequireFromString(tt.pegged))

			q, err := Convert(pegged, testReserves(), tt.offset, tt.rate)
			require.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(q.TokenAmount), "got %s want %s", q.TokenAmount, tt.want)
		})
	}
}

func TestConvert_OracleIntermediate(t *testing.T) {
	pegged := ScalePegged(decimal.RequireFromString("700"))

	q, err := Convert(pegged, testReserves(), 0, big.NewInt(14000000))
	require.NoError(t, err)
	assert.Equal(t, 0, tokens(98).Cmp(q.Intermediate))
	assert.Equal(t, "196", FormatTokenAmount(q.TokenAmount))
}

func TestConvert_MultiplyBeforeDivide(t *testing.T) {
	// 1 wei при соотношении 3:2 даёт 1, а не 0, как при делении до умножения.
	reserves := model.Reserves{Settlement: big.NewInt(3), Reference: big.NewInt(2)}

	q, err := Convert(big.NewInt(1), reserves, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.TokenAmount.Int64())
}

func TestConvert_Errors(t *testing.T) {
	pegged := tokens(1)

	_, err := Convert(pegged, model.Reserves{Settlement: big.NewInt(0), Reference: big.NewInt(1)}, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = Convert(pegged, testReserves(), -100.01, nil)
	assert.ErrorIs(t, err, ErrInvalidOffset)

	_, err = Convert(pegged, testReserves(), 0, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrMalformedRate)
}

func TestOffsetMultiplier(t *testing.T) {
	tests := []struct {
		offset float64
		want   int64
	}{
		{offset: 0, want: 10000},
		{offset: 10, want: 11000},
		{offset: -5.5, want: 9450},
		{offset: 0.00001, want: 10000},
		{offset: 12.345, want: 11234},
		{offset: -100, want: 0},
	}

	for _, tt := range tests {
		got, err := OffsetMultiplier(tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "offset %v", tt.offset)
	}
}

func TestOffsetMultiplier_OutOfRange(t *testing.T) {
	for _, offset := range []float64{-100.01, 1e300, 9.3e16, math.NaN(), math.Inf(1)} {
		_, err := OffsetMultiplier(offset)
		assert.ErrorIs(t, err, ErrInvalidOffset, "offset %v", offset)
	}

	got, err := OffsetMultiplier(1e12)
	require.NoError(t, err)
	assert.Equal(t, int64(1e14+10000), got)
}

func TestResolveReserves(t *testing.T) {
	settlement := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	mixedCase := common.HexToAddress("0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD")
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")

	t.Run("token0 is settlement token in different case", func(t *testing.T) {
		res, err := ResolveReserves(big.NewInt(5), big.NewInt(7), mixedCase, settlement)
		require.NoError(t, err)
		assert.Equal(t, int64(5), res.Settlement.Int64())
		assert.Equal(t, int64(7), res.Reference.Int64())
	})

	t.Run("token0 is reference token", func(t *testing.T) {
		res, err := ResolveReserves(big.NewInt(5), big.NewInt(7), other, settlement)
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.Settlement.Int64())
		assert.Equal(t, int64(5), res.Reference.Int64())
	})

	t.Run("empty settlement reserve", func(t *testing.T) {
		_, err := ResolveReserves(big.NewInt(0), big.NewInt(7), settlement, settlement)
		assert.ErrorIs(t, err, ErrEmptyPool)
	})

	t.Run("empty reference reserve", func(t *testing.T) {
		_, err := ResolveReserves(big.NewInt(5), big.NewInt(0), settlement, settlement)
		assert.ErrorIs(t, err, ErrEmptyPool)
	})
}

func TestScalePegged(t *testing.T) {
	got := ScalePegged(decimal.RequireFromString("1.5"))
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(got))
	assert.Equal(t, "1.5", FormatTokenAmount(got))
}
