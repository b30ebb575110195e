package pricing

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

const (
	// TokenDecimals — точность расчётного токена и внутреннего представления суммы заказа.
	TokenDecimals = 18
	// RateDecimals — фиксированная точность ответа оракула.
	RateDecimals = 8
	// OffsetScale задаёт разрешение смещения: четыре знака после запятой.
	OffsetScale = 10000
)

// maxMultiplier точно представим во float64 и оставляет запас до math.MaxInt64.
const maxMultiplier = float64(1 << 62)

var (
	rateDivisor  = new(big.Int).Exp(big.NewInt(10), big.NewInt(RateDecimals), nil)
	offsetScaleB = big.NewInt(OffsetScale)
)

// ScalePegged переводит сумму заказа в целое число с 18 знаками, отбрасывая лишнюю дробную часть.
func ScalePegged(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).Floor().BigInt()
}

// FormatTokenAmount возвращает человекочитаемое представление количества токенов.
func FormatTokenAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -TokenDecimals).String()
}

// OffsetMultiplier вычисляет целочисленный множитель floor((1 + offset/100) * 10000).
// Промежуточное значение считается во float64: разрешение смещения ограничено четырьмя знаками.
func OffsetMultiplier(offsetPercent float64) (int64, error) {
	if math.IsNaN(offsetPercent) || math.IsInf(offsetPercent, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidOffset, offsetPercent)
	}
	if offsetPercent < -100 {
		return 0, fmt.Errorf("%w: %v%% is below -100%%", ErrInvalidOffset, offsetPercent)
	}

	m := math.Floor((1 + offsetPercent/100) * OffsetScale)
	if m >= maxMultiplier {
		return 0, fmt.Errorf("%w: %v%% is too large", ErrInvalidOffset, offsetPercent)
	}
	if m < 0 {
		m = 0
	}

	return int64(m), nil
}

// Convert переводит сумму заказа в минимальные единицы расчётного токена.
// При rate == nil используется прямой режим, иначе сумма сначала переводится в опорную валюту по курсу оракула.
// Все умножения выполняются до деления.
func Convert(pegged *big.Int, reserves model.Reserves, offsetPercent float64, rate *big.Int) (*model.Quote, error) {
	if pegged == nil || pegged.Sign() < 0 {
		return nil, fmt.Errorf("pegged amount must be non-negative")
	}
	if reserves.Settlement == nil || reserves.Settlement.Sign() <= 0 ||
		reserves.Reference == nil || reserves.Reference.Sign() <= 0 {
		return nil, ErrEmptyPool
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}

	multiplier, err := OffsetMultiplier(offsetPercent)
	if err != nil {
		return nil, err
	}

	intermediate := new(big.Int).Set(pegged)
	if rate != nil {
		intermediate.Mul(intermediate, rate)
		intermediate.Quo(intermediate, rateDivisor)
	}

	amount := new(big.Int).Mul(intermediate, reserves.Settlement)
	amount.Quo(amount, reserves.Reference)

	amount.Mul(amount, big.NewInt(multiplier))
	amount.Quo(amount, offsetScaleB)

	q := &model.Quote{
		Pegged:       new(big.Int).Set(pegged),
		Intermediate: intermediate,
		Reserves:     reserves,
		Multiplier:   multiplier,
		TokenAmount:  amount,
	}
	if rate != nil {
		q.Rate = new(big.Int).Set(rate)
	}

	return q, nil
}
