// Package validation содержит функции валидации входных данных платёжного запроса.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/rwa-bridge/internal/pricing"
)

var (
	// ErrMissingField возвращается, если обязательное поле не передано.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidAddress возвращается для адреса, не являющегося 40-символьным hex.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidAmount возвращается для некорректной суммы заказа.
	ErrInvalidAmount = errors.New("invalid rwa_amount")
	// ErrInvalidOffset возвращается для некорректного смещения.
	ErrInvalidOffset = errors.New("invalid offset")
	// ErrInvalidOrder возвращается для идентификатора заказа, не являющегося строкой или числом.
	ErrInvalidOrder = errors.New("invalid order")

	errMissing   = errors.New("missing value")
	errNotScalar = errors.New("not a string or number")
)

// maxAmountIntegerDigits ограничивает целую часть суммы так, чтобы значение с 18 знаками помещалось в uint256.
const maxAmountIntegerDigits = 58

var addressPattern = regexp.MustCompile(`^(0x|0X)?[0-9a-fA-F]{40}$`)

// ParseAddress проверяет и разбирает адрес получателя. Регистр символов не учитывается.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, fmt.Errorf("%w: address", ErrMissingField)
	}
	if !addressPattern.MatchString(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	addr := common.HexToAddress(trimmed)
	if (addr == common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

// ParseAmount разбирает сумму заказа, переданную числом или строкой. Сумма должна быть положительной,
// иметь не более 18 знаков после запятой и помещаться в uint256 после масштабирования.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	value, err := scalar(raw)
	switch {
	case errors.Is(err, errMissing):
		return decimal.Decimal{}, fmt.Errorf("%w: rwa_amount", ErrMissingField)
	case err != nil:
		return decimal.Decimal{}, fmt.Errorf("%w: must be a string or number", ErrInvalidAmount)
	}

	value = strings.TrimPrefix(strings.TrimSpace(value), "+")
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: rwa_amount", ErrMissingField)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}

	// Коэффициент ограничен длиной входа, поэтому проверка дешёвая в отличие от масштабирования.
	coefficient := amount.Coefficient().String()
	significant := strings.TrimRight(coefficient, "0")
	exponent := int64(amount.Exponent()) + int64(len(coefficient)-len(significant))
	if exponent < -pricing.TokenDecimals {
		return decimal.Decimal{}, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, pricing.TokenDecimals)
	}
	if int64(len(significant))+exponent > maxAmountIntegerDigits {
		return decimal.Decimal{}, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}

	return amount, nil
}

// ParseOffset разбирает смещение в процентах, например "+10.00" или -5.
// Смещение ниже -100% или дающее переполнение множителя отклоняется.
func ParseOffset(raw json.RawMessage) (float64, error) {
	value, err := scalar(raw)
	switch {
	case errors.Is(err, errMissing):
		return 0, fmt.Errorf("%w: offset", ErrMissingField)
	case err != nil:
		return 0, fmt.Errorf("%w: must be a string or number", ErrInvalidOffset)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: offset", ErrMissingField)
	}
	offset, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(offset) || math.IsInf(offset, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, value)
	}
	if _, err := pricing.OffsetMultiplier(offset); err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidOffset, value)
	}
	return offset, nil
}

// ParseOrderID разбирает идентификатор заказа, переданный строкой или числом.
// Строка используется как есть: пробелы внутри неё входят в идентификатор.
func ParseOrderID(raw json.RawMessage) (string, error) {
	value, err := scalar(raw)
	switch {
	case errors.Is(err, errMissing):
		return "", fmt.Errorf("%w: order", ErrMissingField)
	case err != nil:
		return "", fmt.Errorf("%w: must be a string or number", ErrInvalidOrder)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: order", ErrMissingField)
	}
	return value, nil
}

// scalar извлекает строку или число из JSON-значения. Объекты, массивы и логические значения отклоняются.
func scalar(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", errMissing
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", errNotScalar
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", errNotScalar
	}
	return n.String(), nil
}
