// Package pricing реализует определение цены по резервам пула и конвертацию заказа в токены.
package pricing

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/rwa-bridge/internal/model"
)

var (
	// ErrEmptyPool возвращается, если резерв пула равен нулю.
	ErrEmptyPool = errors.New("empty pool")
	// ErrMalformedRate возвращается при некорректном ответе оракула курса.
	ErrMalformedRate = errors.New("malformed oracle rate")
	// ErrInvalidOffset возвращается для смещения ниже -100%.
	ErrInvalidOffset = errors.New("invalid offset")
)

// ResolveReserves раскладывает резервы пула на резерв расчётного токена и резерв опорного токена.
// Адреса сравниваются как 20-байтовые значения, поэтому регистр hex-записи не важен.
func ResolveReserves(reserve0, reserve1 *big.Int, token0, settlementToken common.Address) (model.Reserves, error) {
	if reserve0 == nil || reserve1 == nil {
		return model.Reserves{}, ErrEmptyPool
	}

	res := model.Reserves{
		Settlement: new(big.Int).Set(reserve1),
		Reference:  new(big.Int).Set(reserve0),
	}
	if token0 == settlementToken {
		res.Settlement, res.Reference = res.Reference, res.Settlement
	}

	if res.Settlement.Sign() <= 0 {
		return model.Reserves{}, ErrEmptyPool
	}
	// Опорный резерв является делителем при конвертации.
	if res.Reference.Sign() <= 0 {
		return model.Reserves{}, ErrEmptyPool
	}

	return res, nil
}

// ValidateRate проверяет ответ оракула. nil означает режим без оракула.
func ValidateRate(rate *big.Int) error {
	if rate == nil {
		return nil
	}
	if rate.Sign() <= 0 {
		return ErrMalformedRate
	}
	return nil
}
