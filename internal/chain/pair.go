package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PairReader читает резервы пула ликвидности.
type PairReader struct {
	caller ContractCaller
	pair   common.Address
}

// NewPairReader создаёт читателя пула по указанному адресу контракта.
func NewPairReader(caller ContractCaller, pair common.Address) *PairReader {
	return &PairReader{
		caller: caller,
		pair:   pair,
	}
}

// Reserves возвращает текущие резервы reserve0 и reserve1 пула.
func (p *PairReader) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	values, err := call(ctx, p.caller, pairABI, p.pair, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 3 {
		return nil, nil, fmt.Errorf("getReserves: unexpected outputs count %d", len(values))
	}

	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves: unexpected output types %T, %T", values[0], values[1])
	}

	return reserve0, reserve1, nil
}

// Token0 возвращает адрес токена, резерв которого лежит в слоте reserve0.
func (p *PairReader) Token0(ctx context.Context) (common.Address, error) {
	values, err := call(ctx, p.caller, pairABI, p.pair, "token0")
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("token0: unexpected outputs count %d", len(values))
	}

	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("token0: unexpected output type %T", values[0])
	}

	return addr, nil
}
