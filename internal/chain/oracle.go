package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OracleReader читает последний курс из внешнего оракула с точностью 8 знаков.
type OracleReader struct {
	caller ContractCaller
	feed   common.Address
}

// NewOracleReader создаёт читателя оракула по адресу контракта-агрегатора.
func NewOracleReader(caller ContractCaller, feed common.Address) *OracleReader {
	return &OracleReader{
		caller: caller,
		feed:   feed,
	}
}

// LatestAnswer возвращает поле answer последнего раунда.
func (o *OracleReader) LatestAnswer(ctx context.Context) (*big.Int, error) {
	values, err := call(ctx, o.caller, aggregatorABI, o.feed, "latestRoundData")
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("latestRoundData: unexpected outputs count %d", len(values))
	}

	answer, ok := values[1].(*big.Int)
	if !ok || answer == nil {
		return nil, fmt.Errorf("latestRoundData: unexpected answer type %T", values[1])
	}

	return answer, nil
}
