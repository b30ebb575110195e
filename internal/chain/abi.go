// Package chain предоставляет клиенты контрактов пула, оракула курса и расчётного токена.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const pairABIJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}],
	 "stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],
	 "stateMutability":"view","type":"function"}
]`

const aggregatorABIJSON = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}],
	 "stateMutability":"view","type":"function"}
]`

const erc20ABIJSON = `[
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "name":"transfer","outputs":[{"name":"","type":"bool"}],
	 "stateMutability":"nonpayable","type":"function"}
]`

var (
	pairABI       = mustParseABI(pairABIJSON)
	aggregatorABI = mustParseABI(aggregatorABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// ContractCaller описывает подмножество RPC, необходимое для чтения состояния контрактов.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial подключается к RPC-узлу по указанному адресу.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", trimmed, err)
	}
	return client, nil
}

func call(ctx context.Context, caller ContractCaller, contractABI abi.ABI, contract common.Address, method string) ([]interface{}, error) {
	input, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("call %s: empty response from %s", method, contract.Hex())
	}

	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}

	return values, nil
}
