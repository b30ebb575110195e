package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrSignerMismatch возвращается, если транзакцию просят подписать от чужого адреса.
var ErrSignerMismatch = errors.New("signer address mismatch")

// Submitter отправляет ERC-20 переводы расчётного токена и не ждёт их включения в блок.
type Submitter struct {
	// mu сериализует выдачу nonce и отправку транзакций одной учётной записи.
	mu       sync.Mutex
	contract *bind.BoundContract
	signer   Signer
}

// NewSubmitter создаёт отправителя переводов для контракта токена.
func NewSubmitter(transactor bind.ContractTransactor, token common.Address, signer Signer) *Submitter {
	return &Submitter{
		contract: bind.NewBoundContract(token, erc20ABI, nil, transactor, nil),
		signer:   signer,
	}
}

// Transfer подписывает и отправляет transfer(to, amount), возвращая хеш принятой узлом транзакции.
func (s *Submitter) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	if (to == common.Address{}) {
		return common.Hash{}, fmt.Errorf("destination address required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("transfer amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.signer.CurrentNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	from := s.signer.Address()
	opts := &bind.TransactOpts{
		From:    from,
		Nonce:   new(big.Int).SetUint64(nonce),
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, fmt.Errorf("%w: %s", ErrSignerMismatch, addr.Hex())
			}
			return s.signer.SignTx(ctx, tx)
		},
	}

	tx, err := s.contract.Transact(opts, "transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit transfer of %s to %s: %w", amount, to.Hex(), err)
	}

	return tx.Hash(), nil
}
