package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer описывает учётную запись, от имени которой отправляются переводы.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
	CurrentNonce(ctx context.Context) (uint64, error)
}

// NonceSource возвращает следующий nonce учётной записи с учётом ожидающих транзакций.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// KeySigner подписывает транзакции локальным secp256k1-ключом.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	nonces  NonceSource
}

// NewKeySigner создаёт подписанта из hex-представления приватного ключа.
func NewKeySigner(hexKey string, chainID *big.Int, nonces NonceSource) (*KeySigner, error) {
	material := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if material == "" {
		return nil, fmt.Errorf("signer key required")
	}
	key, err := crypto.HexToECDSA(material)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	return NewKeySignerFromKey(key, chainID, nonces)
}

// NewKeySignerFromKey создаёт подписанта из готового приватного ключа.
func NewKeySignerFromKey(key *ecdsa.PrivateKey, chainID *big.Int, nonces NonceSource) (*KeySigner, error) {
	if key == nil {
		return nil, fmt.Errorf("signer key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if nonces == nil {
		return nil, fmt.Errorf("nonce source required")
	}

	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
		nonces:  nonces,
	}, nil
}

// Address возвращает адрес учётной записи.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx подписывает транзакцию ключом учётной записи.
func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

// CurrentNonce запрашивает у узла следующий nonce учётной записи.
func (s *KeySigner) CurrentNonce(ctx context.Context) (uint64, error) {
	nonce, err := s.nonces.PendingNonceAt(ctx, s.address)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	return nonce, nil
}
