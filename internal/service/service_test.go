package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/rwa-bridge/internal/metrics"
	"github.com/mmeshcher/rwa-bridge/internal/model"
	"github.com/mmeshcher/rwa-bridge/internal/pricing"
	"github.com/mmeshcher/rwa-bridge/internal/repository"
)

var (
	settlementToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	referenceToken  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	destination     = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func tokens(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(pricing.TokenDecimals), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

type stubPair struct {
	reserve0, reserve1 *big.Int
	token0             common.Address
	err                error
}

func (s *stubPair) Reserves(ctx context.Context) (*big.Int, *big.Int, error) {
	return s.reserve0, s.reserve1, s.err
}

func (s *stubPair) Token0(ctx context.Context) (common.Address, error) {
	return s.token0, s.err
}

type stubOracle struct {
	answer *big.Int
	err    error
}

func (s *stubOracle) LatestAnswer(ctx context.Context) (*big.Int, error) {
	return s.answer, s.err
}

type stubSubmitter struct {
	mu      sync.Mutex
	err     error
	amounts []*big.Int
}

func (s *stubSubmitter) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return common.Hash{}, s.err
	}
	s.amounts = append(s.amounts, new(big.Int).Set(amount))
	return common.BigToHash(big.NewInt(int64(len(s.amounts)))), nil
}

func (s *stubSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.amounts)
}

type failingLedger struct {
	*repository.MemoryLedger
	completeErr error
}

func (l *failingLedger) Complete(ctx context.Context, s model.Settlement) error {
	return l.completeErr
}

// releasedClaimLedger имитирует захват, освобождённый другим запросом между Reserve и Get.
type releasedClaimLedger struct {
	*repository.MemoryLedger
}

func (l *releasedClaimLedger) Reserve(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func defaultPair() *stubPair {
	return &stubPair{
		reserve0: tokens(2_000_000),
		reserve1: tokens(1_000_000),
		token0:   settlementToken,
	}
}

func newTestService(ledger Ledger, pair PairSource, oracle RateSource, submitter TransferSubmitter) *Service {
	return NewService(Dependencies{
		Ledger:          ledger,
		Pair:            pair,
		Oracle:          oracle,
		Submitter:       submitter,
		SettlementToken: settlementToken,
		Metrics:         metrics.New(),
	})
}

func testOrder(id, amount string, offset float64) model.PaymentOrder {
	return model.PaymentOrder{
		OrderID:   id,
		Address:   destination,
		RWAAmount: decimal.RequireFromString(amount),
		Offset:    offset,
	}
}

func TestPay_DirectMode(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	submitter := &stubSubmitter{}
	svc := newTestService(ledger, defaultPair(), nil, submitter)

	s, duplicate, err := svc.Pay(context.Background(), testOrder("order-1", "100", 10))
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, model.SettlementStatusSuccess, s.Status)
	assert.Equal(t, "220", s.TokenAmount)
	assert.Equal(t, "100", s.RWAAmount)
	assert.Equal(t, destination.Hex(), s.Address)

	require.Equal(t, 1, submitter.calls())
	assert.Equal(t, 0, tokens(220).Cmp(submitter.amounts[0]))

	stored, err := ledger.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, s.TxHash, stored.TxHash)
}

func TestPay_OracleMode(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), &stubOracle{answer: big.NewInt(14000000)}, submitter)

	s, _, err := svc.Pay(context.Background(), testOrder("order-1", "700", 0))
	require.NoError(t, err)
	assert.Equal(t, "196", s.TokenAmount)
}

func TestPay_ReferenceTokenIsToken0(t *testing.T) {
	pair := &stubPair{
		reserve0: tokens(1_000_000),
		reserve1: tokens(2_000_000),
		token0:   referenceToken,
	}
	svc := newTestService(repository.NewMemoryLedger(), pair, nil, &stubSubmitter{})

	s, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	require.NoError(t, err)
	assert.Equal(t, "200", s.TokenAmount)
}

func TestPay_Duplicate(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), nil, submitter)

	first, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	require.NoError(t, err)

	second, duplicate, err := svc.Pay(context.Background(), testOrder("order-1", "5000", 50))
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, submitter.calls())
}

func TestPay_ConcurrentRequestsSettleOnce(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), nil, submitter)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
			if err != nil && !errors.Is(err, ErrSettlementInProgress) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, submitter.calls())
}

func TestPay_EmptyPool(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	submitter := &stubSubmitter{}
	pair := &stubPair{
		reserve0: big.NewInt(0),
		reserve1: tokens(1_000_000),
		token0:   settlementToken,
	}
	svc := newTestService(ledger, pair, nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPricingFault)
	assert.ErrorIs(t, err, pricing.ErrEmptyPool)
	assert.Equal(t, 0, submitter.calls())

	_, err = ledger.Get(context.Background(), "order-1")
	assert.ErrorIs(t, err, repository.ErrSettlementNotFound)
}

func TestPay_MalformedOracle(t *testing.T) {
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), &stubOracle{answer: big.NewInt(0)}, &stubSubmitter{})

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrPricingFault)
	assert.ErrorIs(t, err, pricing.ErrMalformedRate)
}

func TestPay_RPCFailure(t *testing.T) {
	pair := defaultPair()
	pair.err = errors.New("connection refused")
	submitter := &stubSubmitter{}
	svc := newTestService(repository.NewMemoryLedger(), pair, nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrChainFault)
	assert.Equal(t, 0, submitter.calls())
}

func TestPay_TransferFailureAllowsRetry(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	submitter := &stubSubmitter{err: errors.New("insufficient funds")}
	svc := newTestService(ledger, defaultPair(), nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrChainFault)

	_, err = ledger.Get(context.Background(), "order-1")
	assert.ErrorIs(t, err, repository.ErrSettlementNotFound)

	submitter.err = nil
	s, duplicate, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "200", s.TokenAmount)
}

func TestPay_ZeroAmount(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", -100))
	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.Equal(t, 0, submitter.calls())
}

func TestPay_InProgress(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	_, err := ledger.Reserve(context.Background(), "order-1")
	require.NoError(t, err)

	submitter := &stubSubmitter{}
	svc := newTestService(ledger, defaultPair(), nil, submitter)

	_, _, err = svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrSettlementInProgress)
	assert.Equal(t, 0, submitter.calls())
}

func TestPay_RecordFailureKeepsClaim(t *testing.T) {
	ledger := &failingLedger{
		MemoryLedger: repository.NewMemoryLedger(),
		completeErr:  errors.New("disk full"),
	}
	submitter := &stubSubmitter{}
	svc := newTestService(ledger, defaultPair(), nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrLedgerFault)

	_, _, err = svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrSettlementInProgress)
	assert.Equal(t, 1, submitter.calls())
}

func TestGetSettlement_NotFound(t *testing.T) {
	svc := newTestService(repository.NewMemoryLedger(), defaultPair(), nil, &stubSubmitter{})

	_, err := svc.GetSettlement(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrSettlementNotFound)
}

func TestPay_ClaimReleasedByConcurrentRequest(t *testing.T) {
	ledger := &releasedClaimLedger{MemoryLedger: repository.NewMemoryLedger()}
	submitter := &stubSubmitter{}
	svc := newTestService(ledger, defaultPair(), nil, submitter)

	_, _, err := svc.Pay(context.Background(), testOrder("order-1", "100", 0))
	assert.ErrorIs(t, err, ErrSettlementInProgress)
	assert.NotErrorIs(t, err, ErrLedgerFault)
	assert.Equal(t, 0, submitter.calls())
}
