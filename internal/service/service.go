// Package service реализует конвейер расчёта и выплаты по заказам.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/rwa-bridge/internal/metrics"
	"github.com/mmeshcher/rwa-bridge/internal/model"
	"github.com/mmeshcher/rwa-bridge/internal/pricing"
	"github.com/mmeshcher/rwa-bridge/internal/repository"
)

var (
	// ErrPricingFault объединяет ошибки определения цены и конвертации.
	ErrPricingFault = errors.New("pricing fault")
	// ErrChainFault объединяет ошибки обращения к блокчейну.
	ErrChainFault = errors.New("chain fault")
	// ErrLedgerFault объединяет ошибки журнала расчётов.
	ErrLedgerFault = errors.New("ledger fault")
	// ErrSettlementInProgress возвращается, пока по заказу выполняется другой запрос.
	ErrSettlementInProgress = errors.New("settlement in progress")
	// ErrZeroAmount возвращается, если расчёт дал нулевое количество токенов.
	ErrZeroAmount = errors.New("computed token amount is zero")
)

// Ledger описывает журнал расчётов с атомарным захватом заказа.
type Ledger interface {
	Close() error
	Get(ctx context.Context, orderID string) (*model.Settlement, error)
	Reserve(ctx context.Context, orderID string) (bool, error)
	Complete(ctx context.Context, s model.Settlement) error
	Release(ctx context.Context, orderID string) error
}

// PairSource читает состояние пула ликвидности.
type PairSource interface {
	Reserves(ctx context.Context) (*big.Int, *big.Int, error)
	Token0(ctx context.Context) (common.Address, error)
}

// RateSource читает курс внешнего оракула.
type RateSource interface {
	LatestAnswer(ctx context.Context) (*big.Int, error)
}

// TransferSubmitter отправляет перевод расчётного токена.
type TransferSubmitter interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
}

// Dependencies содержит зависимости сервиса. Oracle может быть nil: тогда используется прямой режим.
type Dependencies struct {
	Ledger          Ledger
	Pair            PairSource
	Oracle          RateSource
	Submitter       TransferSubmitter
	SettlementToken common.Address
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
}

// Service содержит бизнес-логику платёжного моста.
type Service struct {
	ledger          Ledger
	pair            PairSource
	oracle          RateSource
	submitter       TransferSubmitter
	settlementToken common.Address
	logger          *zap.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// NewService создаёт сервис с указанными зависимостями.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		ledger:          deps.Ledger,
		pair:            deps.Pair,
		oracle:          deps.Oracle,
		submitter:       deps.Submitter,
		settlementToken: deps.SettlementToken,
		logger:          logger,
		metrics:         deps.Metrics,
		now:             time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// GetSettlement возвращает запись журнала по заказу.
func (s *Service) GetSettlement(ctx context.Context, orderID string) (*model.Settlement, error) {
	settlement, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLedgerFault, err)
	}
	return settlement, nil
}

// Quote читает источники курса параллельно и рассчитывает количество токенов для суммы заказа.
func (s *Service) Quote(ctx context.Context, amount decimal.Decimal, offset float64) (*model.Quote, error) {
	var (
		reserve0, reserve1 *big.Int
		token0             common.Address
		rate               *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer s.metrics.ObserveRateRead(metrics.SourceReserves, time.Now())
		var err error
		reserve0, reserve1, err = s.pair.Reserves(gctx)
		return err
	})

	g.Go(func() error {
		defer s.metrics.ObserveRateRead(metrics.SourceToken0, time.Now())
		var err error
		token0, err = s.pair.Token0(gctx)
		return err
	})

	if s.oracle != nil {
		g.Go(func() error {
			defer s.metrics.ObserveRateRead(metrics.SourceOracle, time.Now())
			answer, err := s.oracle.LatestAnswer(gctx)
			if err != nil {
				return err
			}
			if answer == nil {
				return fmt.Errorf("%w: oracle returned no answer", pricing.ErrMalformedRate)
			}
			rate = answer
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, pricing.ErrMalformedRate) {
			return nil, fmt.Errorf("%w: %w", ErrPricingFault, err)
		}
		return nil, fmt.Errorf("%w: read rate sources: %w", ErrChainFault, err)
	}

	reserves, err := pricing.ResolveReserves(reserve0, reserve1, token0, s.settlementToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricingFault, err)
	}

	quote, err := pricing.Convert(pricing.ScalePegged(amount), reserves, offset, rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricingFault, err)
	}

	return quote, nil
}

// Pay выполняет выплату по заказу не более одного раза.
// Второе значение равно true, если заказ уже был рассчитан ранее и возвращена сохранённая запись.
func (s *Service) Pay(ctx context.Context, order model.PaymentOrder) (*model.Settlement, bool, error) {
	existing, err := s.ledger.Get(ctx, order.OrderID)
	switch {
	case err == nil:
		return s.existing(existing)
	case !errors.Is(err, repository.ErrSettlementNotFound):
		s.metrics.ObserveSettlement(metrics.OutcomeLedger)
		return nil, false, fmt.Errorf("%w: lookup: %w", ErrLedgerFault, err)
	}

	claimed, err := s.ledger.Reserve(ctx, order.OrderID)
	if err != nil {
		s.metrics.ObserveSettlement(metrics.OutcomeLedger)
		return nil, false, fmt.Errorf("%w: reserve: %w", ErrLedgerFault, err)
	}
	if !claimed {
		existing, err := s.ledger.Get(ctx, order.OrderID)
		if errors.Is(err, repository.ErrSettlementNotFound) {
			// Конкурирующий запрос успел освободить заказ: повторный запрос безопасен.
			s.metrics.ObserveSettlement(metrics.OutcomeInProgress)
			return nil, false, ErrSettlementInProgress
		}
		if err != nil {
			s.metrics.ObserveSettlement(metrics.OutcomeLedger)
			return nil, false, fmt.Errorf("%w: lookup: %w", ErrLedgerFault, err)
		}
		return s.existing(existing)
	}

	quote, err := s.Quote(ctx, order.RWAAmount, order.Offset)
	if err == nil && quote.TokenAmount.Sign() <= 0 {
		err = fmt.Errorf("%w: %w", ErrPricingFault, ErrZeroAmount)
	}
	if err != nil {
		s.release(ctx, order.OrderID)
		s.observeFailure(err)
		return nil, false, err
	}

	txHash, err := s.submitter.Transfer(ctx, order.Address, quote.TokenAmount)
	if err != nil {
		s.release(ctx, order.OrderID)
		s.metrics.ObserveSettlement(metrics.OutcomeChain)
		return nil, false, fmt.Errorf("%w: %w", ErrChainFault, err)
	}

	settlement := model.Settlement{
		OrderID:     order.OrderID,
		Status:      model.SettlementStatusSuccess,
		Address:     order.Address.Hex(),
		TxHash:      txHash.Hex(),
		TokenAmount: pricing.FormatTokenAmount(quote.TokenAmount),
		RWAAmount:   order.RWAAmount.String(),
		CreatedAt:   s.now().UTC(),
	}

	s.logger.Info("transfer submitted",
		zap.String("order", order.OrderID),
		zap.String("tx", settlement.TxHash),
		zap.String("to", settlement.Address),
		zap.String("amount", quote.TokenAmount.String()),
	)

	// Перевод уже принят сетью: запись не должна зависеть от отмены запроса.
	if err := s.ledger.Complete(context.WithoutCancel(ctx), settlement); err != nil {
		s.logger.Error("transfer submitted but settlement not recorded",
			zap.Error(err),
			zap.String("order", order.OrderID),
			zap.String("tx", settlement.TxHash),
		)
		s.metrics.ObserveSettlement(metrics.OutcomeLedger)
		return nil, false, fmt.Errorf("%w: record: %w", ErrLedgerFault, err)
	}

	s.metrics.ObserveSettlement(metrics.OutcomeSuccess)
	return &settlement, false, nil
}

func (s *Service) existing(settlement *model.Settlement) (*model.Settlement, bool, error) {
	if settlement.Status == model.SettlementStatusPending {
		s.metrics.ObserveSettlement(metrics.OutcomeInProgress)
		return nil, false, ErrSettlementInProgress
	}
	s.metrics.ObserveSettlement(metrics.OutcomeDuplicate)
	return settlement, true, nil
}

func (s *Service) release(ctx context.Context, orderID string) {
	if err := s.ledger.Release(context.WithoutCancel(ctx), orderID); err != nil {
		s.logger.Error("release settlement claim", zap.Error(err), zap.String("order", orderID))
	}
}

func (s *Service) observeFailure(err error) {
	switch {
	case errors.Is(err, ErrPricingFault):
		s.metrics.ObserveSettlement(metrics.OutcomePricing)
	case errors.Is(err, ErrChainFault):
		s.metrics.ObserveSettlement(metrics.OutcomeChain)
	default:
		s.metrics.ObserveSettlement(metrics.OutcomeLedger)
	}
}
