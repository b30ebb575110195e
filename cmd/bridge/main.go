// Package main запускает HTTP-сервер платёжного моста.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/rwa-bridge/internal/chain"
	"github.com/mmeshcher/rwa-bridge/internal/config"
	"github.com/mmeshcher/rwa-bridge/internal/handler"
	"github.com/mmeshcher/rwa-bridge/internal/metrics"
	"github.com/mmeshcher/rwa-bridge/internal/middleware"
	"github.com/mmeshcher/rwa-bridge/internal/repository"
	"github.com/mmeshcher/rwa-bridge/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := openLedger(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		sugar.Fatalw("rpc initialization error", "error", err.Error())
	}
	defer client.Close()

	signer, err := chain.NewKeySigner(cfg.SignerKey, cfg.ChainIDBig(), client)
	if err != nil {
		sugar.Fatalw("signer initialization error", "error", err.Error())
	}

	token := common.HexToAddress(cfg.TokenAddress)
	m := metrics.New()

	deps := service.Dependencies{
		Ledger:          ledger,
		Pair:            chain.NewPairReader(client, common.HexToAddress(cfg.PoolAddress)),
		Submitter:       chain.NewSubmitter(client, token, signer),
		SettlementToken: token,
		Logger:          logger,
		Metrics:         m,
	}

	if cfg.OracleEnabled() {
		oracleClient := client
		if cfg.OracleRPCURL != cfg.RPCURL {
			oracleClient, err = chain.Dial(ctx, cfg.OracleRPCURL)
			if err != nil {
				sugar.Fatalw("oracle rpc initialization error", "error", err.Error())
			}
			defer oracleClient.Close()
		}
		deps.Oracle = chain.NewOracleReader(oracleClient, common.HexToAddress(cfg.OracleAddress))
	}

	svc := service.NewService(deps)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.APIKey)
	h := handler.NewHandler(svc, logger, authMiddleware, m)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting settlement bridge",
			"addr", cfg.RunAddress,
			"signer", signer.Address().Hex(),
			"token", token.Hex(),
			"oracle", cfg.OracleEnabled(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openLedger(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (service.Ledger, error) {
	switch {
	case cfg.DatabaseURI != "":
		return repository.NewPostgresLedger(cfg.DatabaseURI)
	case cfg.RedisURL != "":
		return repository.NewRedisLedger(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		sugar.Warn("no DATABASE_URI or REDIS_URL configured, settlements are kept in memory")
		return repository.NewMemoryLedger(), nil
	}
}
