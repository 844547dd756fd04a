package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/config"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/handler"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/logging"
	appMiddleware "github.com/Jeevanvsan/byee-ugraph-saas/internal/middleware"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/repository"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/server"
	"github.com/Jeevanvsan/byee-ugraph-saas/internal/service"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/crypto"
	"github.com/Jeevanvsan/byee-ugraph-saas/pkg/payment"
	"github.com/rs/zerolog/log"
)

// store is what both backends provide to the services.
type store interface {
	service.SubscriptionStore
	service.KeyLookup
	service.OrganizationStore
	service.PaymentLedger
	handler.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("database error")
	}
	defer closeStore()
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected & migrated")

	redisClient, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis error")
	}
	defer redisClient.Close()
	checkouts := repository.NewCheckoutRepository(redisClient, cfg.CheckoutTTL)
	locker := repository.NewRedisLocker(redisClient)

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("encryption error")
	}

	gateway := newGateway(cfg)
	log.Info().Str("mode", cfg.PaymentMode).Str("currency", cfg.Currency).Msg("payment gateway ready")

	authSvc := service.NewAuthService(cfg.JWTSecret)
	subSvc := service.NewSubscriptionService(st, st, gateway, sealer, cfg.GatewayTimeout)
	checkoutSvc := service.NewCheckoutService(subSvc, st, checkouts, st, locker, gateway, cfg.Currency)
	validationSvc := service.NewValidationService(st)

	// 20 req/sec per IP, burst of 40. Validation has its own larger bucket.
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	defer globalRL.Stop()
	validateRL := appMiddleware.NewRateLimiter(50, 100)
	defer validateRL.Stop()

	router := server.NewRouter(server.Deps{
		Auth:            authSvc,
		Subscription:    subSvc,
		Checkout:        checkoutSvc,
		Validation:      validationSvc,
		Health:          map[string]handler.Pinger{"database": st, "redis": checkouts},
		CORSOrigins:     cfg.CORSOrigins,
		GlobalLimiter:   globalRL,
		ValidateLimiter: validateRL,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("billing server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if cfg.DatabaseDriver == config.DriverSQLite {
		s, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return repository.NewPostgresStore(db), db.Close, nil
}

func newGateway(cfg *config.Config) payment.Gateway {
	if cfg.PaymentMode == config.PaymentMock {
		secret := cfg.RazorpayKeySecret
		if secret == "" {
			secret = "mock_secret"
		}
		log.Warn().Msg("using the mock payment gateway; payments are not real")
		return payment.NewMockGateway(secret)
	}
	return payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayAPIURL, cfg.GatewayTimeout)
}
