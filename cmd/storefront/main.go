package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
	storefrontHttp "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/notify"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "storefront").Logger()

	log.Info().Msg("Storefront starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := context.Background()

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	transactor := db.NewTransactor(dbConn.Pool, cfg.Postgres.TxAttempts)

	productCache := product.NewNopCache()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, product reads will fall through to PostgreSQL")
		}
		productCache = product.NewRedisCache(redisClient, cfg.Redis.TTL)
	}

	productRepository := product.NewRepository(dbConn.SQLX)
	userRepository := user.NewRepository()
	orderRepository := order.NewRepository()

	productSvc := product.NewService(productRepository, productCache, transactor)
	userSvc := user.NewService(userRepository, dbConn.Pool)
	cartSvc := cart.NewService(userRepository, productRepository, transactor, dbConn.Pool)

	orderOpts := []order.Option{
		order.WithProductCache(productCache),
		order.WithCurrency(cfg.Payment.Currency),
	}

	if cfg.Payment.StripeKey != "" {
		gateway, err := payment.NewStripeGateway(payment.StripeConfig{
			APIKey:     cfg.Payment.StripeKey,
			SuccessURL: cfg.Payment.SuccessURL,
			CancelURL:  cfg.Payment.CancelURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure payment gateway")
		}
		orderOpts = append(orderOpts, order.WithGateway(gateway))
	} else {
		log.Warn().Msg("Stripe key not set, gateway checkout is disabled")
	}

	var mailer *notify.Mailer
	if cfg.Mail.Host != "" {
		mailer, err = notify.NewMailer(cfg.Mail)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure mailer")
		}
		orderOpts = append(orderOpts, order.WithNotifier(mailer))
	} else {
		log.Warn().Msg("SMTP host not set, order confirmations are disabled")
	}

	orderSvc := order.NewService(orderRepository, productRepository, userRepository, transactor, dbConn.Pool, orderOpts...)

	if cfg.Admin.Email != "" {
		_, err := userSvc.SeedSuperAdmin(ctx, user.CreateInput{
			Name:     cfg.Admin.Name,
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed super admin")
		}
	}

	auth := storefrontHttp.NewAuthenticator(cfg.Auth.JWTSecret)
	router := storefrontHttp.NewRouter(
		storefrontHttp.NewProductHandler(productSvc, auth),
		storefrontHttp.NewCartHandler(cartSvc, auth),
		storefrontHttp.NewOrderHandler(orderSvc, auth),
		storefrontHttp.NewUserHandler(userSvc, auth),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	if mailer != nil {
		if err := mailer.Wait(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Order confirmations still pending at shutdown")
		}
	}

	log.Info().Msg("Storefront stopped gracefully.")
}
