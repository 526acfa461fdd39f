package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/fulfillment/pkg/breaker"
	"github.com/ghuser/fulfillment/pkg/cache"
	"github.com/ghuser/fulfillment/pkg/config"
	"github.com/ghuser/fulfillment/pkg/database"
	"github.com/ghuser/fulfillment/pkg/deadletter"
	"github.com/ghuser/fulfillment/pkg/events"
	"github.com/ghuser/fulfillment/pkg/eventstore"
	"github.com/ghuser/fulfillment/pkg/idempotency"
	"github.com/ghuser/fulfillment/pkg/logger"
	"github.com/ghuser/fulfillment/pkg/retry"
	"github.com/ghuser/fulfillment/pkg/telemetry"
	"github.com/ghuser/fulfillment/services/notification/application/dispatcher"
	notifdomain "github.com/ghuser/fulfillment/services/notification/domain"
	notifchannels "github.com/ghuser/fulfillment/services/notification/infrastructure/channels"
	notifrepo "github.com/ghuser/fulfillment/services/notification/infrastructure/persistence/postgres"
	"github.com/ghuser/fulfillment/services/order/application/saga"
	orderevents "github.com/ghuser/fulfillment/services/order/domain/events"
	"github.com/ghuser/fulfillment/services/payment/application/processor"
	paymentdomain "github.com/ghuser/fulfillment/services/payment/domain"
	paymentevents "github.com/ghuser/fulfillment/services/payment/domain/events"
	"github.com/ghuser/fulfillment/services/payment/infrastructure/gateway"
	paymentrepo "github.com/ghuser/fulfillment/services/payment/infrastructure/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx := context.Background()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.EventStoreDatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close()
	log.Info("database pool connected")

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	// Shared plumbing: store, dead-letter sink, retry scheduler.
	store := eventstore.NewPostgresStore(pool, log)
	sink := deadletter.NewPostgresSink(pool, log)
	scheduler := retry.NewScheduler(retry.Config{
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Multiplier:  cfg.RetryMultiplier,
		MaxAttempts: cfg.RetryMaxAttempts,
	}, sink, log)
	defer scheduler.Close()

	// Each consumer gets its own bus so its consumer group is independent:
	// the payment processor and the notification dispatcher both need every
	// message on the orders topic.
	sagaBus, err := events.NewEventBusForGroup(cfg, log, saga.ConsumerName)
	if err != nil {
		log.Error("failed to setup saga event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer sagaBus.Close() //nolint:errcheck

	paymentBus, err := events.NewEventBusForGroup(cfg, log, processor.ConsumerName)
	if err != nil {
		log.Error("failed to setup payment event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer paymentBus.Close() //nolint:errcheck

	notifBus, err := events.NewEventBusForGroup(cfg, log, dispatcher.ConsumerName)
	if err != nil {
		log.Error("failed to setup notification event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer notifBus.Close() //nolint:errcheck

	// Order saga: reacts to payment outcomes, emits order lifecycle events.
	sagaEmitter := events.NewTxEmitter(pool, store, sagaBus)
	orderSaga := saga.New(store, sagaEmitter, sink, log)

	// Payment processor: charges the gateway once per OrderCreated.
	gatewayBreaker := breaker.New[paymentdomain.GatewayReference](breaker.Config{
		Name:           "payment-gateway",
		Window:         cfg.BreakerWindow,
		Cooldown:       cfg.BreakerCooldown,
		FailureRatio:   cfg.BreakerFailureRatio,
		MinRequests:    cfg.BreakerMinRequests,
		HalfOpenProbes: cfg.BreakerHalfOpenProbes,
		Classify: func(err error) bool {
			return err != nil && !paymentdomain.IsPermanent(err)
		},
	}, log)
	paymentProcessor := processor.New(
		idempotency.NewPostgresLedger(pool, cfg.ClaimLease),
		paymentrepo.NewPaymentRepository(pool),
		gateway.NewHTTPGateway(cfg.GatewayBaseURL),
		gatewayBreaker,
		scheduler,
		events.NewTxEmitter(pool, store, paymentBus),
		sink,
		cfg.GatewayCallTimeout,
		log,
	)

	// Notification dispatcher: renders order lifecycle events and delivers
	// them through the configured channel.
	var channel notifdomain.Channel = notifchannels.NewLogChannel(log)
	if cfg.EmailProviderURL != "" {
		channel = notifchannels.NewEmailChannel(cfg.EmailProviderURL, cfg.EmailFrom)
	}
	notifDispatcher := dispatcher.New(
		dispatcher.Config{
			QueueSize:   cfg.NotificationQueueSize,
			Workers:     cfg.NotificationWorkers,
			SendTimeout: cfg.NotificationSendTimeout,
		},
		idempotency.NewRedisLedger(redisClient, cfg.NotificationClaimTTL),
		notifrepo.NewNotificationRepository(pool),
		store,
		channel,
		scheduler,
		events.NewTxEmitter(pool, store, notifBus),
		sink,
		log,
	)
	notifDispatcher.Start(ctx)
	defer notifDispatcher.Close()

	subscriptions := []struct {
		bus     *events.EventBus
		topic   string
		handler func(context.Context, *message.Message) error
	}{
		{sagaBus, paymentevents.TopicPayments, orderSaga.Handle},
		{paymentBus, orderevents.TopicOrders, paymentProcessor.Handle},
		{notifBus, orderevents.TopicOrders, notifDispatcher.Handle},
		{notifBus, paymentevents.TopicPayments, notifDispatcher.Handle},
	}
	for _, sub := range subscriptions {
		if err := subscribe(ctx, log, sub.bus, sub.topic, sub.handler); err != nil {
			log.Error("failed to register subscriber", "topic", sub.topic, "error", err)
			os.Exit(1) //nolint:gocritic
		}
	}
	log.Info("event subscribers registered",
		"topics", []string{orderevents.TopicOrders, paymentevents.TopicPayments})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	// Bus Close (via defers) waits up to 30s for in-flight handlers; the
	// scheduler and dispatcher drain after that.
	log.Info("worker stopped")
}

// subscribe registers handler on topic and drains the subscriber error
// channel in the background so it never blocks.
func subscribe(
	ctx context.Context,
	log logger.Logger,
	bus *events.EventBus,
	topic string,
	handler func(context.Context, *message.Message) error,
) error {
	errCh, err := bus.Subscribe(ctx, topic, handler)
	if err != nil {
		return err
	}
	go func() {
		for err := range errCh {
			log.ErrorContext(ctx, "subscriber error", "topic", topic, "error", err)
		}
	}()
	return nil
}
