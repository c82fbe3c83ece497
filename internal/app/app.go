package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/shestoi/bookstore-orders/internal/api/http"
	"github.com/shestoi/bookstore-orders/internal/config"
	amqpevent "github.com/shestoi/bookstore-orders/internal/event/amqp"
	kafkaevent "github.com/shestoi/bookstore-orders/internal/event/kafka"
	"github.com/shestoi/bookstore-orders/internal/eventbus"
	"github.com/shestoi/bookstore-orders/internal/inbound"
	"github.com/shestoi/bookstore-orders/internal/inventory"
	inventoryredis "github.com/shestoi/bookstore-orders/internal/inventory/redis"
	"github.com/shestoi/bookstore-orders/internal/outbox"
	"github.com/shestoi/bookstore-orders/internal/repository"
	"github.com/shestoi/bookstore-orders/internal/repository/memory"
	"github.com/shestoi/bookstore-orders/internal/repository/postgres"
	"github.com/shestoi/bookstore-orders/internal/service"
	platformhealth "github.com/shestoi/bookstore-orders/platform/health/http"
	platformlogging "github.com/shestoi/bookstore-orders/platform/logging"
	"github.com/shestoi/bookstore-orders/platform/observability"
	platformshutdown "github.com/shestoi/bookstore-orders/platform/shutdown"
)

const pingTimeout = 2 * time.Second

// storage - outbox хранилище вместе с границей транзакции
type storage interface {
	repository.OutboxRepository
	repository.TxManager
}

// broker - транспорт входящих заказов и публикации outbox событий
type broker struct {
	factory   inbound.ChannelFactory
	publisher outbox.Publisher
	ready     func() bool
}

// App содержит все зависимости для запуска и корректного shutdown сервиса заказов
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	pool        *inbound.Pool
	dispatcher  *outbox.Dispatcher
	shutdownMgr *platformshutdown.Manager

	poolCtx          context.Context
	poolCancel       context.CancelFunc
	dispatcherCtx    context.Context
	dispatcherCancel context.CancelFunc
	poolDone         chan struct{}
	dispatcherDone   chan struct{}
	wg               sync.WaitGroup
}

// Build создаёт и настраивает все зависимости сервиса заказов
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "orders",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Building orders service", zap.String("op", op), zap.String("http_addr", cfg.HTTPAddr))
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения:
	// otel -> storage -> redis -> broker -> dispatcher -> pool -> http
	otelShutdown, err := observability.Init(context.Background(), cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	shutdownMgr.Add("otel", otelShutdown)

	store, storeCheck, err := buildStorage(cfg, logger, shutdownMgr)
	if err != nil {
		shutdownMgr.Shutdown()
		return nil, err
	}

	bus := eventbus.New(logger)
	outbox.NewExternalizer(logger, store).Register(bus)

	processed, idempotencyChecks, err := buildIdempotencyStore(cfg, logger, shutdownMgr)
	if err != nil {
		shutdownMgr.Shutdown()
		return nil, err
	}
	inventory.NewService(logger, processed, cfg.IdempotencyTTL).Register(bus)

	brk, err := buildBroker(cfg, logger, shutdownMgr)
	if err != nil {
		shutdownMgr.Shutdown()
		return nil, err
	}

	consumer := inbound.NewConsumer(logger, bus, cfg.MaxAttempts, cfg.RetryBackoff)

	poolCfg := inbound.DefaultPoolConfig()
	poolCfg.MinConsumers = cfg.ConsumerMin
	poolCfg.MaxConsumers = cfg.ConsumerMax
	poolCfg.IdleTimeout = cfg.ConsumerIdleTimeout
	pool := inbound.NewPool(poolCfg, brk.factory, consumer, logger)

	dispatcher := outbox.NewDispatcher(logger, store, brk.publisher, outbox.DispatcherConfig{
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxInterval,
		MaxRetries: cfg.OutboxMaxRetries,
		Backoff:    cfg.OutboxBackoff,
	})

	completion := service.NewCompletionService(logger, store, bus)

	checks := []platformhealth.Check{storeCheck, {Name: "consumer_pool", Ready: pool.Ready}}
	if brk.ready != nil {
		checks = append(checks, platformhealth.Check{Name: cfg.Broker, Ready: brk.ready})
	}
	checks = append(checks, idempotencyChecks...)

	router := httpapi.NewRouter(httpapi.NewHandler(completion, logger), logger, checks...)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a := &App{
		logger:         logger,
		httpServer:     httpServer,
		pool:           pool,
		dispatcher:     dispatcher,
		shutdownMgr:    shutdownMgr,
		poolDone:       make(chan struct{}),
		dispatcherDone: make(chan struct{}),
	}
	a.poolCtx, a.poolCancel = context.WithCancel(context.Background())
	a.dispatcherCtx, a.dispatcherCancel = context.WithCancel(context.Background())

	shutdownMgr.Add("outbox_dispatcher", stopAndWait(a.dispatcherCancel, a.dispatcherDone))
	shutdownMgr.Add("consumer_pool", stopAndWait(a.poolCancel, a.poolDone))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return a, nil
}

// Handler возвращает HTTP handler сервиса (используется в тестах без сетевого listener-а)
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting orders service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			a.shutdownMgr.Trigger()
		}
	}()
	go func() {
		defer a.wg.Done()
		defer close(a.poolDone)
		if err := a.pool.Run(a.poolCtx); err != nil {
			a.logger.Error("consumer pool error", zap.Error(err))
			a.shutdownMgr.Trigger()
		}
	}()
	go func() {
		defer a.wg.Done()
		defer close(a.dispatcherDone)
		if err := a.dispatcher.Start(a.dispatcherCtx); err != nil {
			a.logger.Error("outbox dispatcher error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("Orders service stopped")
	return nil
}

// Stop запускает graceful shutdown без сигнала ОС
func (a *App) Stop() {
	a.shutdownMgr.Trigger()
}

// stopAndWait отменяет контекст фоновой задачи и ждёт её завершения в пределах ctx shutdown-а
func stopAndWait(cancel context.CancelFunc, done <-chan struct{}) func(context.Context) error {
	return func(ctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func buildStorage(cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager) (storage, platformhealth.Check, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Info("Using in-memory outbox storage")
		repo := memory.NewMemoryRepository()
		return repo, platformhealth.Check{Name: "storage", Ready: pingReady(repo.Ping)}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.PostgresAutoMigrate {
		logger.Info("Applying PostgreSQL migrations")
		if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
			return nil, platformhealth.Check{}, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, platformhealth.Check{}, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, platformhealth.Check{}, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connection established")
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))

	repo := postgres.NewRepository(pool)
	return repo, platformhealth.Check{Name: "postgres", Ready: pingReady(repo.Ping)}, nil
}

func buildIdempotencyStore(cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager) (inventory.ProcessedEventsStore, []platformhealth.Check, error) {
	if cfg.IdempotencyStore == config.IdempotencyMemory {
		return inventory.NewMemoryProcessedEventsStore(), nil, nil
	}

	logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	shutdownMgr.Add("redis_client", platformshutdown.Close(client))

	store := inventoryredis.NewProcessedEventsStore(client, logger)
	return store, []platformhealth.Check{{Name: "redis", Ready: pingReady(store.Ping)}}, nil
}

func buildBroker(cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager) (broker, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		dlq := kafkaevent.NewDLQPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.DLQTopic)
		publisher := kafkaevent.NewOutboxPublisher(logger, cfg.Kafka.Brokers)
		shutdownMgr.Add("kafka_dlq_writer", platformshutdown.Close(dlq))
		shutdownMgr.Add("kafka_outbox_writer", platformshutdown.Close(publisher))

		return broker{
			factory:   kafkaevent.NewChannelFactory(logger, cfg.Kafka, cfg.ConsumerPrefetch, dlq),
			publisher: publisher,
		}, nil

	case config.BrokerAMQP:
		connector := amqpevent.NewConnector(logger, cfg.AMQPURL)

		if cfg.AMQPBindTopology {
			if err := declareTopology(connector); err != nil {
				_ = connector.Close()
				return broker{}, err
			}
			logger.Info("AMQP topology declared", zap.String("queue", amqpevent.NewOrdersQueue))
		}

		publisher := amqpevent.NewOutboxPublisher(logger, connector)
		shutdownMgr.Add("amqp_connection", platformshutdown.Close(connector))
		shutdownMgr.Add("amqp_outbox_publisher", platformshutdown.Close(publisher))

		return broker{
			factory:   amqpevent.NewChannelFactory(logger, connector, amqpevent.NewOrdersQueue, cfg.ConsumerPrefetch),
			publisher: publisher,
			ready:     connector.Ready,
		}, nil
	}

	return broker{}, fmt.Errorf("unsupported broker: %s", cfg.Broker)
}

func declareTopology(connector *amqpevent.Connector) error {
	ch, err := connector.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := amqpevent.DeclareTopology(ch, amqpevent.NewOrderTopology()); err != nil {
		return fmt.Errorf("declare amqp topology: %w", err)
	}
	return nil
}

// pingReady превращает Ping зависимости в readiness функцию для /health
func pingReady(ping func(context.Context) error) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return ping(ctx) == nil
	}
}
