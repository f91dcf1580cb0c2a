// Package app builds the object graph shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/riskibarqy/tm-alerts/external/deadletter"
	"github.com/riskibarqy/tm-alerts/external/email"
	qstash "github.com/riskibarqy/tm-alerts/external/jobqueue"
	"github.com/riskibarqy/tm-alerts/external/trackmania"
	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/domain/drivernotification"
	"github.com/riskibarqy/tm-alerts/internal/domain/history"
	"github.com/riskibarqy/tm-alerts/internal/domain/jobscheduler"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapperalert"
	"github.com/riskibarqy/tm-alerts/internal/domain/mapposition"
	"github.com/riskibarqy/tm-alerts/internal/domain/pendingemail"
	"github.com/riskibarqy/tm-alerts/internal/domain/subscriber"
	"github.com/riskibarqy/tm-alerts/internal/infrastructure/jobqueue"
	cacherepo "github.com/riskibarqy/tm-alerts/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/tm-alerts/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/tm-alerts/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/tm-alerts/internal/interfaces/httpapi"
	"github.com/riskibarqy/tm-alerts/internal/platform/cache"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/platform/metrics"
	"github.com/riskibarqy/tm-alerts/internal/platform/resilience"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

const (
	deadLetterSourceLocal = "local"
	deadLetterCallback    = "/v1/internal/jobs/dead-letter"

	alertMapCacheBytes = 8 << 20
	alertMapCacheTTL   = 5 * time.Minute
)

type repositories struct {
	subscribers subscriber.Source
	alerts      mapperalert.Repository
	drivers     drivernotification.Repository
	positions   mapposition.Repository
	history     history.Repository
	pending     pendingemail.Repository
	dispatch    jobscheduler.Repository
}

// Container owns every long-lived dependency of one process.
type Container struct {
	Config   config.Config
	Logger   *logging.Logger
	Metrics  *metrics.Recorder
	Tunables *config.RuntimeSettings

	Scheduler *usecase.SchedulerService
	Composer  *usecase.ComposerService
	Consumer  *usecase.JobConsumer
	History   *usecase.HistoryService
	// LocalQueue is nil when jobs go through QStash.
	LocalQueue *jobqueue.LocalQueue

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Container, error) {
	if logger == nil {
		logger = logging.Default()
	}

	c := &Container{Config: cfg, Logger: logger}
	ready := false
	defer func() {
		if !ready {
			_ = c.Close()
		}
	}()

	if cfg.MetricsEnabled {
		c.Metrics = metrics.New()
	}

	tunables, err := config.LoadRuntimeSettings(cfg.TunablesFile, logger.Named("tunables"))
	if err != nil {
		return nil, fmt.Errorf("load tunables: %w", err)
	}
	c.Tunables = tunables

	repos, err := c.openRepositories(ctx)
	if err != nil {
		return nil, err
	}

	client := trackmania.NewClient(trackmania.ClientConfig{
		LiveBaseURL:       cfg.Leaderboard.LiveBaseURL,
		CoreBaseURL:       cfg.Leaderboard.CoreBaseURL,
		NamesBaseURL:      cfg.Leaderboard.NamesBaseURL,
		Login:             cfg.Leaderboard.Login,
		Password:          cfg.Leaderboard.Password,
		Audience:          cfg.Leaderboard.Audience,
		UserAgent:         cfg.Leaderboard.UserAgent,
		OAuthClientID:     cfg.Leaderboard.OAuthClientID,
		OAuthClientSecret: cfg.Leaderboard.OAuthClientSecret,
		GroupUID:          cfg.Leaderboard.GroupUID,
		Timeout:           cfg.Leaderboard.Timeout,
		MaxRetries:        cfg.Leaderboard.MaxRetries,
		RequestInterval:   cfg.Leaderboard.RequestInterval,
		PageSize:          cfg.Leaderboard.PageSize,
		MaxPages:          cfg.Leaderboard.MaxPages,
		NameChunkSize:     cfg.Leaderboard.NameChunkSize,
		Cache:             cache.NewStore(cfg.Leaderboard.CacheSizeMB<<20, cfg.Leaderboard.CacheTTL),
		CircuitBreaker:    cfg.Leaderboard.Circuit,
		Logger:            logger,
		Metrics:           c.Metrics,
	})
	c.observeBreaker(client.Breaker())

	sender, err := email.NewProvider(ctx, cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("build email provider: %w", err)
	}

	archive, err := c.openDeadLetterArchive(ctx)
	if err != nil {
		return nil, err
	}

	processor := usecase.NewPhaseProcessor(
		repos.alerts,
		repos.drivers,
		repos.positions,
		repos.history,
		repos.pending,
		client,
		c.Tunables,
		usecase.PhaseProcessorConfig{
			HistoryStaleAfter: cfg.HistoryStaleAfter,
			GroupUID:          cfg.Leaderboard.GroupUID,
		},
		logger,
	)
	c.Composer = usecase.NewComposerService(repos.pending, repos.history, sender, c.Tunables, c.Metrics, logger)
	c.Consumer = usecase.NewJobConsumer(
		processor,
		c.Composer,
		repos.history,
		archive,
		repos.dispatch,
		c.Metrics,
		usecase.JobConsumerConfig{JobTimeout: cfg.Queue.JobTimeout},
		logger,
	)
	c.History = usecase.NewHistoryService(repos.history, repos.dispatch)

	queue, err := c.buildQueue()
	if err != nil {
		return nil, err
	}
	c.Scheduler = usecase.NewSchedulerService(repos.subscribers, queue, repos.dispatch, c.Metrics, logger)

	logger.Info("app container ready",
		"storage", cfg.StorageDriver,
		"queue", cfg.Queue.Driver,
		"email", cfg.Email.Provider,
		"metrics", cfg.MetricsEnabled,
	)
	ready = true
	return c, nil
}

func (c *Container) openRepositories(ctx context.Context) (repositories, error) {
	alertMapCache := cache.NewStore(alertMapCacheBytes, alertMapCacheTTL)

	if c.Config.StorageDriver == config.StorageDriverMemory {
		data := memory.SeedDemo()
		alerts := memory.NewMapperAlertRepository(data.MapperAlerts, data.AlertMaps)
		drivers := memory.NewDriverNotificationRepository(data.DriverNotifications)
		c.Logger.Warn("using in-memory storage, state is lost on exit", "users", len(data.Users))

		return repositories{
			subscribers: memory.NewSubscriberRepository(data.Users, alerts, drivers),
			alerts:      cacherepo.NewMapperAlertRepository(alerts, alertMapCache),
			drivers:     drivers,
			positions:   memory.NewMapPositionRepository(),
			history:     memory.NewHistoryRepository(time.Now),
			pending:     memory.NewPendingEmailRepository(time.Now),
			dispatch:    memory.NewJobDispatchRepository(),
		}, nil
	}

	db, err := openPostgres(ctx, c.Config)
	if err != nil {
		return repositories{}, err
	}
	c.closers = append(c.closers, db.Close)

	if c.Config.AppEnv == config.EnvDev {
		if err := postgres.BootstrapSeed(ctx, db); err != nil {
			return repositories{}, fmt.Errorf("bootstrap seed: %w", err)
		}
	}

	return repositories{
		subscribers: postgres.NewSubscriberRepository(db),
		alerts:      cacherepo.NewMapperAlertRepository(postgres.NewMapperAlertRepository(db), alertMapCache),
		drivers:     postgres.NewDriverNotificationRepository(db),
		positions:   postgres.NewMapPositionRepository(db),
		history:     postgres.NewHistoryRepository(db),
		pending:     postgres.NewPendingEmailRepository(db),
		dispatch:    postgres.NewJobDispatchRepository(db),
	}, nil
}

func (c *Container) openDeadLetterArchive(ctx context.Context) (*deadletter.Archive, error) {
	dlCfg := deadletter.Config{Logger: c.Logger}
	if c.Config.DeadLetter.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		dlCfg.Client = client
		dlCfg.Bucket = c.Config.DeadLetter.Bucket
	} else {
		dlCfg.LocalDir = c.Config.DeadLetter.LocalDir
	}

	archive, err := deadletter.New(dlCfg)
	if err != nil {
		return nil, fmt.Errorf("open dead letter archive: %w", err)
	}
	return archive, nil
}

func (c *Container) buildQueue() (usecase.JobQueue, error) {
	qcfg := c.Config.Queue

	switch qcfg.Driver {
	case config.QueueDriverQStash:
		publisher := qstash.NewQStashPublisher(qstash.QStashPublisherConfig{
			BaseURL:             qcfg.QStashBaseURL,
			Token:               qcfg.QStashToken,
			TargetBaseURL:       qcfg.QStashTargetURL,
			Retries:             qcfg.QStashRetries,
			InternalJobToken:    qcfg.InternalJobToken,
			FailureCallbackPath: deadLetterCallback,
			CircuitBreaker:      qcfg.QStashCircuit,
		}, c.Logger)
		c.observeBreaker(publisher.Breaker())
		return publisher, nil
	case config.QueueDriverLocal:
		consumer := c.Consumer
		logger := c.Logger
		c.LocalQueue = jobqueue.NewLocalQueue(jobqueue.LocalQueueConfig{
			Workers:      qcfg.Workers,
			MaxAttempts:  qcfg.MaxAttempts,
			RetryBackoff: qcfg.RetryBackoff,
			JobTimeout:   qcfg.JobTimeout,
			IsPermanent:  usecase.IsPermanent,
			OnDeadLetter: func(ctx context.Context, path string, body []byte, attempts int, lastErr error) {
				if err := consumer.HandleDeadLetter(ctx, deadLetterSourceLocal, body, attempts, lastErr); err != nil {
					logger.ErrorContext(ctx, "store dead letter failed", "path", path, "error", err)
				}
			},
		}, c.Logger)
		c.LocalQueue.Handle(usecase.PhaseJobPath, func(ctx context.Context, body []byte) error {
			_, err := consumer.HandlePhaseJob(ctx, body)
			return err
		})
		return c.LocalQueue, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", qcfg.Driver)
	}
}

// observeBreaker mirrors breaker transitions into logs and the circuit gauge.
func (c *Container) observeBreaker(b *resilience.CircuitBreaker) {
	recorder := c.Metrics
	logger := c.Logger
	b.OnStateChange(func(name string, from, to resilience.CircuitState) {
		recorder.CircuitState(name, to == resilience.CircuitStateOpen)
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
	})
}

// NewHTTPServer builds the internal API server.
func (c *Container) NewHTTPServer() (*http.Server, error) {
	if c.Config.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	var metricsHandler http.Handler
	if c.Metrics != nil {
		metricsHandler = c.Metrics.Handler()
	}

	handler := httpapi.NewHandler(c.Scheduler, c.Consumer, c.Composer, c.History, c.Logger)
	router := httpapi.NewRouter(handler, c.Logger, c.Config.Queue.InternalJobToken, metricsHandler)

	return &http.Server{
		Addr:              c.Config.HTTPAddr,
		Handler:           router,
		ReadTimeout:       c.Config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      c.Config.WriteTimeout,
	}, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
