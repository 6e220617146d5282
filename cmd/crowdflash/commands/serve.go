package commands

import (
	"fmt"

	"github.com/crowdflash/crowdflash-server/internal/service"
	"github.com/crowdflash/crowdflash-server/pkg/auth"
	"github.com/crowdflash/crowdflash-server/pkg/config"
	"github.com/crowdflash/crowdflash-server/pkg/eventlog"
	"github.com/crowdflash/crowdflash-server/pkg/handlers"
	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"github.com/crowdflash/crowdflash-server/pkg/kafka"
	"github.com/crowdflash/crowdflash-server/pkg/metrics"
	"github.com/crowdflash/crowdflash-server/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type Application struct {
	configPath    string
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	eventLog      *eventlog.Log
	hub           *hub.Hub
	tokenStore    auth.TokenStore
	redisStore    *auth.RedisStore
	authService   *auth.Service
	videoStore    *storage.VideoStore
	kafkaProducer *kafka.Producer
	control       *service.ControlService
	wsHandler     *handlers.WebSocketHandler
	loginHandler  *handlers.LoginHandler
	videoHandler  *handlers.VideoHandler
	healthHandler *handlers.HealthCheckHandler
	server        *service.Server
}

func NewApplication(configPath string) *Application {
	return &Application{
		configPath: configPath,
	}
}

func (a *Application) Init() error {
	if err := a.initConfig(); err != nil {
		return err
	}

	if err := a.initLogger(); err != nil {
		return err
	}

	a.logger.Info("Starting Crowdflash control server",
		zap.Int("port", a.cfg.Server.Port))

	a.initMetrics()
	a.initCore()

	if err := a.initAuth(); err != nil {
		return err
	}

	if err := a.initStorage(); err != nil {
		return err
	}

	if err := a.initKafka(); err != nil {
		return err
	}

	a.initServices()
	a.initHandlers()
	a.initServer()

	return nil
}

func (a *Application) initConfig() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *Application) initLogger() error {
	logger, err := config.NewLogger(&a.cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *Application) initMetrics() {
	a.metrics = metrics.NewMetrics(a.cfg.Metrics.Namespace)
}

func (a *Application) initCore() {
	a.eventLog = eventlog.New(eventlog.DefaultCapacity)
	a.hub = hub.New(a.logger)
	a.hub.SetMetrics(a.metrics)
}

func (a *Application) initAuth() error {
	if a.cfg.Redis.Enabled {
		store, err := auth.NewRedisStore(&a.cfg.Redis, a.cfg.Auth.TokenTTL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create Redis token store: %w", err)
		}
		a.redisStore = store
		a.tokenStore = store
	} else {
		a.tokenStore = auth.NewMemoryStore(a.cfg.Auth.TokenTTL)
	}

	a.authService = auth.NewService(&a.cfg.Auth, a.tokenStore, a.logger)
	return nil
}

func (a *Application) initStorage() error {
	store, err := storage.NewVideoStore(a.cfg.Storage.UploadsDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create video store: %w", err)
	}
	a.videoStore = store
	return nil
}

func (a *Application) initKafka() error {
	if !a.cfg.Kafka.Enabled {
		return nil
	}

	producer, err := kafka.NewProducer(&a.cfg.Kafka, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	a.kafkaProducer = producer
	a.eventLog.AddSink(producer.Publish)
	return nil
}

func (a *Application) initServices() {
	a.control = service.NewControlService(a.hub, a.eventLog, a.authService, a.logger)
	a.control.SetMetrics(a.metrics)
}

func (a *Application) initHandlers() {
	a.wsHandler = handlers.NewWebSocketHandler(a.control, a.logger)
	a.loginHandler = handlers.NewLoginHandler(a.authService, a.logger)
	a.videoHandler = handlers.NewVideoHandler(a.videoStore, a.eventLog, a.logger)
	a.videoHandler.SetMetrics(a.metrics)
	a.healthHandler = handlers.NewHealthCheckHandler(a.hub, a.logger)
}

func (a *Application) initServer() {
	a.server = service.NewServer(
		a.wsHandler,
		a.loginHandler,
		a.videoHandler,
		a.healthHandler,
		a.control,
		a.hub,
		a.metrics,
		a.logger,
		&a.cfg.Server,
	)
}

func (a *Application) Run() error {
	return a.server.Start()
}

func (a *Application) Stop() {
	if a.kafkaProducer != nil {
		a.kafkaProducer.Close()
	}
	if a.redisStore != nil {
		a.redisStore.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

func NewServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Crowdflash control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApplication(configPath)
			if err := app.Init(); err != nil {
				return err
			}
			defer app.Stop()
			return app.Run()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
