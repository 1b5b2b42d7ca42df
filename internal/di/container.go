package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/handler"
	"github.com/scriptify-cm/event-qr-platform/internal/qrcode"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
	"github.com/scriptify-cm/event-qr-platform/internal/service"
	"github.com/scriptify-cm/event-qr-platform/pkg/config"
	"github.com/scriptify-cm/event-qr-platform/pkg/database"
	"github.com/scriptify-cm/event-qr-platform/pkg/kafka"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	pkgredis "github.com/scriptify-cm/event-qr-platform/pkg/redis"
	"github.com/scriptify-cm/event-qr-platform/pkg/retry"
)

// Container holds all dependencies for the gate service
type Container struct {
	// Infrastructure; nil when the matching store or transport is not in use
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer

	// Repositories
	TicketRepo    repository.TicketRepository
	ChallengeRepo repository.ChallengeRepository

	// Publishers
	EventPublisher service.EventPublisher
	OTPSender      service.OTPSender

	Codec     *qrcode.Codec
	Catalogue *domain.Catalogue

	// Services
	OTPService        service.OTPService
	ValidationService service.ValidationService
	ScanService       service.ScanService
	TicketService     service.TicketService
	ScanTally         *service.ScanTally

	// Handlers
	HealthHandler *handler.HealthHandler
	GateHandler   *handler.GateHandler
	TicketHandler *handler.TicketHandler
	AdminHandler  *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer

	TicketRepo     repository.TicketRepository
	ChallengeRepo  repository.ChallengeRepository
	EventPublisher service.EventPublisher
	OTPSender      service.OTPSender

	Gate config.GateConfig
	// Now overrides the clock in tests
	Now func() time.Time
}

// NewContainer wires services and handlers on top of already connected infrastructure
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Producer:       cfg.Producer,
		TicketRepo:     cfg.TicketRepo,
		ChallengeRepo:  cfg.ChallengeRepo,
		EventPublisher: cfg.EventPublisher,
		OTPSender:      cfg.OTPSender,
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}
	if c.OTPSender == nil {
		c.OTPSender = service.NewLogOTPSender(nil)
	}

	var err error
	c.Codec, err = qrcode.NewCodec(cfg.Gate.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr codec: %w", err)
	}

	c.Catalogue = domain.DefaultCatalogue()
	if len(cfg.Gate.Prices) > 0 {
		c.Catalogue, err = domain.NewCatalogue(cfg.Gate.Currency, cfg.Gate.Prices)
		if err != nil {
			return nil, fmt.Errorf("failed to build catalogue: %w", err)
		}
	}

	otpRequired := make([]domain.TicketType, 0, len(cfg.Gate.OTPRequiredTypes))
	for _, s := range cfg.Gate.OTPRequiredTypes {
		tt, err := domain.ParseTicketType(s)
		if err != nil {
			return nil, fmt.Errorf("invalid otp-gated ticket type %q: %w", s, err)
		}
		otpRequired = append(otpRequired, tt)
	}

	// Initialize services
	c.OTPService, err = service.NewOTPService(c.ChallengeRepo, &service.OTPConfig{
		Secret:      cfg.Gate.SigningSecret,
		Length:      cfg.Gate.OTPLength,
		TTL:         cfg.Gate.OTPTTL,
		MaxAttempts: cfg.Gate.OTPMaxAttempts,
		Now:         cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build otp service: %w", err)
	}

	c.ValidationService = service.NewValidationService(
		c.TicketRepo,
		c.OTPService,
		c.OTPSender,
		c.EventPublisher,
		&service.ValidationConfig{OTPRequiredTypes: otpRequired, Now: cfg.Now},
	)
	c.ScanTally = service.NewScanTally()
	c.ScanService = service.NewScanService(
		c.Codec,
		c.TicketRepo,
		c.ValidationService,
		c.EventPublisher,
		&service.ScanConfig{Tally: c.ScanTally, Now: cfg.Now},
	)
	c.TicketService = service.NewTicketService(
		c.TicketRepo,
		c.Codec,
		c.Catalogue,
		c.EventPublisher,
		&service.TicketServiceConfig{ReservationWindow: cfg.Gate.ReservationWindow, Now: cfg.Now},
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.healthChecks())
	c.GateHandler = handler.NewGateHandler(c.ScanService, c.ValidationService)
	c.TicketHandler = handler.NewTicketHandler(c.TicketService, c.ValidationService)
	c.AdminHandler = handler.NewAdminHandler(c.TicketService, c.ScanTally, c.Catalogue.Currency)

	return c, nil
}

// healthChecks lists readiness checks; absent dependencies stay untyped nil
func (c *Container) healthChecks() map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"database": nil,
		"redis":    nil,
		"kafka":    nil,
	}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	if c.Producer != nil {
		checks["kafka"] = handler.HealthCheckFunc(c.Producer.Ping)
	}
	return checks
}

// Build connects the configured stores and transports, then wires the container
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (c *Container, err error) {
	cc := &ContainerConfig{Gate: cfg.Gate}

	defer func() {
		if err != nil {
			closeInfra(cc, log)
		}
	}()

	// Ticket store
	switch cfg.Gate.TicketStore {
	case "postgres":
		cc.DB, err = database.NewPostgres(ctx, database.FromAppConfig(cfg.Database, cfg.OTel.Enabled))
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		statements, err := repository.MigrationStatements()
		if err != nil {
			return nil, fmt.Errorf("failed to read migrations: %w", err)
		}
		if err := database.Migrate(ctx, cc.DB.Pool(), statements...); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		cc.TicketRepo = repository.NewPostgresTicketRepository(cc.DB.Pool())
		log.Info("Ticket store: postgres", zap.String("host", cfg.Database.Host))
	default:
		cc.TicketRepo = repository.NewMemoryTicketRepository()
		log.Warn("Ticket store: memory, tickets are lost on restart")
	}

	// Challenge store
	switch cfg.Gate.ChallengeStore {
	case "redis":
		cc.Redis, err = pkgredis.NewClient(ctx, pkgredis.FromAppConfig(cfg.Redis))
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		challengeRepo := repository.NewRedisChallengeRepository(cc.Redis, cfg.Gate.OTPRetention)
		if err := challengeRepo.LoadScripts(ctx); err != nil {
			log.Warn("Failed to pre-load Lua scripts", zap.Error(err))
		} else {
			log.Info("Lua scripts pre-loaded into Redis")
		}
		cc.ChallengeRepo = challengeRepo
	default:
		cc.ChallengeRepo = repository.NewMemoryChallengeRepository(cfg.Gate.OTPRetention)
		log.Warn("Challenge store: memory, OTP challenges are process-local")
	}

	// Kafka
	if cfg.Kafka.Enabled {
		producer, perr := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if perr != nil {
			log.Warn("Kafka connection failed, using no-op publisher", zap.Error(perr))
		} else {
			cc.Producer = producer
			cc.EventPublisher = service.NewKafkaEventPublisher(producer, &service.EventPublisherConfig{
				Topic:       cfg.Kafka.EventsTopic,
				ServiceName: cfg.App.Name,
			})
			log.Info("Kafka event publisher connected", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	// OTP delivery
	switch {
	case cfg.Gate.OTPSender == "kafka" && cc.Producer != nil:
		cc.OTPSender = service.NewKafkaOTPSender(cc.Producer, cfg.Kafka.OTPTopic, retry.DefaultConfig())
	case cfg.Gate.OTPSender == "kafka" && cfg.IsProduction():
		return nil, fmt.Errorf("otp sender %q requires a kafka connection", cfg.Gate.OTPSender)
	default:
		cc.OTPSender = service.NewLogOTPSender(log)
		log.Warn("OTP sender: log, codes are written to the service log")
	}

	return NewContainer(cc)
}

func closeInfra(cc *ContainerConfig, log *logger.Logger) {
	if cc.Producer != nil {
		cc.Producer.Close()
	}
	if cc.Redis != nil {
		if err := cc.Redis.Close(); err != nil {
			log.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if cc.DB != nil {
		cc.DB.Close()
	}
}

// Close releases infrastructure in reverse order of construction
func (c *Container) Close() {
	log := logger.Get()
	if err := c.EventPublisher.Close(); err != nil {
		log.Warn("Failed to close event publisher", zap.Error(err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
