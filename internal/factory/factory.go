package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-api/internal/certs"
	"restaurant-api/internal/client"
	"restaurant-api/internal/config"
	"restaurant-api/internal/events"
	"restaurant-api/internal/hashing"
	"restaurant-api/internal/notify"
	"restaurant-api/internal/offers"
	"restaurant-api/internal/otp"
	"restaurant-api/internal/ratelimit"
	redisrepo "restaurant-api/internal/repository/redis"
	"restaurant-api/internal/repository/scylla"
	"restaurant-api/internal/service"
	"restaurant-api/internal/session"
	"restaurant-api/internal/util"
)

const (
	memoryShards    = 64
	janitorInterval = time.Minute
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config      *config.Config
	certManager *certs.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	hasher    *hashing.Hasher
	otpStore  otp.Store
	registry  otp.Registry
	sender    otp.Sender
	limiter   ratelimit.Limiter
	catalog   offers.Catalog
	publisher events.Publisher
	auditSink *events.AuditSink
	issuer    *session.Issuer

	// Set only for the in-memory backends, which need periodic cleanup.
	memoryStore   *otp.MemoryStore
	memoryLimiter *ratelimit.MemoryLimiter

	otpService     *otp.Service
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{config: cfg}

	if cfg.Server.EnableTLS {
		m, err := certs.NewManager(certs.Config{
			AutoCert:        cfg.Server.AutoCert,
			Domain:          cfg.Server.Domain,
			CertFile:        cfg.Server.CertFile,
			KeyFile:         cfg.Server.KeyFile,
			CacheDir:        cfg.Server.AutoCertDir,
			Email:           cfg.Server.Email,
			AllowSelfSigned: !cfg.IsProduction(),
		}, util.Named("tls"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		factory.certManager = m
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := factory.initializeComponents(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("otp_store", backendName(factory.redisClient != nil && cfg.OTP.StoreBackend == "redis")),
		util.String("catalog", cfg.Catalog.Backend),
		util.String("sms_channel", cfg.Notify.Channel),
		util.Bool("audit_enabled", factory.auditSink != nil),
	)

	return factory, nil
}

// initializeClients connects the external services the configuration asks
// for. Outside production a failed client is logged and its memory
// counterpart is used instead.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := f.config
	logger := util.Get()
	var initErrors []error

	// Redis
	if cfg.Redis.Enabled {
		if c, err := client.NewRedisClient(cfg, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else if err := c.HealthCheck(ctx); err != nil {
			_ = c.Close()
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if cfg.Catalog.Backend == "scylla" {
		if c, err := scylla.NewScyllaClient(cfg, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else if err := c.HealthCheck(ctx); err != nil {
			c.Close()
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			f.scyllaClient = c
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if cfg.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(cfg, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			topics := []string{cfg.Kafka.EventsTopic}
			if cfg.Notify.Channel == "kafka" {
				topics = append(topics, cfg.Notify.Topic)
			}
			if err := producer.EnsureTopics(ctx, topics...); err != nil {
				util.Warn("Kafka topics could not be verified", util.ErrorField(err))
			}
		}
	}

	// ClickHouse
	if cfg.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(cfg, logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if cfg.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning, falling back to memory", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeComponents(ctx context.Context) error {
	cfg := f.config
	logger := util.Get()

	f.hasher = hashing.NewHasher(hashing.Argon2Params{
		Memory:      uint32(cfg.OTP.Argon2MemoryCost),
		Iterations:  uint32(cfg.OTP.Argon2TimeCost),
		Parallelism: uint8(cfg.OTP.Argon2Parallelism),
	}, cfg.OTP.Pepper)

	if f.redisClient != nil && cfg.OTP.StoreBackend == "redis" {
		f.otpStore = redisrepo.NewOTPCache(f.redisClient, cfg.OTP.Expiry)
		registry := redisrepo.NewRegistryCache(f.redisClient)
		if err := registry.Seed(ctx, otp.SeedPhones...); err != nil {
			return err
		}
		f.registry = registry
	} else {
		f.memoryStore = otp.NewMemoryStore(memoryShards)
		f.otpStore = f.memoryStore
		f.registry = otp.NewMemoryRegistry(otp.SeedPhones...)
	}

	if f.kafkaProducer != nil && cfg.Notify.Channel == "kafka" {
		f.sender = notify.NewKafkaSender(f.kafkaProducer, cfg.Notify.Topic)
	} else {
		f.sender = notify.NewLogSender(cfg.Notify.FailureRate, cfg.Notify.MinLatency, cfg.Notify.MaxLatency, logger.Named("sms"))
	}

	if f.redisClient != nil && cfg.RateLimit.Backend == "redis" {
		f.limiter = redisrepo.NewRateLimitCache(f.redisClient)
	} else {
		f.memoryLimiter = ratelimit.NewMemoryLimiter(memoryShards, nil)
		f.limiter = f.memoryLimiter
	}

	if f.scyllaClient != nil {
		repo := scylla.NewOfferRepository(f.scyllaClient)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := repo.SeedIfEmpty(ctx, offers.SeedOffers(time.Now())); err != nil {
			return err
		}
		f.catalog = repo
	} else {
		f.catalog = offers.NewMemoryCatalog(offers.SeedOffers(time.Now()))
	}

	var publishers events.Multi
	if f.kafkaProducer != nil {
		publishers = append(publishers, events.NewKafkaPublisher(f.kafkaProducer, cfg.Kafka.EventsTopic))
	}
	if f.clickhouseClient != nil {
		sink := events.NewAuditSink(f.clickhouseClient, events.AuditConfig{Table: cfg.Clickhouse.Table}, logger.Named("audit"))
		if err := sink.EnsureTable(ctx); err != nil {
			return err
		}
		f.auditSink = sink
		publishers = append(publishers, sink)
	}
	switch len(publishers) {
	case 0:
		f.publisher = events.Nop{}
	case 1:
		f.publisher = publishers[0]
	default:
		f.publisher = publishers
	}

	f.issuer = session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Audience)

	f.otpService = otp.NewService(f.otpStore, f.registry, f.sender, f.hasher,
		otp.Config{
			CodeLength:  cfg.OTP.CodeLength,
			Expiry:      cfg.OTP.Expiry,
			MaxAttempts: cfg.OTP.MaxAttempts,
			LockStripes: cfg.OTP.LockStripes,
		},
		otp.WithPublisher(f.publisher),
		otp.WithLogger(logger.Named("otp")),
	)

	f.serviceFactory = service.NewServiceFactory(f.otpService, f.issuer, f.catalog, f.publisher, logger)
	return nil
}

// Run drives background work until ctx is done: the audit flusher and the
// janitors for in-memory state.
func (f *Factory) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if f.auditSink != nil {
		g.Go(func() error { return f.auditSink.Run(ctx) })
	}
	if f.memoryStore != nil || f.memoryLimiter != nil {
		g.Go(func() error {
			f.runJanitor(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (f *Factory) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	limiterWindow := max(f.config.RateLimit.GeneralWindow, f.config.RateLimit.PhoneWindow)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var codes, windows int
			if f.memoryStore != nil {
				codes = f.memoryStore.PurgeCreatedBefore(now.Add(-otp.Retention(f.config.OTP.Expiry)))
			}
			if f.memoryLimiter != nil {
				windows = f.memoryLimiter.Sweep(now.Add(-limiterWindow))
			}
			if codes > 0 || windows > 0 {
				util.Debug("Janitor pass",
					util.Int("expired_codes", codes),
					util.Int("stale_windows", windows),
				)
			}
		}
	}
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			_ = f.kafkaProducer.Close()
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// CertManager is nil when TLS is disabled.
func (f *Factory) CertManager() *certs.Manager {
	return f.certManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Issuer() *session.Issuer {
	return f.issuer
}

func (f *Factory) Limiter() ratelimit.Limiter {
	return f.limiter
}

func backendName(redis bool) string {
	if redis {
		return "redis"
	}
	return "memory"
}
