package main

import (
	"context"
	"log"

	"fiscus/internal/domain/connection"
	"fiscus/internal/domain/notification"
	"fiscus/internal/domain/provider"
	"fiscus/internal/infrastructure/crypto"
	"fiscus/internal/infrastructure/firebase"
	"fiscus/internal/infrastructure/kafka"
	"fiscus/internal/infrastructure/plaid"
	"fiscus/internal/infrastructure/postgres"
	"fiscus/internal/infrastructure/sandbox"
	httphandlers "fiscus/internal/interfaces/http"
	"fiscus/internal/shared/config"
	"fiscus/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB      *postgres.DB
	Manager *connection.Manager
	Events  *kafka.Publisher

	// NotificationService is nil when the database is disabled; without a
	// device repository there is nowhere to register tokens.
	NotificationService *notification.Service

	// Handlers
	LinkHandler       *httphandlers.LinkHandler
	ConnectionHandler *httphandlers.ConnectionHandler
	WebhookHandler    *httphandlers.WebhookHandler
	DeviceHandler     *httphandlers.DeviceHandler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// Connect to database when enabled. Without it the manager keeps
	// connection state in memory and loses it on restart.
	var store connection.Store
	var deviceRepo *postgres.DeviceRepository
	if cfg.Database.Enabled {
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		log.Println("Connected to database")

		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}

		encryptor, err := crypto.NewEncryptorFromSecret(cfg.Encryption.Secret)
		if err != nil {
			db.Close()
			return nil, err
		}

		deps.DB = db
		store = postgres.NewConnectionStore(db, encryptor)
		deviceRepo = postgres.NewDeviceRepository(db)
	} else {
		log.Println("Database disabled; connection state is in-memory only")
	}

	// Initialize push notifications. The FCM client is optional; without
	// credentials the service still registers devices but sends nothing.
	if deviceRepo != nil {
		texts, err := messages.Load(cfg.Firebase.MessagesFile)
		if err != nil {
			log.Printf("Warning: failed to load notification messages: %v", err)
			texts = messages.Defaults()
		}

		var messenger notification.Messenger
		if cfg.Firebase.CredentialsFile != "" {
			fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, deviceRepo.DeactivateToken)
			if err != nil {
				log.Printf("Warning: failed to initialize FCM client: %v", err)
			} else {
				messenger = fcm
				log.Println("FCM push notifications enabled")
			}
		}

		deps.NotificationService = notification.NewService(deviceRepo, messenger, texts)
	}

	// Initialize event publishing
	var events connection.EventPublisher
	if cfg.Kafka.Enabled() {
		deps.Events = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		events = deps.Events
		log.Printf("Kafka event publishing enabled (topic %s)", cfg.Kafka.Topic)
	}

	// Register provider factories. Plaid is always constructible; the
	// sandbox provider is for development and demos.
	factories := map[string]provider.Factory{
		"plaid": plaid.New,
	}
	if cfg.Sandbox.Enabled {
		factories["sandbox"] = sandbox.New
	}

	var notifier connection.Notifier
	if deps.NotificationService != nil {
		notifier = deps.NotificationService
	}

	manager := connection.NewManager(factories, store, notifier, events, connection.Callbacks{}, connection.SyncOptions{
		IncludeInvestments: cfg.Sync.IncludeInvestments,
		IncludeLiabilities: cfg.Sync.IncludeLiabilities,
		IncludeIncome:      cfg.Sync.IncludeIncome,
		IncludeRecurring:   cfg.Sync.IncludeRecurring,
		TransactionDays:    cfg.Sync.TransactionDays,
	})
	manager.SetSyncLimits(cfg.Sync.ProviderTimeout, cfg.Sync.MaxPages, cfg.Sync.BatchSize)
	deps.Manager = manager

	// Configure providers from environment credentials. Providers can also
	// be registered later through the API.
	if cfg.Plaid.Configured() {
		err := manager.ConfigureProvider(provider.Config{
			Provider:    "plaid",
			ClientID:    cfg.Plaid.ClientID,
			Secret:      cfg.Plaid.Secret,
			Environment: cfg.Plaid.Environment,
		})
		if err != nil {
			deps.Close()
			return nil, err
		}
		log.Printf("Plaid provider configured (%s)", cfg.Plaid.Environment)
	}
	if cfg.Sandbox.Enabled {
		err := manager.ConfigureProvider(provider.Config{
			Provider:    "sandbox",
			ClientID:    "sandbox",
			Secret:      "sandbox",
			Environment: provider.EnvSandbox,
		})
		if err != nil {
			deps.Close()
			return nil, err
		}
		log.Println("Sandbox provider configured")
	}

	// Load persisted connections before serving traffic
	if err := manager.Restore(ctx); err != nil {
		deps.Close()
		return nil, err
	}

	// Initialize handlers
	deps.LinkHandler = httphandlers.NewLinkHandler(manager)
	deps.ConnectionHandler = httphandlers.NewConnectionHandler(manager)
	deps.WebhookHandler = httphandlers.NewWebhookHandler(manager, cfg.Webhook.Secret)
	if deps.NotificationService != nil {
		deps.DeviceHandler = httphandlers.NewDeviceHandler(deps.NotificationService)
	}

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Manager != nil {
		d.Manager.Close()
	}
	if d.Events != nil {
		if err := d.Events.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
