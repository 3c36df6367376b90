package app

import (
	"context"
	"fmt"
	"time"

	"aiotts_gateway/internal/config"
	"aiotts_gateway/internal/directory"
	"aiotts_gateway/internal/flashship"
	"aiotts_gateway/internal/metrics"
	"aiotts_gateway/internal/notifications"
	"aiotts_gateway/internal/sheets"
	"aiotts_gateway/internal/updater"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Clients holds every collaborator the HTTP layer needs.
type Clients struct {
	Sheets        sheets.Opener
	Directory     *directory.Store
	Pool          *pgxpool.Pool
	Updater       *updater.Store
	FlashShip     *flashship.Client
	Notifications *notifications.Client
}

// Close releases pooled connections.
func (c *Clients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// InitializeClients builds the sheet backend, the optional directory database
// and the file, upstream and notification clients.
func InitializeClients(ctx context.Context, cfg Config) (*Clients, error) {
	log.Debug().Msg("Initializing clients")
	resilience := config.DefaultResilienceConfig.WithSheetsTimeout(cfg.SheetsTimeout)

	opener, err := InitializeSheets(ctx, cfg, resilience)
	if err != nil {
		return nil, err
	}

	clients := &Clients{
		Sheets:        opener,
		Updater:       updater.NewStore(cfg.UpdateDir, cfg.UploadDir, cfg.DependencyDir),
		FlashShip:     flashship.NewClient(cfg.FlashShipDevEndpoint, cfg.FlashShipProdEndpoint, resilience.UpstreamRequest),
		Notifications: InitializeNotificationClient(cfg),
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("No database configured; directory lookups are disabled")
	} else {
		pool, err := InitializePool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		clients.Pool = pool
		clients.Directory = directory.NewStore(pool, cfg.DBQueryTimeout, resilience.DirectoryQuery)
	}

	log.Debug().Msg("Clients initialized successfully")
	return clients, nil
}

func InitializeSheets(ctx context.Context, cfg Config, resilience config.ResilienceConfig) (sheets.Opener, error) {
	switch cfg.SheetsBackend {
	case BackendMemory:
		log.Warn().Msg("Using in-memory sheets backend; data is lost on restart")
		return sheets.NewMemoryBackend(cfg.SheetsOptions()), nil
	default:
		client, err := sheets.NewClient(ctx, []byte(cfg.SheetSecretKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets client: %w", err)
		}
		return sheets.NewGoogleOpener(client, cfg.SheetsOptions(), resilience), nil
	}
}

// InitializePool connects to Postgres and registers the pool collector.
func InitializePool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := prometheus.Register(metrics.NewPoolCollector(pool)); err != nil {
		log.Warn().Err(err).Msg("Failed to register pool metrics")
	}
	log.Info().Msg("Connected to database")
	return pool, nil
}

// InitializeNotificationClient creates and returns the notification client
func InitializeNotificationClient(cfg Config) *notifications.Client {
	log.Debug().
		Bool("enabled", cfg.NtfyEnabled).
		Str("base_url", cfg.NtfyURL).
		Str("topic", cfg.NtfyTopic).
		Msg("Initializing notification client")

	client := notifications.NewClient(notifications.Config{
		BaseURL:    cfg.NtfyURL,
		Topic:      cfg.NtfyTopic,
		Enabled:    cfg.NtfyEnabled,
		Priority:   cfg.NtfyPriority,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	})

	if cfg.NtfyEnabled {
		log.Info().Str("topic", cfg.NtfyTopic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}
	return client
}
