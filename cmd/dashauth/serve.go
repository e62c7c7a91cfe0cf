package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/dashauth/internal/api"
	"github.com/nerrad567/dashauth/internal/audit"
	"github.com/nerrad567/dashauth/internal/auth"
	"github.com/nerrad567/dashauth/internal/events"
	"github.com/nerrad567/dashauth/internal/infrastructure/config"
	"github.com/nerrad567/dashauth/internal/infrastructure/database"
	"github.com/nerrad567/dashauth/internal/infrastructure/influxdb"
	"github.com/nerrad567/dashauth/internal/infrastructure/logging"
	"github.com/nerrad567/dashauth/internal/infrastructure/mqtt"
	"github.com/nerrad567/dashauth/internal/ratelimit"
	"github.com/nerrad567/dashauth/migrations"
)

const (
	// janitorInterval is how often expired tokens and sessions are purged.
	janitorInterval = 15 * time.Minute

	// redisPingTimeout bounds the startup reachability check.
	redisPingTimeout = 3 * time.Second
)

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	NoSeed bool `help:"Do not create the bootstrap administrator on an empty database." name:"no-seed"`
}

// Run starts every component, waits for ctx to be cancelled and shuts down
// in reverse order of startup.
func (s *ServeCmd) Run(ctx context.Context, g *Globals) error { //nolint:gocognit,gocyclo // linear startup sequence
	cfg, log, err := g.loadConfig()
	if err != nil {
		return err
	}
	log.Info("starting dashauth",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	health := map[string]api.HealthChecker{"database": db}
	var recorders []auth.EventRecorder

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		publisher := events.NewMQTTPublisher(mqttClient, mqttClient.Topics(), log.Logger, events.DefaultBufferSize)
		pubCtx, stopPublisher := context.WithCancel(context.Background())
		pubDone := make(chan struct{})
		go func() {
			defer close(pubDone)
			publisher.Run(pubCtx)
		}()
		// Flush queued events before the client disconnects.
		defer func() {
			stopPublisher()
			<-pubDone
			if n := publisher.Dropped(); n > 0 {
				log.Warn("auth events dropped while publishing", "count", n)
			}
		}()

		recorders = append(recorders, publisher)
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorders = append(recorders, events.NewInfluxRecorder(influxClient))
		health["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc, err := newAuthService(cfg, db, log, events.Combine(recorders...))
	if err != nil {
		return err
	}

	if !s.NoSeed {
		if _, seedErr := svc.SeedAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminEmail); seedErr != nil {
			return fmt.Errorf("seeding admin: %w", seedErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		RateLimit: cfg.Security.RateLimit,
		Logger:    log,
		Auth:      svc,
		Audit:     audit.NewSQLiteRepository(db.DB),
		Limiter:   limiter,
		Health:    health,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	go runJanitor(ctx, svc, janitorInterval, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", db.Path())

	n, err := db.Migrator(migrations.FS).Up(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Already returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", n)
	return db, nil
}

// newAuthService wires the signer, hasher and store into an auth.Service.
func newAuthService(cfg *config.Config, db *database.DB, log *logging.Logger, recorder auth.EventRecorder) (*auth.Service, error) {
	signer, err := auth.NewSigner(auth.SignerConfig{
		Secret:    cfg.Security.JWT.Secret,
		Algorithm: cfg.Security.JWT.Algorithm,
		AccessTTL: cfg.Security.AccessTokenTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating token signer: %w", err)
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Config: auth.ServiceConfig{
			AccessTokenTTL:         cfg.Security.AccessTokenTTL(),
			RefreshTokenTTL:        cfg.Security.RefreshTokenTTL(),
			SessionTTL:             cfg.Security.SessionLifetime(),
			RevokeOnPasswordChange: cfg.Security.RevokeOnPasswordChange,
		},
		Store:  auth.NewSQLiteStore(db),
		Signer: signer,
		Hasher: auth.NewHasher(cfg.Security.BcryptCost),
		Events: recorder,
		Logger: log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}
	return svc, nil
}

// newLimiter returns the Redis-backed limiter when Redis is enabled and the
// in-process limiter otherwise. An unreachable Redis at startup is logged
// but not fatal; the limiter fails open until it comes back.
func newLimiter(ctx context.Context, cfg *config.Config, log *logging.Logger, health map[string]api.HealthChecker) (ratelimit.Limiter, func(), error) {
	rlCfg := ratelimit.PerMinute(cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)

	if !cfg.Redis.Enabled {
		log.Info("rate limiting in process", "requests_per_minute", cfg.Security.RateLimit.RequestsPerMinute)
		return ratelimit.NewMemory(rlCfg), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, rate limiter will fail open", "addr", opts.Addr, "error", err)
	} else {
		log.Info("redis connected", "addr", opts.Addr)
	}

	health["redis"] = api.HealthCheckFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	closeFn := func() {
		log.Info("closing redis connection")
		if err := rdb.Close(); err != nil {
			log.Error("error closing redis", "error", err)
		}
	}
	return ratelimit.NewRedis(rdb, rlCfg), closeFn, nil
}

// runJanitor purges expired refresh tokens and sessions every interval
// until ctx is cancelled.
func runJanitor(ctx context.Context, svc *auth.Service, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := svc.PurgeExpired(ctx); err != nil {
				log.Error("purging expired records failed", "error", err)
			}
		}
	}
}
