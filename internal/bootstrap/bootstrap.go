// Package bootstrap wires config, storage, locking and notifications into a
// ready Service for the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// App holds the shared dependencies of a running binary.
type App struct {
	Config  config.Config
	Log     *logrus.Logger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Repo    *appointment.PgRepository
	Service *appointment.Service

	dispatcher *notify.Dispatcher
}

// NewLogger builds the JSON logger every binary uses. Unknown levels fall
// back to info.
func NewLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	if cfg.Env == "dev" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// needsRedis reports whether any configured backend talks to Redis.
func needsRedis(cfg config.Config) bool {
	return cfg.LockBackend == config.LockBackendRedis || cfg.NotifySink == config.NotifySinkRedis
}

// NewSender picks the notification transport named by cfg.
func NewSender(cfg config.Config, log *logrus.Logger, rdb *redis.Client) (notify.Sender, error) {
	switch cfg.NotifySink {
	case config.NotifySinkLog:
		return notify.LogSender{Log: log}, nil
	case config.NotifySinkRedis:
		if rdb == nil {
			return nil, fmt.Errorf("notify sink %q needs a redis client", cfg.NotifySink)
		}
		return notify.NewRedisStreamSender(rdb, cfg.NotifyStream), nil
	default:
		return nil, fmt.Errorf("unknown notify sink %q", cfg.NotifySink)
	}
}

// New connects to Postgres and, when needed, Redis, and assembles the
// scheduling service. Close must be called to release everything.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg, log)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.PgPool = pool
	log.Info("connected to Postgres")

	if needsRedis(cfg) {
		rdb, err := redisclient.NewRedisClient(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.Redis = rdb
		log.WithField("addr", cfg.RedisAddr).Info("connected to Redis")
	}

	locker, err := redisclient.NewLocker(cfg, app.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}

	sender, err := NewSender(cfg, log, app.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.dispatcher = notify.NewDispatcher(sender, log, cfg.NotifyWorkers, cfg.NotifyQueueSize)

	app.Repo = appointment.NewPgRepository(pool)
	app.Service = appointment.NewService(app.Repo, locker, app.dispatcher, log, cfg)

	log.WithFields(logrus.Fields{
		"lock_backend": cfg.LockBackend,
		"notify_sink":  cfg.NotifySink,
		"timezone":     cfg.ClinicTimezone,
	}).Info("scheduling service ready")
	return app, nil
}

// Close drains pending notifications before closing the connections they
// might use.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.WithError(err).Warn("error closing redis")
		}
	}
	if a.PgPool != nil {
		a.PgPool.Close()
	}
}
