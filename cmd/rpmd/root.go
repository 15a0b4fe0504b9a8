package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/config"
	"github.com/t77yq/rpm-engine/internal/engine"
	"github.com/t77yq/rpm-engine/internal/logger"
	"github.com/t77yq/rpm-engine/internal/rules"
	"github.com/t77yq/rpm-engine/internal/storage"
)

// app holds what every subcommand needs after config is loaded
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "rpmd",
		Short:         "Remote patient monitoring rule engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg

			a.logger, err = logger.New(cfg.Log.Level, cfg.Log.Format, cfg.App.Name)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file path (default: ./config/config.yaml)")

	cmd.AddCommand(
		newServeCommand(a),
		newEvaluateCommand(a),
		newRulesCommand(a),
		newAlertsCommand(a),
		newIngestCommand(a),
	)
	return cmd
}

func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	db := a.cfg.Database
	return storage.Open(ctx, a.logger, db.Driver, db.DSN, db.MaxOpenConns)
}

// newEngine loads the configured rule set and binds it to the store
func (a *app) newEngine(store *storage.Store) (*engine.Engine, error) {
	set, err := rules.Load(a.cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return engine.New(store, store, set, engine.WithLogger(a.logger))
}

// connectNATS connects with retry and returns a JetStream context
func (a *app) connectNATS() (*nats.Conn, nats.JetStreamContext, error) {
	cfg := a.cfg.NATS
	log := a.logger

	opts := []nats.Option{
		nats.Name(a.cfg.App.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS connection error", fields...)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			break
		}
		log.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS after retries: %w", err)
	}

	log.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

func (a *app) connectRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.logger.Info("Connected to Redis", zap.String("addr", a.cfg.Redis.Addr))
	return client, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
