package main

import (
	"context"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/engine"
	gwmemory "github.com/xraph/bystander/gateway/memory"
	"github.com/xraph/bystander/store/memory"
	redisstore "github.com/xraph/bystander/store/redis"
)

// runtime is everything a command needs, torn down by close.
type runtime struct {
	cfg    cliConfig
	logger *slog.Logger
	engine *engine.Engine
	close  func()
}

func newRuntime(ctx context.Context, v *viper.Viper, logOut io.Writer, setup func(*slog.Logger) []engine.Option) (*runtime, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	gw, err := openGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		st      bystander.Storer
		opts    []engine.Option
		cleanup = func() {}
	)
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		storeOpts := []redisstore.Option{redisstore.WithLogger(logger)}
		if cfg.Redis.JobRetention > 0 {
			storeOpts = append(storeOpts, redisstore.WithJobRetention(cfg.Redis.JobRetention))
		}
		rs := redisstore.New(client, storeOpts...)
		if err := rs.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		st = rs
		opts = append(opts, engine.WithLocker(redisstore.NewLocker(client, redisstore.WithLockLogger(logger))))
		cleanup = func() { _ = client.Close() }
		logger.Debug("using redis store", slog.String("addr", cfg.Redis.Addr))
	} else {
		st = memory.New()
		logger.Debug("using in-memory store")
	}

	if setup != nil {
		opts = append(opts, setup(logger)...)
	}
	if len(cfg.Queues) > 0 {
		opts = append(opts, engine.WithQueueConfig(cfg.Queues...))
	}
	if cfg.GlobalRateLimit > 0 {
		opts = append(opts, engine.WithGlobalRateLimit(cfg.GlobalRateLimit, cfg.GlobalRateBurst))
	}

	b, err := bystander.New(
		bystander.WithStore(st),
		bystander.WithLogger(logger),
		bystander.WithConfig(cfg.bystanderConfig()),
	)
	if err != nil {
		cleanup()
		return nil, err
	}
	eng, err := engine.Build(b, gw, opts...)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, engine: eng, close: cleanup}, nil
}

// openGateway loads the user directory. Without one every lookup comes
// back empty, which is enough for show and jobs.
func openGateway(cfg cliConfig, logger *slog.Logger) (*gwmemory.Gateway, error) {
	if cfg.Directory == "" {
		return gwmemory.New(gwmemory.Directory{}, gwmemory.WithLogger(logger)), nil
	}
	return gwmemory.Load(cfg.Directory, gwmemory.WithLogger(logger))
}
