// pkg/db/db.go
package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pipelinehub/pkg/config"
)

const dialTimeout = 10 * time.Second

// MustConnect opens the pipelines database, or returns nil when DATABASE_URL is unset.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("pg config", "host", redactDSN(cfg.DatabaseURL), "err", err)
	}
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = "pipelinehub"
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		log.Fatalw("pg connect", "err", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("pg ping", "host", redactDSN(cfg.DatabaseURL), "err", err)
	}
	log.Infow("pipelines database ready", "host", redactDSN(cfg.DatabaseURL), "max_conns", pcfg.MaxConns)
	return pool
}

// MustRedis opens the shared key-set cache, or returns nil when REDIS_URL is unset.
func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis url", "err", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = "pipelinehub"
	}
	cli := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		log.Fatalw("redis ping", "addr", opts.Addr, "err", err)
	}
	log.Infow("jwks cache redis ready", "addr", opts.Addr, "db", opts.DB)
	return cli
}

// redactDSN drops credentials from URL-style DSNs. Passwords may contain '@'.
func redactDSN(dsn string) string {
	i := strings.LastIndex(dsn, "@")
	if i <= 0 {
		return dsn
	}
	scheme := ""
	if j := strings.Index(dsn, "://"); j > 0 && j < i {
		scheme = dsn[:j+3]
	}
	return scheme + "***@" + dsn[i+1:]
}
