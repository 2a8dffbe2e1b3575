package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/cli/config"
	"github.com/conduit-lang/entitycore/internal/orm/store"
	"github.com/conduit-lang/entitycore/internal/orm/store/memory"
	"github.com/conduit-lang/entitycore/internal/orm/store/redisstore"
	"github.com/conduit-lang/entitycore/internal/orm/store/sqlstore"
)

// openStore opens the document store selected by cfg
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite, config.DriverPostgres:
		return sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Table, logger)
	case config.DriverRedis:
		return redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
