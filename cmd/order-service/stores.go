package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/goimay/orders/internal/config"
	ord "github.com/goimay/orders/internal/order"
	"github.com/goimay/orders/internal/product"
	"github.com/goimay/orders/internal/user"
)

// stores is the storage side of the service: where orders live, where
// prices come from and how a principal maps to a user id.
type stores struct {
	repo    ord.Repository
	catalog ord.CatalogResolver
	users   ord.IdentityResolver
	close   func()
}

// openStores picks Postgres or the in-memory stores by DB_TYPE. In memory
// mode the catalog comes from PRODUCT_SEED_FILE and users from
// USER_SEED_FILE; without a user seed the token subject is the user id.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	s := &stores{close: func() {}}
	switch cfg.DBType {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		mem, err := product.LoadMemory(cfg.ProductSeedFile)
		if err != nil {
			return nil, err
		}
		s.repo = ord.NewMemRepo()
		s.catalog = product.Catalog{Repo: mem}
		s.users = user.SubjectResolver{}
		if cfg.UserSeedFile != "" {
			dir, err := user.LoadDirectory(cfg.UserSeedFile)
			if err != nil {
				return nil, err
			}
			s.users = user.Resolver{Repo: dir}
		}
	default:
		pool, err := connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := ord.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		s.repo = ord.NewPGRepo(pool)
		s.catalog = product.Catalog{Repo: product.NewPGRepo(pool)}
		s.users = user.Resolver{Repo: user.NewPGRepo(pool)}
		s.close = pool.Close
	}
	if cfg.ProductSvcBaseURL != "" {
		s.catalog = ord.NewHTTPCatalog(cfg.ProductSvcBaseURL)
	}
	return s, nil
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
