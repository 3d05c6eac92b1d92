// Package backend builds the row-store and auth clients from configuration,
// falling back to the not-configured stubs when credentials are missing.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/casa-storefront/internal/authclient"
	"github.com/flicky/casa-storefront/internal/config"
	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

const (
	ModeREST     = "rest"
	ModePostgres = "postgres"
)

var tables = []string{
	model.TableProducts,
	model.TableCartItems,
	model.TableWishlistItems,
	model.TableAdminUsers,
	model.TableOrders,
	model.TableOrderItems,
	model.TableProfiles,
}

type Backend struct {
	Store rowstore.Store
	Auth  authclient.Client
	// Degraded is set when the stubs are in use.
	Degraded bool

	pool *pgxpool.Pool
}

// New never fails for missing credentials; it only fails when a configured
// database cannot be reached.
func New(ctx context.Context, cfg *config.Config, storage authclient.Storage, log *slog.Logger) (*Backend, error) {
	if !cfg.Backend.Configured() {
		log.Warn("backend not configured, running with stubs",
			"url_set", cfg.Backend.URL != "", "key_set", cfg.Backend.AnonKey != "")
		return &Backend{Store: rowstore.Stub{}, Auth: authclient.Stub{}, Degraded: true}, nil
	}

	httpClient := &http.Client{Timeout: cfg.Backend.RequestTimeout}
	auth := authclient.NewGoTrue(cfg.Backend.URL, cfg.Backend.AnonKey, httpClient, storage, log)
	b := &Backend{Auth: auth}

	switch cfg.Backend.Mode {
	case ModePostgres:
		pool, err := connect(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.Store = rowstore.NewPostgresStore(pool, tables...)
		log.Info("connected to PostgreSQL")
	default:
		b.Store = rowstore.NewRESTStore(cfg.Backend.URL, cfg.Backend.AnonKey, httpClient, auth.AccessToken)
	}

	log.Info("backend ready", "mode", cfg.Backend.Mode)
	return b, nil
}

func connect(ctx context.Context, db config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = db.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}
