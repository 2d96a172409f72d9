// Package postgres implements database.Provider on top of pgx/v5.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/logger"
)

// Provider hands out warehouse connections. In per-request mode every
// Acquire dials a new connection; in pool mode it borrows from pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Provider struct {
	cfg      *database.Config
	endpoint *Endpoint
	connCfg  *pgx.ConnConfig
	pool     *pgxpool.Pool
	log      *logger.Logger
}

// NewProvider parses cfg once and prepares the provider. It fails fast with
// a config error when no URL is set. In pool mode the pool is created here
// but connections are opened lazily.
func NewProvider(ctx context.Context, cfg *database.Config, log *logger.Logger) (*Provider, error) {
	if log == nil {
		log = logger.L()
	}
	ep, err := ParseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	p := &Provider{cfg: cfg, endpoint: ep, log: log}

	switch cfg.Mode {
	case database.ModePool:
		poolCfg, err := pgxpool.ParseConfig(ep.URL)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "invalid DATABASE_URL", err)
		}
		p.tune(poolCfg.ConnConfig)
		poolCfg.MaxConns = cfg.MaxConns
		poolCfg.MinConns = cfg.MinConns
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
		poolCfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
			return applySession(ctx, c, cfg.SessionStatements())
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, connectError(ep, err)
		}
		p.pool = pool

	case database.ModePerRequest, "":
		connCfg, err := pgx.ParseConfig(ep.URL)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConfig, "invalid DATABASE_URL", err)
		}
		p.tune(connCfg)
		p.connCfg = connCfg

	default:
		return nil, errs.New(errs.ErrKindConfig, "unknown database mode: "+string(cfg.Mode))
	}

	log.With().
		Str("host", ep.Host).
		Int("port", ep.Port).
		Str("mode", string(cfg.Mode)).
		Str("pooling", ep.Pooling.String()).
		Logger().
		Info("database provider ready")

	return p, nil
}

// tune applies timeouts and, for transaction pooling, disables everything
// that relies on server-side prepared statements.
func (p *Provider) tune(c *pgx.ConnConfig) {
	if p.cfg.ConnectTimeout > 0 {
		c.ConnectTimeout = p.cfg.ConnectTimeout
	}
	if p.endpoint.Pooling == PoolingTransaction {
		c.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		c.StatementCacheCapacity = 0
		c.DescriptionCacheCapacity = 0
	}
}

// Endpoint returns the parsed connection target.
func (p *Provider) Endpoint() *Endpoint {
	return p.endpoint
}

// Acquire yields a live connection with session settings applied.
func (p *Provider) Acquire(ctx context.Context) (database.Conn, error) {
	if p.pool != nil {
		c, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, connectError(p.endpoint, err)
		}
		return &conn{q: c, release: func(context.Context) error {
			c.Release()
			return nil
		}}, nil
	}

	c, err := pgx.ConnectConfig(ctx, p.connCfg)
	if err != nil {
		return nil, connectError(p.endpoint, err)
	}
	if err := applySession(ctx, c, p.cfg.SessionStatements()); err != nil {
		_ = c.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return &conn{q: c, release: c.Close}, nil
}

// Ping verifies the database is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	if p.pool != nil {
		if err := p.pool.Ping(ctx); err != nil {
			return connectError(p.endpoint, err)
		}
		return nil
	}
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))
	return c.Exec(ctx, "SELECT 1")
}

// Close drains the pool when there is one. Call when the application shuts down.
func (p *Provider) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func applySession(ctx context.Context, c *pgx.Conn, stmts []string) error {
	for _, s := range stmts {
		if _, err := c.Exec(ctx, s); err != nil {
			return mapError(err, "failed to apply session settings")
		}
	}
	return nil
}
