package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
)

const driverName = "postgres"

// PGXPoolConfig creates a pgxpool.Config for dsn with the configured pool settings.
func PGXPoolConfig(dsn string, db DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	poolConfig.MaxConns = int32(db.MaxOpenConns) //nolint:gosec // validated to be a small positive number
	poolConfig.MinConns = int32(db.MinIdleConns) //nolint:gosec // validated to be a small positive number
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = db.ConnectTimeout

	return poolConfig, nil
}

// OpenPGXPool creates a pgx pool and checks that the database is reachable.
func OpenPGXPool(ctx context.Context, dsn string, db DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := PGXPoolConfig(dsn, db)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return pool, nil
}

// OpenSQLDB opens a *sql.DB through lib/pq and checks that the database is reachable.
func OpenSQLDB(ctx context.Context, dsn string, db DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	configureStdPool(sqlDB, db)

	if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return sqlDB, nil
}

// OpenSQLX opens a *sqlx.DB through lib/pq and checks that the database is reachable.
func OpenSQLX(ctx context.Context, dsn string, db DatabaseConfig) (*sqlx.DB, error) {
	sqlxDB, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	configureStdPool(sqlxDB.DB, db)

	if pingErr := sqlxDB.PingContext(ctx); pingErr != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return sqlxDB, nil
}

func configureStdPool(sqlDB *sql.DB, db DatabaseConfig) {
	sqlDB.SetMaxOpenConns(db.MaxOpenConns)
	sqlDB.SetMaxIdleConns(max(db.MinIdleConns, 1))
	sqlDB.SetConnMaxLifetime(db.MaxConnLifetime)
	sqlDB.SetConnMaxIdleTime(db.MaxConnIdleTime)
}

// Connections holds the open primary and optional replica connections of one adapter.
type Connections struct {
	adapter string
	closers []func()
	pingers []func(ctx context.Context) error

	newLedger func(options ...postgresengine.Option) (*postgresengine.Ledger, error)
}

// OpenConnections opens the primary and, if configured, the replica for the configured adapter.
func OpenConnections(ctx context.Context, db DatabaseConfig) (*Connections, error) {
	connections := &Connections{adapter: db.Adapter}

	var err error

	switch db.Adapter {
	case AdapterPGXPool:
		err = connections.openPGXPool(ctx, db)
	case AdapterSQLDB:
		err = connections.openSQLDB(ctx, db)
	case AdapterSQLX:
		err = connections.openSQLX(ctx, db)
	default:
		err = fmt.Errorf("%w: unknown database adapter %q", ErrInvalidConfig, db.Adapter)
	}

	if err != nil {
		connections.Close()
		return nil, err
	}

	return connections, nil
}

func (c *Connections) openPGXPool(ctx context.Context, db DatabaseConfig) error {
	primary, err := OpenPGXPool(ctx, db.DSN, db)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, primary.Close)
	c.pingers = append(c.pingers, primary.Ping)

	var replica *pgxpool.Pool
	if db.ReplicaDSN != "" {
		if replica, err = OpenPGXPool(ctx, db.ReplicaDSN, db); err != nil {
			return fmt.Errorf("replica: %w", err)
		}

		c.closers = append(c.closers, replica.Close)
		c.pingers = append(c.pingers, replica.Ping)
	}

	c.newLedger = func(options ...postgresengine.Option) (*postgresengine.Ledger, error) {
		if replica == nil {
			return postgresengine.NewLedgerFromPGXPool(primary, options...)
		}

		return postgresengine.NewLedgerFromPGXPoolAndReplica(primary, replica, options...)
	}

	return nil
}

func (c *Connections) openSQLDB(ctx context.Context, db DatabaseConfig) error {
	primary, err := OpenSQLDB(ctx, db.DSN, db)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func() { _ = primary.Close() })
	c.pingers = append(c.pingers, primary.PingContext)

	var replica *sql.DB
	if db.ReplicaDSN != "" {
		if replica, err = OpenSQLDB(ctx, db.ReplicaDSN, db); err != nil {
			return fmt.Errorf("replica: %w", err)
		}

		c.closers = append(c.closers, func() { _ = replica.Close() })
		c.pingers = append(c.pingers, replica.PingContext)
	}

	c.newLedger = func(options ...postgresengine.Option) (*postgresengine.Ledger, error) {
		if replica == nil {
			return postgresengine.NewLedgerFromSQLDB(primary, options...)
		}

		return postgresengine.NewLedgerFromSQLDBAndReplica(primary, replica, options...)
	}

	return nil
}

func (c *Connections) openSQLX(ctx context.Context, db DatabaseConfig) error {
	primary, err := OpenSQLX(ctx, db.DSN, db)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func() { _ = primary.Close() })
	c.pingers = append(c.pingers, primary.PingContext)

	var replica *sqlx.DB
	if db.ReplicaDSN != "" {
		if replica, err = OpenSQLX(ctx, db.ReplicaDSN, db); err != nil {
			return fmt.Errorf("replica: %w", err)
		}

		c.closers = append(c.closers, func() { _ = replica.Close() })
		c.pingers = append(c.pingers, replica.PingContext)
	}

	c.newLedger = func(options ...postgresengine.Option) (*postgresengine.Ledger, error) {
		if replica == nil {
			return postgresengine.NewLedgerFromSQLX(primary, options...)
		}

		return postgresengine.NewLedgerFromSQLXAndReplica(primary, replica, options...)
	}

	return nil
}

// Adapter returns the adapter name the connections were opened with.
func (c *Connections) Adapter() string {
	return c.adapter
}

// NewLedger creates a ledger on the open connections.
func (c *Connections) NewLedger(options ...postgresengine.Option) (*postgresengine.Ledger, error) {
	return c.newLedger(options...)
}

// Ping checks the primary and the replica.
func (c *Connections) Ping(ctx context.Context) error {
	for _, ping := range c.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the replica, then the primary.
func (c *Connections) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}

	c.closers = nil
}
