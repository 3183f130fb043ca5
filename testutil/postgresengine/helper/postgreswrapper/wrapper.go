package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
	"github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

const connectTimeout = 3 * time.Second

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetLedger() *postgresengine.Ledger
	LedgerWithOptions(t testing.TB, options ...postgresengine.Option) *postgresengine.Ledger
	TitlesTable() string
	LoansTable() string
	Exec(t testing.TB, query string)
	QueryInt(t testing.TB, query string) int64
	Close()
}

type tables struct {
	titles string
	loans  string
}

func (tb tables) TitlesTable() string { return tb.titles }

func (tb tables) LoansTable() string { return tb.loans }

func (tb tables) withTableOptions(options []postgresengine.Option) []postgresengine.Option {
	return append(
		[]postgresengine.Option{
			postgresengine.WithTitlesTableName(tb.titles),
			postgresengine.WithLoansTableName(tb.loans),
		},
		options...,
	)
}

func (tb tables) dropStatement() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", tb.loans, tb.titles)
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	tables
	pool   *pgxpool.Pool
	ledger *postgresengine.Ledger
}

func (e *PGXPoolWrapper) GetLedger() *postgresengine.Ledger {
	return e.ledger
}

// LedgerWithOptions creates a second ledger on the same connection and tables.
func (e *PGXPoolWrapper) LedgerWithOptions(t testing.TB, options ...postgresengine.Option) *postgresengine.Ledger {
	ledger, err := postgresengine.NewLedgerFromPGXPool(e.pool, e.withTableOptions(options)...)
	require.NoError(t, err, "error creating ledger")

	return ledger
}

func (e *PGXPoolWrapper) Exec(t testing.TB, query string) {
	_, err := e.pool.Exec(context.Background(), query)
	require.NoError(t, err, "error executing raw sql in test")
}

func (e *PGXPoolWrapper) QueryInt(t testing.TB, query string) int64 {
	var result int64
	err := e.pool.QueryRow(context.Background(), query).Scan(&result)
	require.NoError(t, err, "error querying raw sql in test")

	return result
}

func (e *PGXPoolWrapper) Close() {
	_, _ = e.pool.Exec(context.Background(), e.dropStatement()) // best effort
	e.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	tables
	db     *sql.DB
	ledger *postgresengine.Ledger
}

func (e *SQLDBWrapper) GetLedger() *postgresengine.Ledger {
	return e.ledger
}

// LedgerWithOptions creates a second ledger on the same connection and tables.
func (e *SQLDBWrapper) LedgerWithOptions(t testing.TB, options ...postgresengine.Option) *postgresengine.Ledger {
	ledger, err := postgresengine.NewLedgerFromSQLDB(e.db, e.withTableOptions(options)...)
	require.NoError(t, err, "error creating ledger")

	return ledger
}

func (e *SQLDBWrapper) Exec(t testing.TB, query string) {
	_, err := e.db.Exec(query)
	require.NoError(t, err, "error executing raw sql in test")
}

func (e *SQLDBWrapper) QueryInt(t testing.TB, query string) int64 {
	var result int64
	err := e.db.QueryRow(query).Scan(&result)
	require.NoError(t, err, "error querying raw sql in test")

	return result
}

func (e *SQLDBWrapper) Close() {
	_, _ = e.db.Exec(e.dropStatement()) // best effort
	_ = e.db.Close()                    // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	tables
	db     *sqlx.DB
	ledger *postgresengine.Ledger
}

func (e *SQLXWrapper) GetLedger() *postgresengine.Ledger {
	return e.ledger
}

// LedgerWithOptions creates a second ledger on the same connection and tables.
func (e *SQLXWrapper) LedgerWithOptions(t testing.TB, options ...postgresengine.Option) *postgresengine.Ledger {
	ledger, err := postgresengine.NewLedgerFromSQLX(e.db, e.withTableOptions(options)...)
	require.NoError(t, err, "error creating ledger")

	return ledger
}

func (e *SQLXWrapper) Exec(t testing.TB, query string) {
	_, err := e.db.Exec(query)
	require.NoError(t, err, "error executing raw sql in test")
}

func (e *SQLXWrapper) QueryInt(t testing.TB, query string) int64 {
	var result int64
	err := e.db.Get(&result, query)
	require.NoError(t, err, "error querying raw sql in test")

	return result
}

func (e *SQLXWrapper) Close() {
	_, _ = e.db.Exec(e.dropStatement()) // best effort
	_ = e.db.Close()                    // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE with a ledger on fresh tables.
// The tables are dropped and the connections closed when the test ends.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	tb := uniqueTables()
	allOptions := tb.withTableOptions(options)

	var wrapper Wrapper

	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch engineTypeFromEnv {
	case typePGXPool, "":
		pool, err := config.OpenPGXPool(ctx, config.PostgresTestDSN())
		if err != nil {
			t.Skipf("postgres not reachable, skipping: %v", err)
		}

		ledger, err := postgresengine.NewLedgerFromPGXPool(pool, allOptions...)
		require.NoError(t, err, "error creating ledger")

		wrapper = &PGXPoolWrapper{tables: tb, pool: pool, ledger: ledger}

	case typeSQLDB:
		db, err := config.OpenSQLDB(ctx, config.PostgresTestDSN())
		if err != nil {
			t.Skipf("postgres not reachable, skipping: %v", err)
		}

		ledger, err := postgresengine.NewLedgerFromSQLDB(db, allOptions...)
		require.NoError(t, err, "error creating ledger")

		wrapper = &SQLDBWrapper{tables: tb, db: db, ledger: ledger}

	case typeSQLXDB:
		db, err := config.OpenSQLX(ctx, config.PostgresTestDSN())
		if err != nil {
			t.Skipf("postgres not reachable, skipping: %v", err)
		}

		ledger, err := postgresengine.NewLedgerFromSQLX(db, allOptions...)
		require.NoError(t, err, "error creating ledger")

		wrapper = &SQLXWrapper{tables: tb, db: db, ledger: ledger}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}

	t.Cleanup(wrapper.Close)

	require.NoError(t, wrapper.GetLedger().CreateSchema(context.Background()), "error creating schema")

	return wrapper
}

func uniqueTables() tables {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return tables{
		titles: "titles_" + suffix,
		loans:  "loans_" + suffix,
	}
}
