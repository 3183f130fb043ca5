package postgresengine_test

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/loan-ledger-go/loanledger"
	. "github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
)

func Test_Factories_RejectNilConnections(t *testing.T) {
	testCases := []struct {
		name    string
		factory func() (*Ledger, error)
	}{
		{name: "pgx pool", factory: func() (*Ledger, error) { return NewLedgerFromPGXPool(nil) }},
		{name: "pgx pool with replica", factory: func() (*Ledger, error) { return NewLedgerFromPGXPoolAndReplica(nil, nil) }},
		{name: "sql.DB", factory: func() (*Ledger, error) { return NewLedgerFromSQLDB(nil) }},
		{name: "sql.DB with replica", factory: func() (*Ledger, error) { return NewLedgerFromSQLDBAndReplica(nil, nil) }},
		{name: "sqlx", factory: func() (*Ledger, error) { return NewLedgerFromSQLX(nil) }},
		{name: "sqlx with replica", factory: func() (*Ledger, error) { return NewLedgerFromSQLXAndReplica(nil, nil) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, err := tc.factory()

			assert.Nil(t, ledger)
			assert.ErrorIs(t, err, ErrNilDatabaseConnection)
		})
	}
}

func Test_Factories_AcceptANilReplica(t *testing.T) {
	// setup
	db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool, err := pgxpool.New(t.Context(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var nilPool *pgxpool.Pool

	// act
	fromSQL, sqlErr := NewLedgerFromSQLDBAndReplica(db, nil)
	fromSQLX, sqlxErr := NewLedgerFromSQLXAndReplica(sqlx.NewDb(db, "postgres"), nil)
	fromPGX, pgxErr := NewLedgerFromPGXPoolAndReplica(pool, nilPool)

	// assert
	assert.NoError(t, sqlErr)
	assert.NoError(t, sqlxErr)
	assert.NoError(t, pgxErr)
	assert.NotNil(t, fromSQL)
	assert.NotNil(t, fromSQLX)
	assert.NotNil(t, fromPGX)
}

func Test_Factories_ValidateTableNames(t *testing.T) {
	// setup
	db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	testCases := []struct {
		name        string
		option      Option
		expectedErr error
	}{
		{name: "empty titles table", option: WithTitlesTableName(""), expectedErr: ErrEmptyTableName},
		{name: "empty loans table", option: WithLoansTableName(""), expectedErr: ErrEmptyTableName},
		{name: "titles table with quote", option: WithTitlesTableName(`titles"; DROP TABLE x; --`), expectedErr: ErrInvalidTableName},
		{name: "loans table with upper case", option: WithLoansTableName("Loans"), expectedErr: ErrInvalidTableName},
		{name: "loans table starting with digit", option: WithLoansTableName("1loans"), expectedErr: ErrInvalidTableName},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ledger, factoryErr := NewLedgerFromSQLDB(db, tc.option)

			assert.Nil(t, ledger)
			assert.ErrorIs(t, factoryErr, tc.expectedErr)
		})
	}
}

func Test_SchemaStatements_UseTheConfiguredTableNames(t *testing.T) {
	// setup
	db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ledger, err := NewLedgerFromSQLDB(db, WithTitlesTableName("school_titles"), WithLoansTableName("school_loans"))
	require.NoError(t, err)

	// act
	statements := ledger.SchemaStatements()

	// assert
	require.NotEmpty(t, statements)
	for _, statement := range statements {
		assert.NotContains(t, statement, "{{")
		assert.NotContains(t, statement, ";\n")
	}

	assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS school_titles")
	assert.Contains(t, statements[1], "CREATE TABLE IF NOT EXISTS school_loans")
	assert.Contains(t, statements[1], "REFERENCES school_titles")
}
