package adapters

import "context"

// DBAdapter defines the interface for database operations needed by the ledger.
type DBAdapter interface {
	// Query runs a read outside a transaction. Implementations may route it to a replica
	// when the context asks for eventual consistency.
	Query(ctx context.Context, query string) (DBRows, error)

	// BeginTx starts a READ COMMITTED transaction on the primary.
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx defines the interface for statements executed inside one transaction.
type DBTx interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
