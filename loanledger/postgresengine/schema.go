package postgresengine

import (
	"context"
	_ "embed" // schema.sql
	"strings"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

const (
	schemaPlaceholderTitles = "{{titles}}"
	schemaPlaceholderLoans  = "{{loans}}"
	schemaStatementSep      = ";\n"
)

//go:embed schema.sql
var schemaTemplate string

// SchemaStatements returns the DDL for the configured table names, one statement per element.
// All statements are idempotent.
func (l *Ledger) SchemaStatements() []string {
	ddl := strings.NewReplacer(
		schemaPlaceholderTitles, l.titlesTable,
		schemaPlaceholderLoans, l.loansTable,
	).Replace(schemaTemplate)

	statements := make([]string, 0)
	for _, statement := range strings.Split(ddl, schemaStatementSep) {
		if statement = strings.TrimSpace(statement); statement != "" {
			statements = append(statements, statement)
		}
	}

	return statements
}

// CreateSchema creates the titles and loans tables with their constraints and indexes if they do not exist.
func (l *Ledger) CreateSchema(ctx context.Context) error {
	return l.inTx(ctx, func(tx adapters.DBTx) error {
		for _, statement := range l.SchemaStatements() {
			if _, err := l.exec(ctx, tx, logActionSchema, statement); err != nil {
				return err
			}
		}

		return nil
	})
}
