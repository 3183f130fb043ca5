package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

const (
	colID               = "id"
	colISBN             = "isbn"
	colName             = "name"
	colAuthor           = "author"
	colEdition          = "edition"
	colPublisher        = "publisher"
	colPublishingYear   = "publishing_year"
	colGradeCohort      = "grade_cohort"
	colTotalCopies      = "total_copies"
	colAvailableCopies  = "available_copies"
	colWithdrawn        = "withdrawn"
	colCreatedAt        = "created_at"
	colBorrowerID       = "borrower_id"
	colBorrowerGrade    = "borrower_grade"
	colTitleID          = "title_id"
	colExpectedReturnAt = "expected_return_at"
	colActualReturnAt   = "actual_return_at"
	colStatus           = "status"
	colLoanKind         = "loan_kind"
	colNotes            = "notes"
	aliasRecentReturned = "recent_returned"
	aliasCombined       = "combined"
	exprAdjustStock     = "? + ?"
)

var (
	titleColumns = []any{
		colID, colISBN, colName, colAuthor, colEdition, colPublisher, colPublishingYear,
		colGradeCohort, colTotalCopies, colAvailableCopies, colWithdrawn, colCreatedAt,
	}

	loanColumns = []any{
		colID, colBorrowerID, colBorrowerGrade, colTitleID, colCreatedAt, colExpectedReturnAt,
		colActualReturnAt, colStatus, colLoanKind, colNotes,
	}
)

type sqlQueryString = string

// sqlBuilder is implemented by goqu's select, insert and update datasets.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// toSQL renders a dataset with interpolated values.
func toSQL(ds sqlBuilder) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := ds.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(loanledger.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

/***** titles *****/

func (l *Ledger) buildSelectTitleQuery(titleID uuid.UUID, forUpdate bool) (sqlQueryString, error) {
	selectStmt := builder().
		From(l.titlesTable).
		Select(titleColumns...).
		Where(goqu.C(colID).Eq(titleID.String()))

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	return toSQL(selectStmt)
}

func (l *Ledger) buildInsertTitleQuery(title loanledger.Title) (sqlQueryString, error) {
	insertStmt := builder().
		Insert(l.titlesTable).
		Rows(goqu.Record{
			colID:              title.ID.String(),
			colISBN:            title.ISBN,
			colName:            title.Name,
			colAuthor:          title.Author,
			colEdition:         title.Edition,
			colPublisher:       title.Publisher,
			colPublishingYear:  title.PublishingYear,
			colGradeCohort:     title.GradeCohort,
			colTotalCopies:     title.TotalCopies,
			colAvailableCopies: title.AvailableCopies,
			colWithdrawn:       title.Withdrawn,
			colCreatedAt:       title.CreatedAt,
		})

	return toSQL(insertStmt)
}

func (l *Ledger) buildWithdrawTitleQuery(titleID uuid.UUID) (sqlQueryString, error) {
	updateStmt := builder().
		Update(l.titlesTable).
		Set(goqu.Record{colWithdrawn: true}).
		Where(goqu.C(colID).Eq(titleID.String()))

	return toSQL(updateStmt)
}

// buildAdjustStockQuery changes available_copies relative to its locked value.
// The CHECK constraint on the table rejects results outside [0, total_copies].
func (l *Ledger) buildAdjustStockQuery(titleID uuid.UUID, delta int) (sqlQueryString, error) {
	updateStmt := builder().
		Update(l.titlesTable).
		Set(goqu.Record{colAvailableCopies: goqu.L(exprAdjustStock, goqu.C(colAvailableCopies), delta)}).
		Where(goqu.C(colID).Eq(titleID.String()))

	return toSQL(updateStmt)
}

/***** loans *****/

func (l *Ledger) buildSelectLoanQuery(loanID uuid.UUID, forUpdate bool) (sqlQueryString, error) {
	selectStmt := builder().
		From(l.loansTable).
		Select(loanColumns...).
		Where(goqu.C(colID).Eq(loanID.String()))

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	return toSQL(selectStmt)
}

// nullableText stores an empty string as NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func (l *Ledger) buildInsertLoanQuery(loan loanledger.Loan) (sqlQueryString, error) {
	insertStmt := builder().
		Insert(l.loansTable).
		Rows(goqu.Record{
			colID:               loan.ID.String(),
			colBorrowerID:       loan.BorrowerID.String(),
			colBorrowerGrade:    nullableText(loan.BorrowerGrade),
			colTitleID:          loan.TitleID.String(),
			colCreatedAt:        loan.CreatedAt,
			colExpectedReturnAt: loan.ExpectedReturnAt,
			colStatus:           loan.Status.String(),
			colLoanKind:         string(loan.Kind),
			colNotes:            loan.Notes,
		})

	return toSQL(insertStmt)
}

func (l *Ledger) buildUpdateLoanQuery(loanID uuid.UUID, changes goqu.Record) (sqlQueryString, error) {
	updateStmt := builder().
		Update(l.loansTable).
		Set(changes).
		Where(goqu.C(colID).Eq(loanID.String()))

	return toSQL(updateStmt)
}

// buildSweepQuery reclassifies every active loan that is past due at now. It touches only the status column.
func (l *Ledger) buildSweepQuery(now time.Time) (sqlQueryString, error) {
	updateStmt := builder().
		Update(l.loansTable).
		Set(goqu.Record{colStatus: loanledger.StatusOverdue.String()}).
		Where(
			goqu.C(colStatus).Eq(loanledger.StatusActive.String()),
			goqu.C(colExpectedReturnAt).Lt(now),
		)

	return toSQL(updateStmt)
}

// buildSelectLoansQuery builds the listing for a LoanFilter, newest first.
//
// With a returned cap, the returned loans are limited to the most recently returned ones in their own
// subquery and combined with the non-returned loans by UNION. The two sets are disjoint by status.
func (l *Ledger) buildSelectLoansQuery(filter loanledger.LoanFilter) (sqlQueryString, error) {
	common := l.loanFilterExpressions(filter)
	order := []exp.OrderedExpression{goqu.C(colCreatedAt).Desc(), goqu.C(colID).Desc()}

	if !filter.HasCappedReturned() {
		selectStmt := builder().
			From(l.loansTable).
			Select(loanColumns...).
			Where(common...).
			Order(order...)

		if statuses := filter.Statuses(); len(statuses) > 0 {
			selectStmt = selectStmt.Where(goqu.C(colStatus).In(statusNames(statuses)))
		}

		return toSQL(selectStmt)
	}

	recentReturnedStmt := builder().
		From(l.loansTable).
		Select(loanColumns...).
		Where(common...).
		Where(goqu.C(colStatus).Eq(loanledger.StatusReturned.String())).
		Order(goqu.C(colActualReturnAt).Desc()).
		Limit(uint(filter.CapReturned()))

	returnedStmt := builder().
		From(recentReturnedStmt.As(aliasRecentReturned)).
		Select(loanColumns...)

	combinedStmt := returnedStmt
	if nonReturned := filter.NonReturnedStatuses(); len(nonReturned) > 0 {
		nonReturnedStmt := builder().
			From(l.loansTable).
			Select(loanColumns...).
			Where(common...).
			Where(goqu.C(colStatus).In(statusNames(nonReturned)))

		combinedStmt = nonReturnedStmt.Union(returnedStmt)
	}

	selectStmt := builder().
		From(combinedStmt.As(aliasCombined)).
		Select(loanColumns...).
		Order(order...)

	return toSQL(selectStmt)
}

func (l *Ledger) loanFilterExpressions(filter loanledger.LoanFilter) []exp.Expression {
	expressions := make([]exp.Expression, 0)

	if filter.GradeCohort() != "" {
		expressions = append(expressions, goqu.C(colBorrowerGrade).Eq(filter.GradeCohort()))
	}

	if filter.BorrowerID() != uuid.Nil {
		expressions = append(expressions, goqu.C(colBorrowerID).Eq(filter.BorrowerID().String()))
	}

	if filter.TitleID() != uuid.Nil {
		expressions = append(expressions, goqu.C(colTitleID).Eq(filter.TitleID().String()))
	}

	if !filter.CreatedFrom().IsZero() {
		expressions = append(expressions, goqu.C(colCreatedAt).Gte(filter.CreatedFrom()))
	}

	if !filter.CreatedUntil().IsZero() {
		expressions = append(expressions, goqu.C(colCreatedAt).Lte(filter.CreatedUntil()))
	}

	return expressions
}

func statusNames(statuses []loanledger.Status) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.String())
	}

	return names
}

/***** scanning *****/

type titleRow struct {
	id              uuid.UUID
	isbn            string
	name            string
	author          string
	edition         string
	publisher       string
	publishingYear  int64
	gradeCohort     string
	totalCopies     int
	availableCopies int
	withdrawn       bool
	createdAt       time.Time
}

func (r *titleRow) destinations() []any {
	return []any{
		&r.id, &r.isbn, &r.name, &r.author, &r.edition, &r.publisher, &r.publishingYear,
		&r.gradeCohort, &r.totalCopies, &r.availableCopies, &r.withdrawn, &r.createdAt,
	}
}

func (r *titleRow) toTitle() loanledger.Title {
	return loanledger.Title{
		ID:              r.id,
		ISBN:            r.isbn,
		Name:            r.name,
		Author:          r.author,
		Edition:         r.edition,
		Publisher:       r.publisher,
		PublishingYear:  uint(max(r.publishingYear, 0)),
		GradeCohort:     r.gradeCohort,
		TotalCopies:     r.totalCopies,
		AvailableCopies: r.availableCopies,
		Withdrawn:       r.withdrawn,
		CreatedAt:       r.createdAt.UTC(),
	}
}

type loanRow struct {
	id               uuid.UUID
	borrowerID       uuid.UUID
	borrowerGrade    *string
	titleID          uuid.UUID
	createdAt        time.Time
	expectedReturnAt time.Time
	actualReturnAt   *time.Time
	status           string
	loanKind         string
	notes            string
}

func (r *loanRow) destinations() []any {
	return []any{
		&r.id, &r.borrowerID, &r.borrowerGrade, &r.titleID, &r.createdAt, &r.expectedReturnAt,
		&r.actualReturnAt, &r.status, &r.loanKind, &r.notes,
	}
}

func (r *loanRow) toLoan() (loanledger.Loan, error) {
	status, statusErr := loanledger.ParseStatus(r.status)
	if statusErr != nil {
		return loanledger.Loan{}, errors.Join(loanledger.ErrScanningDBRowFailed, statusErr)
	}

	kind, kindErr := loanledger.ParseLoanKind(r.loanKind)
	if kindErr != nil {
		return loanledger.Loan{}, errors.Join(loanledger.ErrScanningDBRowFailed, kindErr)
	}

	var actualReturnAt *time.Time
	if r.actualReturnAt != nil {
		utc := r.actualReturnAt.UTC()
		actualReturnAt = &utc
	}

	var borrowerGrade string
	if r.borrowerGrade != nil {
		borrowerGrade = *r.borrowerGrade
	}

	return loanledger.Loan{
		ID:               r.id,
		BorrowerID:       r.borrowerID,
		BorrowerGrade:    borrowerGrade,
		TitleID:          r.titleID,
		CreatedAt:        r.createdAt.UTC(),
		ExpectedReturnAt: r.expectedReturnAt.UTC(),
		ActualReturnAt:   actualReturnAt,
		Status:           status,
		Kind:             kind,
		Notes:            r.notes,
	}, nil
}

// scanTitles reads all rows and closes them.
func (l *Ledger) scanTitles(ctx context.Context, rows adapters.DBRows) (loanledger.Titles, error) {
	defer l.closeRows(ctx, rows)

	titles := make(loanledger.Titles, 0)
	for rows.Next() {
		row := titleRow{}
		if scanErr := rows.Scan(row.destinations()...); scanErr != nil {
			l.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(loanledger.ErrScanningDBRowFailed, scanErr)
		}

		titles = append(titles, row.toTitle())
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		l.logError(ctx, logMsgDBQueryFailed, rowsErr)
		return nil, wrapDBError(rowsErr)
	}

	return titles, nil
}

// scanLoans reads all rows and closes them.
func (l *Ledger) scanLoans(ctx context.Context, rows adapters.DBRows) (loanledger.Loans, error) {
	defer l.closeRows(ctx, rows)

	loans := make(loanledger.Loans, 0)
	for rows.Next() {
		row := loanRow{}
		if scanErr := rows.Scan(row.destinations()...); scanErr != nil {
			l.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(loanledger.ErrScanningDBRowFailed, scanErr)
		}

		loan, convertErr := row.toLoan()
		if convertErr != nil {
			l.logError(ctx, logMsgScanRowFailed, convertErr, logAttrLoanID, row.id.String())
			return nil, convertErr
		}

		loans = append(loans, loan)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		l.logError(ctx, logMsgDBQueryFailed, rowsErr)
		return nil, wrapDBError(rowsErr)
	}

	return loans, nil
}

/***** locked reads inside a transaction *****/

// lockTitle reads the title row with SELECT ... FOR UPDATE.
func (l *Ledger) lockTitle(ctx context.Context, tx adapters.DBTx, titleID uuid.UUID) (loanledger.Title, error) {
	sqlQuery, buildErr := l.buildSelectTitleQuery(titleID, true)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return loanledger.Title{}, buildErr
	}

	rows, queryErr := l.queryTx(ctx, tx, logActionLockTitle, sqlQuery)
	if queryErr != nil {
		return loanledger.Title{}, queryErr
	}

	titles, scanErr := l.scanTitles(ctx, rows)
	if scanErr != nil {
		return loanledger.Title{}, scanErr
	}

	if len(titles) == 0 {
		return loanledger.Title{}, loanledger.ErrTitleNotFound
	}

	return titles[0], nil
}

// lockLoan reads the loan row with SELECT ... FOR UPDATE.
func (l *Ledger) lockLoan(ctx context.Context, tx adapters.DBTx, loanID uuid.UUID) (loanledger.Loan, error) {
	sqlQuery, buildErr := l.buildSelectLoanQuery(loanID, true)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return loanledger.Loan{}, buildErr
	}

	rows, queryErr := l.queryTx(ctx, tx, logActionLockLoan, sqlQuery)
	if queryErr != nil {
		return loanledger.Loan{}, queryErr
	}

	loans, scanErr := l.scanLoans(ctx, rows)
	if scanErr != nil {
		return loanledger.Loan{}, scanErr
	}

	if len(loans) == 0 {
		return loanledger.Loan{}, loanledger.ErrLoanNotFound
	}

	return loans[0], nil
}

// adjustStock changes available_copies of an already locked title by delta.
func (l *Ledger) adjustStock(ctx context.Context, tx adapters.DBTx, titleID uuid.UUID, delta int) error {
	sqlQuery, buildErr := l.buildAdjustStockQuery(titleID, delta)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return buildErr
	}

	rowsAffected, execErr := l.exec(ctx, tx, logActionAdjustStock, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return loanledger.ErrTitleNotFound
	}

	return nil
}

// updateLoan writes changes to an already locked loan.
func (l *Ledger) updateLoan(ctx context.Context, tx adapters.DBTx, loanID uuid.UUID, changes goqu.Record) error {
	sqlQuery, buildErr := l.buildUpdateLoanQuery(loanID, changes)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return buildErr
	}

	rowsAffected, execErr := l.exec(ctx, tx, logActionUpdateLoan, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return loanledger.ErrLoanNotFound
	}

	return nil
}
