package httpapi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/loan-ledger-go/internal/httpapi"
	"github.com/AntonStoeckl/loan-ledger-go/internal/shell"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper"
)

// ledgerFake implements httpapi.Ledger. Unset functions fail the call with errNotStubbed.
type ledgerFake struct {
	addTitle       func(ctx context.Context, params loanledger.NewTitleParams) (loanledger.Title, error)
	getTitle       func(ctx context.Context, titleID uuid.UUID) (loanledger.Title, error)
	withdrawTitle  func(ctx context.Context, titleID uuid.UUID) error
	createLoan     func(ctx context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error)
	getByID        func(ctx context.Context, loanID uuid.UUID) (loanledger.Loan, error)
	getByBorrower  func(ctx context.Context, borrowerID uuid.UUID) (loanledger.Loans, error)
	getAll         func(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error)
	sweepOverdue   func(ctx context.Context) (int64, error)
	registerReturn func(ctx context.Context, loanID uuid.UUID) (loanledger.ReturnResult, error)
	approve        func(ctx context.Context, loanID uuid.UUID) (bool, error)
	cancel         func(ctx context.Context, loanID uuid.UUID, reason string) (bool, error)
}

var errNotStubbed = errors.New("not stubbed")

func (f *ledgerFake) AddTitle(ctx context.Context, params loanledger.NewTitleParams) (loanledger.Title, error) {
	if f.addTitle == nil {
		return loanledger.Title{}, errNotStubbed
	}
	return f.addTitle(ctx, params)
}

func (f *ledgerFake) GetTitle(ctx context.Context, titleID uuid.UUID) (loanledger.Title, error) {
	if f.getTitle == nil {
		return loanledger.Title{}, errNotStubbed
	}
	return f.getTitle(ctx, titleID)
}

func (f *ledgerFake) WithdrawTitle(ctx context.Context, titleID uuid.UUID) error {
	if f.withdrawTitle == nil {
		return errNotStubbed
	}
	return f.withdrawTitle(ctx, titleID)
}

func (f *ledgerFake) CreateLoan(ctx context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error) {
	if f.createLoan == nil {
		return uuid.Nil, errNotStubbed
	}
	return f.createLoan(ctx, params)
}

func (f *ledgerFake) GetByID(ctx context.Context, loanID uuid.UUID) (loanledger.Loan, error) {
	if f.getByID == nil {
		return loanledger.Loan{}, errNotStubbed
	}
	return f.getByID(ctx, loanID)
}

func (f *ledgerFake) GetByBorrower(ctx context.Context, borrowerID uuid.UUID) (loanledger.Loans, error) {
	if f.getByBorrower == nil {
		return nil, errNotStubbed
	}
	return f.getByBorrower(ctx, borrowerID)
}

func (f *ledgerFake) GetAll(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error) {
	if f.getAll == nil {
		return nil, errNotStubbed
	}
	return f.getAll(ctx, filter)
}

func (f *ledgerFake) SweepOverdue(ctx context.Context) (int64, error) {
	if f.sweepOverdue == nil {
		return 0, errNotStubbed
	}
	return f.sweepOverdue(ctx)
}

func (f *ledgerFake) RegisterReturn(ctx context.Context, loanID uuid.UUID) (loanledger.ReturnResult, error) {
	if f.registerReturn == nil {
		return loanledger.ReturnResult{}, errNotStubbed
	}
	return f.registerReturn(ctx, loanID)
}

func (f *ledgerFake) Approve(ctx context.Context, loanID uuid.UUID) (bool, error) {
	if f.approve == nil {
		return false, errNotStubbed
	}
	return f.approve(ctx, loanID)
}

func (f *ledgerFake) Cancel(ctx context.Context, loanID uuid.UUID, reason string) (bool, error) {
	if f.cancel == nil {
		return false, errNotStubbed
	}
	return f.cancel(ctx, loanID, reason)
}

var _ httpapi.Ledger = (*ledgerFake)(nil)

func givenServer(ledger *ledgerFake, options ...httpapi.Option) *httpapi.Server {
	defaults := []httpapi.Option{
		httpapi.WithClock(helper.NewFakeClock(helper.FixtureStartTime)),
		httpapi.WithRetryOptions(shell.WithBaseDelay(time.Millisecond), shell.WithJitterFactor(0)),
	}

	return httpapi.NewServer(ledger, append(defaults, options...)...)
}

func serve(server http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)

	return recorder
}

func field(t *testing.T, recorder *httptest.ResponseRecorder, path ...any) jsoniter.Any {
	t.Helper()

	value := jsoniter.Get(recorder.Body.Bytes(), path...)
	require.NoError(t, value.LastError(), "response body: %s", recorder.Body.String())

	return value
}

func fixtureLoan(status loanledger.Status) loanledger.Loan {
	return loanledger.Loan{
		ID:               uuid.New(),
		BorrowerID:       uuid.New(),
		BorrowerGrade:    "grade-10",
		TitleID:          uuid.New(),
		CreatedAt:        helper.FixtureStartTime,
		ExpectedReturnAt: helper.FixtureStartTime.AddDate(0, 0, 14),
		Status:           status,
		Kind:             loanledger.LoanKindDays,
		Notes:            "fixture loan",
	}
}

func Test_Healthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := givenServer(&ledgerFake{}, httpapi.WithHealthCheck(func(context.Context) error { return nil }))

		recorder := serve(server, http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "ok", field(t, recorder, "data", "status").ToString())
	})

	t.Run("database unreachable", func(t *testing.T) {
		server := givenServer(&ledgerFake{}, httpapi.WithHealthCheck(func(context.Context) error {
			return errors.New("connection refused")
		}))

		recorder := serve(server, http.MethodGet, "/healthz", "")

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		assert.Equal(t, "unhealthy", field(t, recorder, "data", "status").ToString())
		assert.False(t, field(t, recorder, "success").ToBool())
	})
}

func Test_AddTitle(t *testing.T) {
	// setup
	var received loanledger.NewTitleParams
	titleID := uuid.New()
	ledger := &ledgerFake{
		addTitle: func(_ context.Context, params loanledger.NewTitleParams) (loanledger.Title, error) {
			received = params
			return loanledger.Title{ID: titleID, ISBN: params.ISBN, Name: params.Name, TotalCopies: params.TotalCopies, AvailableCopies: params.TotalCopies}, nil
		},
	}

	// act
	recorder := serve(givenServer(ledger), http.MethodPost, "/titles",
		`{"isbn":"978-1-098-10013-1","name":"Learning Domain-Driven Design","grade_cohort":"grade-10","total_copies":3}`)

	// assert
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "/titles/"+titleID.String(), recorder.Header().Get("Location"))
	assert.Equal(t, 3, received.TotalCopies)
	assert.Equal(t, "grade-10", received.GradeCohort)
	assert.Equal(t, 3, field(t, recorder, "data", "available_copies").ToInt())
	assert.True(t, field(t, recorder, "success").ToBool())
}

func Test_AddTitle_RejectsInvalidBodies(t *testing.T) {
	testCases := []struct {
		description   string
		body          string
		expectedField string
	}{
		{"missing total copies", `{"isbn":"1","name":"n"}`, "total_copies"},
		{"negative total copies", `{"isbn":"1","name":"n","total_copies":-1}`, "total_copies"},
		{"missing name", `{"isbn":"1","total_copies":1}`, "name"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			recorder := serve(givenServer(&ledgerFake{}), http.MethodPost, "/titles", tc.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.NotEmpty(t, field(t, recorder, "details", tc.expectedField).ToString())
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		recorder := serve(givenServer(&ledgerFake{}), http.MethodPost, "/titles", `{"isbn":"1","name":"n","total_copies":1,"color":"red"}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("not json", func(t *testing.T) {
		recorder := serve(givenServer(&ledgerFake{}), http.MethodPost, "/titles", `isbn=1`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func Test_GetTitle_And_WithdrawTitle(t *testing.T) {
	// setup
	titleID := uuid.New()
	withdrawn := false
	ledger := &ledgerFake{
		getTitle: func(_ context.Context, id uuid.UUID) (loanledger.Title, error) {
			if id != titleID {
				return loanledger.Title{}, loanledger.ErrTitleNotFound
			}
			return loanledger.Title{ID: id, Withdrawn: withdrawn}, nil
		},
		withdrawTitle: func(context.Context, uuid.UUID) error {
			withdrawn = true
			return nil
		},
	}
	server := givenServer(ledger)

	// act + assert
	recorder := serve(server, http.MethodDelete, "/titles/"+titleID.String(), "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = serve(server, http.MethodGet, "/titles/"+titleID.String(), "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, field(t, recorder, "data", "withdrawn").ToBool())

	recorder = serve(server, http.MethodGet, "/titles/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, loanledger.ErrTitleNotFound.Error(), field(t, recorder, "error").ToString())

	recorder = serve(server, http.MethodGet, "/titles/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func Test_CreateLoan_ComputesTheDueDateFromDurationAndUnit(t *testing.T) {
	testCases := []struct {
		unit        string
		duration    int
		expectedDue time.Time
	}{
		{"days", 14, helper.FixtureStartTime.AddDate(0, 0, 14)},
		{"hours", 36, helper.FixtureStartTime.Add(36 * time.Hour)},
	}

	for _, tc := range testCases {
		t.Run(tc.unit, func(t *testing.T) {
			// setup
			var received loanledger.CreateLoanParams
			loanID := uuid.New()
			ledger := &ledgerFake{
				createLoan: func(_ context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error) {
					received = params
					return loanID, nil
				},
			}

			titleID, borrowerID := uuid.New(), uuid.New()
			body := `{"title_id":"` + titleID.String() + `","borrower_id":"` + borrowerID.String() +
				`","borrower_grade":"grade-7","duration":` + strconv.Itoa(tc.duration) +
				`,"unit":"` + tc.unit + `","notes":"summer reading"}`

			// act
			recorder := serve(givenServer(ledger), http.MethodPost, "/loans", body)

			// assert
			assert.Equal(t, http.StatusCreated, recorder.Code)
			assert.Equal(t, loanID.String(), field(t, recorder, "data", "id").ToString())
			assert.Equal(t, titleID, received.TitleID)
			assert.Equal(t, borrowerID, received.BorrowerID)
			assert.Equal(t, "grade-7", received.BorrowerGrade)
			assert.Equal(t, loanledger.LoanKind(tc.unit), received.Kind)
			assert.True(t, tc.expectedDue.Equal(received.ExpectedReturnAt))
			assert.Equal(t, "summer reading", received.Notes)
		})
	}
}

func Test_CreateLoan_MapsLedgerErrors(t *testing.T) {
	testCases := []struct {
		description    string
		err            error
		expectedStatus int
	}{
		{"out of stock", loanledger.ErrOutOfStock, http.StatusConflict},
		{"withdrawn", loanledger.ErrTitleWithdrawn, http.StatusConflict},
		{"title not found", loanledger.ErrTitleNotFound, http.StatusNotFound},
		{"invalid due date", loanledger.ErrInvalidDueDate, http.StatusBadRequest},
		{"unexpected", errors.Join(loanledger.ErrQueryingFailed, errors.New("syntax error")), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			ledger := &ledgerFake{
				createLoan: func(context.Context, loanledger.CreateLoanParams) (uuid.UUID, error) {
					return uuid.Nil, tc.err
				},
			}
			body := `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() +
				`","borrower_grade":"grade-7","duration":7,"unit":"days"}`

			recorder := serve(givenServer(ledger), http.MethodPost, "/loans", body)

			assert.Equal(t, tc.expectedStatus, recorder.Code)
			assert.NotContains(t, recorder.Body.String(), "syntax error")
		})
	}
}

func Test_CreateLoan_AcceptsABorrowerWithoutGrade(t *testing.T) {
	// setup
	var received loanledger.CreateLoanParams
	ledger := &ledgerFake{
		createLoan: func(_ context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error) {
			received = params
			return uuid.New(), nil
		},
	}
	body := `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() + `","duration":3,"unit":"days"}`

	// act
	recorder := serve(givenServer(ledger), http.MethodPost, "/loans", body)

	// assert
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Empty(t, received.BorrowerGrade)
}

func Test_CreateLoan_IsNotRetried_When_TheCommitOutcomeIsUnknown(t *testing.T) {
	// setup
	var calls atomic.Int32
	logHandler := helper.NewLogHandlerSpy(false)
	ledger := &ledgerFake{
		createLoan: func(context.Context, loanledger.CreateLoanParams) (uuid.UUID, error) {
			calls.Add(1)
			return uuid.Nil, errors.Join(loanledger.ErrCommitOutcomeUnknown, errors.New("connection reset by peer"))
		},
	}
	server := givenServer(ledger,
		httpapi.WithRetryOptions(shell.WithMaxAttempts(3), shell.WithBaseDelay(time.Millisecond)),
		httpapi.WithLogger(slog.New(logHandler)),
	)
	body := `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() +
		`","borrower_grade":"grade-7","duration":7,"unit":"days"}`

	// act
	recorder := serve(server, http.MethodPost, "/loans", body)

	// assert
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Empty(t, recorder.Header().Get("Retry-After"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, recorder.Body.String(), "outcome of the request is unknown")
	assert.NotContains(t, recorder.Body.String(), "connection reset")
	assert.True(t, logHandler.HasWarnLogWithMessage("http request").WithAttribute("status", "503").Assert())
}

func Test_CreateLoan_RejectsInvalidBodies(t *testing.T) {
	testCases := []struct {
		description   string
		body          string
		expectedField string
	}{
		{"bad title id", `{"title_id":"x","borrower_id":"` + uuid.NewString() + `","borrower_grade":"g","duration":1,"unit":"days"}`, "title_id"},
		{"zero duration", `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() + `","borrower_grade":"g","duration":0,"unit":"days"}`, "duration"},
		{"unknown unit", `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() + `","borrower_grade":"g","duration":1,"unit":"weeks"}`, "unit"},
		{"grade too long", `{"title_id":"` + uuid.NewString() + `","borrower_id":"` + uuid.NewString() + `","borrower_grade":"` + strings.Repeat("g", 65) + `","duration":1,"unit":"days"}`, "borrower_grade"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			recorder := serve(givenServer(&ledgerFake{}), http.MethodPost, "/loans", tc.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.NotEmpty(t, field(t, recorder, "details", tc.expectedField).ToString())
		})
	}
}

func Test_TransientFailures_AreRetried_ThenReportedAsUnavailable(t *testing.T) {
	// setup
	var calls atomic.Int32
	metrics := helper.NewMetricsCollectorSpy(true)
	logHandler := helper.NewLogHandlerSpy(false)
	ledger := &ledgerFake{
		sweepOverdue: func(context.Context) (int64, error) {
			calls.Add(1)
			return 0, errors.Join(loanledger.ErrTransactionFailed, errors.New("deadlock detected"))
		},
	}
	server := givenServer(ledger,
		httpapi.WithRetryOptions(shell.WithMaxAttempts(3), shell.WithBaseDelay(time.Millisecond)),
		httpapi.WithRetryMetrics(metrics),
		httpapi.WithLogger(slog.New(logHandler)),
	)

	// act
	recorder := serve(server, http.MethodPost, "/sweeps", "")

	// assert
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Equal(t, "1", recorder.Header().Get("Retry-After"))
	assert.EqualValues(t, 3, calls.Load())
	assert.NotContains(t, recorder.Body.String(), "deadlock")
	assert.True(t, metrics.HasCounterRecordForMetric(shell.MaxRetriesReachedMetric).WithOperation("sweep_overdue").Assert())
	assert.True(t, logHandler.HasWarnLogWithMessage("http request").WithAttribute("status", "503").Assert())
}

func Test_TransientFailure_RecoversOnRetry(t *testing.T) {
	// setup
	var calls atomic.Int32
	ledger := &ledgerFake{
		sweepOverdue: func(context.Context) (int64, error) {
			if calls.Add(1) == 1 {
				return 0, loanledger.ErrTransactionFailed
			}
			return 4, nil
		},
	}

	// act
	recorder := serve(givenServer(ledger), http.MethodPost, "/sweeps", "")

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 4, field(t, recorder, "data", "marked_overdue").ToInt())
	assert.EqualValues(t, 2, calls.Load())
}

func Test_ListLoans_TranslatesTheQueryIntoAFilter(t *testing.T) {
	// setup
	var received loanledger.LoanFilter
	var eventual bool
	borrowerID := uuid.New()
	loans := loanledger.Loans{fixtureLoan(loanledger.StatusActive), fixtureLoan(loanledger.StatusPending)}
	ledger := &ledgerFake{
		getAll: func(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error) {
			received = filter
			eventual = ctx.Value(loanledger.ConsistencyLevelKey) == loanledger.EventualConsistency
			return loans, nil
		},
	}

	// act
	recorder := serve(givenServer(ledger), http.MethodGet,
		"/loans?status=active,pending&status=returned&grade=grade-7&from=2026-03-01T00:00:00Z&until=2026-03-31T23:59:59Z"+
			"&recent_returned=5&refresh_overdue=true&borrower_id="+borrowerID.String()+"&consistency=eventual", "")

	// assert
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.ElementsMatch(t, []loanledger.Status{loanledger.StatusPending, loanledger.StatusActive, loanledger.StatusReturned}, received.Statuses())
	assert.Equal(t, "grade-7", received.GradeCohort())
	assert.Equal(t, borrowerID, received.BorrowerID())
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), received.CreatedFrom().UTC())
	assert.Equal(t, time.Date(2026, time.March, 31, 23, 59, 59, 0, time.UTC), received.CreatedUntil().UTC())
	assert.Equal(t, 5, received.CapReturned())
	assert.True(t, received.RefreshOverdue())
	assert.True(t, eventual)
	assert.Equal(t, 2, field(t, recorder, "data", "count").ToInt())
	assert.Equal(t, "active", field(t, recorder, "data", "loans", 0, "status").ToString())
}

func Test_ListLoans_RejectsMalformedQueries(t *testing.T) {
	for _, query := range []string{
		"status=lost",
		"from=yesterday",
		"recent_returned=-1",
		"recent_returned=many",
		"refresh_overdue=maybe",
		"title_id=123",
	} {
		t.Run(query, func(t *testing.T) {
			recorder := serve(givenServer(&ledgerFake{}), http.MethodGet, "/loans?"+query, "")

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func Test_GetLoan_And_BorrowerLoans(t *testing.T) {
	// setup
	returnedAt := helper.FixtureStartTime.AddDate(0, 0, 3)
	loan := fixtureLoan(loanledger.StatusReturned)
	loan.ActualReturnAt = &returnedAt
	ledger := &ledgerFake{
		getByID: func(_ context.Context, id uuid.UUID) (loanledger.Loan, error) {
			if id != loan.ID {
				return loanledger.Loan{}, loanledger.ErrLoanNotFound
			}
			return loan, nil
		},
		getByBorrower: func(_ context.Context, id uuid.UUID) (loanledger.Loans, error) {
			if id != loan.BorrowerID {
				return loanledger.Loans{}, nil
			}
			return loanledger.Loans{loan}, nil
		},
	}
	server := givenServer(ledger)

	// act + assert
	recorder := serve(server, http.MethodGet, "/loans/"+loan.ID.String(), "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "returned", field(t, recorder, "data", "status").ToString())
	assert.Equal(t, "days", field(t, recorder, "data", "kind").ToString())
	assert.Equal(t, returnedAt.Format(time.RFC3339Nano), field(t, recorder, "data", "actual_return_at").ToString())

	recorder = serve(server, http.MethodGet, "/loans/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = serve(server, http.MethodGet, "/borrowers/"+loan.BorrowerID.String()+"/loans", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, field(t, recorder, "data", "count").ToInt())

	recorder = serve(server, http.MethodGet, "/borrowers/"+uuid.NewString()+"/loans", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 0, field(t, recorder, "data", "count").ToInt())
	assert.Contains(t, recorder.Body.String(), `"loans":[]`)
}

func Test_ApproveLoan(t *testing.T) {
	// setup
	loan := fixtureLoan(loanledger.StatusActive)
	ledger := &ledgerFake{
		approve: func(_ context.Context, id uuid.UUID) (bool, error) {
			if id != loan.ID {
				return false, loanledger.ErrInvalidStatusTransition
			}
			return true, nil
		},
		getByID: func(context.Context, uuid.UUID) (loanledger.Loan, error) { return loan, nil },
	}
	server := givenServer(ledger)

	// act + assert
	recorder := serve(server, http.MethodPost, "/loans/"+loan.ID.String()+"/approve", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, field(t, recorder, "data", "approved").ToBool())
	assert.Equal(t, "active", field(t, recorder, "data", "loan", "status").ToString())

	recorder = serve(server, http.MethodPost, "/loans/"+uuid.NewString()+"/approve", "")
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, loanledger.ErrInvalidStatusTransition.Error(), field(t, recorder, "error").ToString())
}

func Test_ReturnLoan_ReportsRepeatedReturns(t *testing.T) {
	// setup
	loan := fixtureLoan(loanledger.StatusReturned)
	ledger := &ledgerFake{
		registerReturn: func(context.Context, uuid.UUID) (loanledger.ReturnResult, error) {
			return loanledger.ReturnResult{Loan: loan, AlreadyReturned: true}, nil
		},
	}

	// act
	recorder := serve(givenServer(ledger), http.MethodPost, "/loans/"+loan.ID.String()+"/return", "")

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, field(t, recorder, "data", "already_returned").ToBool())
	assert.Equal(t, loan.ID.String(), field(t, recorder, "data", "loan", "id").ToString())
}

func Test_CancelLoan(t *testing.T) {
	// setup
	var reasons []string
	loan := fixtureLoan(loanledger.StatusCanceled)
	ledger := &ledgerFake{
		cancel: func(_ context.Context, _ uuid.UUID, reason string) (bool, error) {
			reasons = append(reasons, reason)
			return len(reasons) == 1, nil
		},
		getByID: func(context.Context, uuid.UUID) (loanledger.Loan, error) { return loan, nil },
	}
	server := givenServer(ledger)

	// act + assert
	recorder := serve(server, http.MethodPost, "/loans/"+loan.ID.String()+"/cancel", `{"reason":"moved to another school"}`)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, field(t, recorder, "data", "canceled").ToBool())

	recorder = serve(server, http.MethodPost, "/loans/"+loan.ID.String()+"/cancel", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.False(t, field(t, recorder, "data", "canceled").ToBool())

	assert.Equal(t, []string{"moved to another school", ""}, reasons)
}

func Test_DebugHandler_IsMountedWhenConfigured(t *testing.T) {
	debug := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"metrics":[]}`))
	})

	recorder := serve(givenServer(&ledgerFake{}, httpapi.WithDebugHandler(debug)), http.MethodGet, "/debug/metrics", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = serve(givenServer(&ledgerFake{}), http.MethodGet, "/debug/metrics", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
