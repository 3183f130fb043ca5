package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const (
	operationAddTitle      = "add_title"
	operationGetTitle      = "get_title"
	operationWithdrawTitle = "withdraw_title"
	operationCreateLoan    = "create_loan"
	operationGetByID       = "get_by_id"
	operationGetByBorrower = "get_by_borrower"
	operationGetAll        = "get_all"
	operationSweepOverdue  = "sweep_overdue"
	operationReturn        = "register_return"
	operationApprove       = "approve"
	operationCancel        = "cancel"

	queryStatus         = "status"
	queryGrade          = "grade"
	queryFrom           = "from"
	queryUntil          = "until"
	queryRecentReturned = "recent_returned"
	queryRefreshOverdue = "refresh_overdue"
	queryBorrowerID     = "borrower_id"
	queryTitleID        = "title_id"
	queryConsistency    = "consistency"
	consistencyEventual = "eventual"
)

var errMalformedRequest = errors.New("malformed request")

// POST /titles
func (s *Server) handleAddTitle(w http.ResponseWriter, r *http.Request) {
	var req addTitleRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	var title loanledger.Title
	err := s.retry(r.Context(), operationAddTitle, func(ctx context.Context) error {
		var addErr error
		title, addErr = s.ledger.AddTitle(ctx, req.params())

		return addErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Location", "/titles/"+title.ID.String())
	s.writeJSON(w, http.StatusCreated, titleResponseFrom(title))
}

// GET /titles/{id}
func (s *Server) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	titleID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var title loanledger.Title
	err = s.retry(r.Context(), operationGetTitle, func(ctx context.Context) error {
		var getErr error
		title, getErr = s.ledger.GetTitle(ctx, titleID)

		return getErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, titleResponseFrom(title))
}

// DELETE /titles/{id}
func (s *Server) handleWithdrawTitle(w http.ResponseWriter, r *http.Request) {
	titleID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	err = s.retry(r.Context(), operationWithdrawTitle, func(ctx context.Context) error {
		return s.ledger.WithdrawTitle(ctx, titleID)
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /loans
func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	params, err := req.params(s.clock.Now())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var loanID uuid.UUID
	err = s.retry(r.Context(), operationCreateLoan, func(ctx context.Context) error {
		var createErr error
		loanID, createErr = s.ledger.CreateLoan(ctx, params)

		return createErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	w.Header().Set("Location", "/loans/"+loanID.String())
	s.writeJSON(w, http.StatusCreated, createdLoanResponse{ID: loanID})
}

// GET /loans
func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	filter, err := loanFilterFrom(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	if r.URL.Query().Get(queryConsistency) == consistencyEventual {
		ctx = loanledger.WithEventualConsistency(ctx)
	}

	var loans loanledger.Loans
	err = s.retry(ctx, operationGetAll, func(ctx context.Context) error {
		var listErr error
		loans, listErr = s.ledger.GetAll(ctx, filter)

		return listErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loanListResponse{Loans: loanResponsesFrom(loans), Count: len(loans)})
}

// GET /loans/{id}
func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	loan, err := s.getLoan(r.Context(), loanID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loanResponseFrom(loan))
}

// GET /borrowers/{id}/loans
func (s *Server) handleGetBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var loans loanledger.Loans
	err = s.retry(r.Context(), operationGetByBorrower, func(ctx context.Context) error {
		var getErr error
		loans, getErr = s.ledger.GetByBorrower(ctx, borrowerID)

		return getErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loanListResponse{Loans: loanResponsesFrom(loans), Count: len(loans)})
}

// POST /loans/{id}/approve
func (s *Server) handleApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var approved bool
	err = s.retry(r.Context(), operationApprove, func(ctx context.Context) error {
		var approveErr error
		approved, approveErr = s.ledger.Approve(ctx, loanID)

		return approveErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	loan, err := s.getLoan(r.Context(), loanID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, approveResponse{Approved: approved, Loan: loanResponseFrom(loan)})
}

// POST /loans/{id}/return
func (s *Server) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var result loanledger.ReturnResult
	err = s.retry(r.Context(), operationReturn, func(ctx context.Context) error {
		var returnErr error
		result, returnErr = s.ledger.RegisterReturn(ctx, loanID)

		return returnErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, returnResponse{AlreadyReturned: result.AlreadyReturned, Loan: loanResponseFrom(result.Loan)})
}

// POST /loans/{id}/cancel
func (s *Server) handleCancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	var req cancelLoanRequest
	if r.ContentLength != 0 {
		if err = s.decodeBody(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
	}

	var canceled bool
	err = s.retry(r.Context(), operationCancel, func(ctx context.Context) error {
		var cancelErr error
		canceled, cancelErr = s.ledger.Cancel(ctx, loanID, req.Reason)

		return cancelErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	loan, err := s.getLoan(r.Context(), loanID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cancelResponse{Canceled: canceled, Loan: loanResponseFrom(loan)})
}

// POST /sweeps
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var marked int64
	err := s.retry(r.Context(), operationSweepOverdue, func(ctx context.Context) error {
		var sweepErr error
		marked, sweepErr = s.ledger.SweepOverdue(ctx)

		return sweepErr
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sweepResponse{MarkedOverdue: marked})
}

func (s *Server) getLoan(ctx context.Context, loanID uuid.UUID) (loanledger.Loan, error) {
	var loan loanledger.Loan
	err := s.retry(ctx, operationGetByID, func(ctx context.Context) error {
		var getErr error
		loan, getErr = s.ledger.GetByID(ctx, loanID)

		return getErr
	})

	return loan, err
}

// decodeBody reads one JSON document, rejecting unknown fields, and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := jsonAPI.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errMalformedRequest)
	}

	return s.validator.validate(target)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id must be a UUID", errMalformedRequest)
	}

	return id, nil
}

// loanFilterFrom builds the listing filter from the query string.
// status may be repeated or comma separated; from and until are RFC 3339 timestamps.
func loanFilterFrom(r *http.Request) (loanledger.LoanFilter, error) {
	query := r.URL.Query()
	builder := loanledger.BuildLoanFilter()

	for _, raw := range query[queryStatus] {
		for _, name := range strings.Split(raw, ",") {
			status, err := loanledger.ParseStatus(strings.TrimSpace(name))
			if err != nil {
				return loanledger.LoanFilter{}, err
			}

			builder.WithStatuses(status)
		}
	}

	if grade := query.Get(queryGrade); grade != "" {
		builder.InGradeCohort(grade)
	}

	for key, apply := range map[string]func(uuid.UUID) *loanledger.LoanFilterBuilder{
		queryBorrowerID: builder.BorrowedBy,
		queryTitleID:    builder.OfTitle,
	} {
		if raw := query.Get(key); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return loanledger.LoanFilter{}, fmt.Errorf("%w: %s must be a UUID", errMalformedRequest, key)
			}

			apply(id)
		}
	}

	for key, apply := range map[string]func(time.Time) *loanledger.LoanFilterBuilder{
		queryFrom:  builder.CreatedFrom,
		queryUntil: builder.CreatedUntil,
	} {
		if raw := query.Get(key); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return loanledger.LoanFilter{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", errMalformedRequest, key)
			}

			apply(at)
		}
	}

	if raw := query.Get(queryRecentReturned); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return loanledger.LoanFilter{}, fmt.Errorf("%w: %s must be a non-negative integer", errMalformedRequest, queryRecentReturned)
		}

		builder.CapReturned(n)
	}

	if raw := query.Get(queryRefreshOverdue); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return loanledger.LoanFilter{}, fmt.Errorf("%w: %s must be a boolean", errMalformedRequest, queryRefreshOverdue)
		}

		if refresh {
			builder.WithOverdueRefresh()
		}
	}

	return builder.Finalize(), nil
}
