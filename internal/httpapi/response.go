package httpapi

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the body of every JSON response.
type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := jsonAPI.NewEncoder(w).Encode(envelope{Success: status < http.StatusBadRequest, Data: data}); err != nil {
		s.logger.Warn(logMsgEncodeFailed, logAttrError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := jsonAPI.NewEncoder(w).Encode(envelope{Error: message, Details: details}); err != nil {
		s.logger.Warn(logMsgEncodeFailed, logAttrError, err.Error())
	}
}

// statusFor maps a ledger or request error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loanledger.ErrCommitOutcomeUnknown):
		return http.StatusServiceUnavailable

	case errors.Is(err, loanledger.ErrTitleNotFound),
		errors.Is(err, loanledger.ErrLoanNotFound):
		return http.StatusNotFound

	case errors.Is(err, loanledger.ErrOutOfStock),
		errors.Is(err, loanledger.ErrTitleWithdrawn),
		errors.Is(err, loanledger.ErrInvalidStatusTransition):
		return http.StatusConflict

	case errors.Is(err, ErrValidation),
		errors.Is(err, errMalformedRequest),
		errors.Is(err, loanledger.ErrInvalidDueDate),
		errors.Is(err, loanledger.ErrInvalidDuration),
		errors.Is(err, loanledger.ErrInvalidLoanKind),
		errors.Is(err, loanledger.ErrInvalidCopyCount),
		errors.Is(err, loanledger.ErrUnknownStatus),
		errors.Is(err, loanledger.ErrNilID):
		return http.StatusBadRequest

	case errors.Is(err, loanledger.ErrTransactionFailed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the mapped status. Server errors are logged, their cause is not exposed.
// An unknown commit outcome gets no Retry-After, the client has to look before it retries.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		s.writeError(w, status, validationErr.Error(), validationErr.Fields)
		return
	}

	switch {
	case errors.Is(err, loanledger.ErrCommitOutcomeUnknown):
		s.logger.Warn(logMsgRequestUnavailable, logAttrPath, r.URL.Path, logAttrError, err.Error())
		s.writeError(w, status, "the outcome of the request is unknown, check the current state before retrying", nil)

	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		s.logger.Warn(logMsgRequestUnavailable, logAttrPath, r.URL.Path, logAttrError, err.Error())
		s.writeError(w, status, "the ledger is temporarily unavailable, retry later", nil)

	case status == http.StatusInternalServerError:
		s.logger.Error(logMsgRequestFailed, logAttrPath, r.URL.Path, logAttrError, err.Error())
		s.writeError(w, status, "an unexpected error occurred", nil)

	default:
		s.writeError(w, status, rejectionMessage(err), nil)
	}
}

// rejectionMessage returns the message of the first ledger sentinel in err, so driver details never leak.
func rejectionMessage(err error) string {
	for _, sentinel := range []error{
		loanledger.ErrTitleNotFound,
		loanledger.ErrLoanNotFound,
		loanledger.ErrOutOfStock,
		loanledger.ErrTitleWithdrawn,
		loanledger.ErrInvalidStatusTransition,
		loanledger.ErrInvalidDueDate,
		loanledger.ErrInvalidDuration,
		loanledger.ErrInvalidLoanKind,
		loanledger.ErrInvalidCopyCount,
		loanledger.ErrUnknownStatus,
		loanledger.ErrNilID,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return err.Error()
}
