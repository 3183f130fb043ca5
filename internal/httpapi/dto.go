package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

type addTitleRequest struct {
	ISBN           string `json:"isbn" validate:"required,max=32"`
	Name           string `json:"name" validate:"required,max=512"`
	Author         string `json:"author" validate:"max=256"`
	Edition        string `json:"edition" validate:"max=128"`
	Publisher      string `json:"publisher" validate:"max=256"`
	PublishingYear uint   `json:"publishing_year" validate:"lte=9999"`
	GradeCohort    string `json:"grade_cohort" validate:"max=64"`
	TotalCopies    *int   `json:"total_copies" validate:"required,gte=0"`
}

func (r addTitleRequest) params() loanledger.NewTitleParams {
	return loanledger.NewTitleParams{
		ISBN:           r.ISBN,
		Name:           r.Name,
		Author:         r.Author,
		Edition:        r.Edition,
		Publisher:      r.Publisher,
		PublishingYear: r.PublishingYear,
		GradeCohort:    r.GradeCohort,
		TotalCopies:    *r.TotalCopies,
	}
}

type createLoanRequest struct {
	TitleID       string `json:"title_id" validate:"required,uuid"`
	BorrowerID    string `json:"borrower_id" validate:"required,uuid"`
	BorrowerGrade string `json:"borrower_grade" validate:"max=64"`
	Duration      int    `json:"duration" validate:"required,gt=0,lte=8760"`
	Unit          string `json:"unit" validate:"required,oneof=days hours"`
	Notes         string `json:"notes" validate:"max=2000"`
}

func (r createLoanRequest) params(now time.Time) (loanledger.CreateLoanParams, error) {
	kind, err := loanledger.ParseLoanKind(r.Unit)
	if err != nil {
		return loanledger.CreateLoanParams{}, err
	}

	dueDate, err := kind.DueDate(now, r.Duration)
	if err != nil {
		return loanledger.CreateLoanParams{}, err
	}

	return loanledger.CreateLoanParams{
		TitleID:          uuid.MustParse(r.TitleID),
		BorrowerID:       uuid.MustParse(r.BorrowerID),
		BorrowerGrade:    r.BorrowerGrade,
		ExpectedReturnAt: dueDate,
		Notes:            r.Notes,
		Kind:             kind,
	}, nil
}

type cancelLoanRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type titleResponse struct {
	ID              uuid.UUID `json:"id"`
	ISBN            string    `json:"isbn"`
	Name            string    `json:"name"`
	Author          string    `json:"author"`
	Edition         string    `json:"edition"`
	Publisher       string    `json:"publisher"`
	PublishingYear  uint      `json:"publishing_year"`
	GradeCohort     string    `json:"grade_cohort"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Withdrawn       bool      `json:"withdrawn"`
	CreatedAt       time.Time `json:"created_at"`
}

func titleResponseFrom(t loanledger.Title) titleResponse {
	return titleResponse{
		ID:              t.ID,
		ISBN:            t.ISBN,
		Name:            t.Name,
		Author:          t.Author,
		Edition:         t.Edition,
		Publisher:       t.Publisher,
		PublishingYear:  t.PublishingYear,
		GradeCohort:     t.GradeCohort,
		TotalCopies:     t.TotalCopies,
		AvailableCopies: t.AvailableCopies,
		Withdrawn:       t.Withdrawn,
		CreatedAt:       t.CreatedAt,
	}
}

type loanResponse struct {
	ID               uuid.UUID           `json:"id"`
	BorrowerID       uuid.UUID           `json:"borrower_id"`
	BorrowerGrade    string              `json:"borrower_grade"`
	TitleID          uuid.UUID           `json:"title_id"`
	CreatedAt        time.Time           `json:"created_at"`
	ExpectedReturnAt time.Time           `json:"expected_return_at"`
	ActualReturnAt   *time.Time          `json:"actual_return_at,omitempty"`
	Status           loanledger.Status   `json:"status"`
	Kind             loanledger.LoanKind `json:"kind"`
	Notes            string              `json:"notes"`
}

func loanResponseFrom(l loanledger.Loan) loanResponse {
	return loanResponse{
		ID:               l.ID,
		BorrowerID:       l.BorrowerID,
		BorrowerGrade:    l.BorrowerGrade,
		TitleID:          l.TitleID,
		CreatedAt:        l.CreatedAt,
		ExpectedReturnAt: l.ExpectedReturnAt,
		ActualReturnAt:   l.ActualReturnAt,
		Status:           l.Status,
		Kind:             l.Kind,
		Notes:            l.Notes,
	}
}

func loanResponsesFrom(loans loanledger.Loans) []loanResponse {
	responses := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, loanResponseFrom(loan))
	}

	return responses
}

type createdLoanResponse struct {
	ID uuid.UUID `json:"id"`
}

type loanListResponse struct {
	Loans []loanResponse `json:"loans"`
	Count int            `json:"count"`
}

type approveResponse struct {
	Approved bool         `json:"approved"`
	Loan     loanResponse `json:"loan"`
}

type returnResponse struct {
	AlreadyReturned bool         `json:"already_returned"`
	Loan            loanResponse `json:"loan"`
}

type cancelResponse struct {
	Canceled bool         `json:"canceled"`
	Loan     loanResponse `json:"loan"`
}

type sweepResponse struct {
	MarkedOverdue int64 `json:"marked_overdue"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
