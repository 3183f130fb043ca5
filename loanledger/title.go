package loanledger

import (
	"time"

	"github.com/google/uuid"
)

// Title is a catalog entry and the authoritative holder of its copy counts.
// AvailableCopies is only ever written by the ledger, under a row lock.
type Title struct {
	ID              uuid.UUID
	ISBN            string
	Name            string
	Author          string
	Edition         string
	Publisher       string
	PublishingYear  uint
	GradeCohort     string
	TotalCopies     int
	AvailableCopies int
	Withdrawn       bool
	CreatedAt       time.Time
}

// Titles is an alias type for a slice of Title.
type Titles = []Title

// Lent returns the number of copies currently held by loans.
func (t Title) Lent() int {
	return t.TotalCopies - t.AvailableCopies
}

// IsConsistent reports whether the copy counts respect 0 <= available <= total.
func (t Title) IsConsistent() bool {
	return t.AvailableCopies >= 0 && t.AvailableCopies <= t.TotalCopies
}

// NewTitleParams carries the catalog data for AddTitle.
type NewTitleParams struct {
	ISBN           string
	Name           string
	Author         string
	Edition        string
	Publisher      string
	PublishingYear uint
	GradeCohort    string
	TotalCopies    int
}

// Validate checks the copy count.
func (p NewTitleParams) Validate() error {
	if p.TotalCopies < 0 {
		return ErrInvalidCopyCount
	}

	return nil
}
