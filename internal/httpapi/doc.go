// Package httpapi is the inbound HTTP adapter of the loan ledger.
//
// It maps JSON requests onto ledger operations and ledger errors onto status codes:
// not found is 404, out of stock, withdrawn titles and invalid status transitions are 409,
// invalid input is 400, transient transaction failures are 503 (after retrying) and
// everything else is 500.
//
// Borrower identity is authenticated upstream and arrives as part of the request.
package httpapi
