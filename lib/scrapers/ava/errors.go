package ava

import "errors"

var (
	// ErrNotAuthenticated means an operation that needs a logged-in
	// session ran before Login succeeded.
	ErrNotAuthenticated = errors.New("portal session is not authenticated")
	// ErrNavigation means an expected page (or page marker) never
	// showed up within its bounded wait.
	ErrNavigation = errors.New("could not reach expected portal page")
	// ErrParse means a page was reached but its structure deviated
	// from what the parser expects. The portal's HTML is load-bearing
	// versioned input; a mismatch aborts the whole scrape for this
	// account rather than guessing.
	ErrParse = errors.New("unexpected portal page structure")
)
