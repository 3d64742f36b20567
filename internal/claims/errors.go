package claims

import "errors"

var (
	ErrNotFound     = errors.New("claims: not found")
	ErrInvalidInput = errors.New("claims: invalid input")
	ErrAccessDenied = errors.New("claims: access denied")

	// ErrStatutoryCapExceeded rejects volunteer allowances above the legal
	// maximum per person and year.
	ErrStatutoryCapExceeded = errors.New("claims: amount exceeds the statutory allowance cap")

	// ErrAlreadySubmitted rejects a second external submission against the
	// same shared link.
	ErrAlreadySubmitted = errors.New("claims: already submitted")
)
