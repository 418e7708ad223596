package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDocumentNotFound     = errors.New("archived document not found")
	ErrArchiveUnavailable   = errors.New("archive store unavailable")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrLedgerReverted       = errors.New("ledger transaction reverted")
	ErrConfirmationTimeout  = errors.New("ledger confirmation timed out")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDuplicateCertificate = errors.New("certificate number already exists")
	ErrIntegrityMismatch    = errors.New("document hash does not match ledger record")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTransitionDenied     = errors.New("status transition denied by policy")
)

// ValidationError is the caller's fault: the named field is missing or
// invalid. No side effects have happened when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid certificate input: %s %s", e.Field, e.Reason)
}

// Issuance stages, used to report where an aborted issuance stopped.
const (
	StageValidate = "validate"
	StageArchive  = "archive"
	StageSubmit   = "submit"
	StageConfirm  = "confirm"
	StageIndex    = "index"
)

type IssuanceError struct {
	Stage string
	Err   error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("issuance failed at %s: %v", e.Stage, e.Err)
}

func (e *IssuanceError) Unwrap() error {
	return e.Err
}
