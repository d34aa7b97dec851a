package league

import "github.com/cockroachdb/errors"

// Extraction and reconciliation failure kinds. Per-record kinds are counted, never returned to callers.
var (
	ErrParseFailure          = errors.New("parse failure")
	ErrUnresolvedTeam        = errors.New("unresolved team")
	ErrAmbiguousStatus       = errors.New("ambiguous status")
	ErrInvalidExistingRecord = errors.New("invalid existing record")
	ErrInvalidRecord         = errors.New("invalid game record")
	ErrInvalidReference      = errors.New("invalid reference table")
)

// Service level errors mapped onto transport status codes.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
