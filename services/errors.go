package services

import "github.com/cockroachdb/errors"

// Fetch and parse failures are absorbed by the scheduler and turned into
// fallback data; they are exported so callers and tests can tell them apart.
var (
	ErrNetwork          = errors.New("pricing endpoint unreachable")
	ErrUpstreamStatus   = errors.New("pricing endpoint returned non-success status")
	ErrParse            = errors.New("pricing response is not a usable JSON array")
	ErrNoRecords        = errors.New("pricing response contained no valid records")
	ErrSnapshotNotFound = errors.New("pricing snapshot not found")
)
