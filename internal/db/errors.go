package db

import "errors"

// Sentinel errors for storage operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrKeyExists   = errors.New("db: key already exists")
	ErrClosed      = errors.New("db: store closed")
)

// Op names used for error context.
const (
	OpGet     = "GET"
	OpInsert  = "INSERT"
	OpPut     = "PUT"
	OpDelete  = "DELETE"
	OpScan    = "SCAN"
	OpOpen    = "OPEN"
	OpBegin   = "BEGIN"
	OpCommit  = "COMMIT"
	OpIndex   = "INDEX"
	OpUnindex = "UNINDEX"
	OpQuery   = "QUERY"
	OpRebuild = "REBUILD"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
