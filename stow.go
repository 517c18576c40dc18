// Package stow implements a crash-safe, atomic, durable page store: a
// single-file container partitioned into fixed-size pages, exposing an
// allocate/read/write/free interface suitable as a foundation for
// higher-level persistent data structures (B-trees, table heaps, blob
// chains). It does not interpret page contents.
package stow

import (
	"github.com/edadma/stow/internal/pagestore"
)

// PageID names a page by file offset id*pageSize. NoPage (0) is the
// sentinel meaning "no page"; pages 0 and 1 are reserved headers and are
// never returned by Allocate or accepted by Free.
type PageID = pagestore.PageID

// NoPage is the sentinel PageID meaning "no page".
const NoPage = pagestore.NoPage

// Store is a page store over a single backing file. It is not safe for
// concurrent callers: at most one transaction or Modify call may be
// outstanding at a time.
type Store = pagestore.Store

// WriteBatch is the capability surface handed to a Modify callback:
// allocate, read, write, free and set the root. It cannot commit or roll
// back directly.
type WriteBatch = pagestore.WriteBatch

// Transaction extends WriteBatch with explicit Commit, Rollback and
// IsActive, for callers that want control over the batch lifecycle instead
// of using Modify's callback form.
type Transaction = pagestore.Transaction

// FileHandle is the random-access file abstraction the store depends on:
// seek, fill-or-fail read, exact-length write at the current position,
// fsync, close. Supply a fake implementing this interface in tests to
// model crashes at specific byte offsets.
type FileHandle = pagestore.FileHandle

// StoreOption configures a Store at Create/Open time.
type StoreOption = pagestore.StoreOption

// WithLogger attaches a structured *zap.Logger to a Store. A nil logger is
// replaced with a no-op logger.
var WithLogger = pagestore.WithLogger

// WithLogLevel builds and attaches a logger at the named level ("debug",
// "info", "warn", "error", ...) without requiring the caller to assemble a
// zap.Config.
var WithLogLevel = pagestore.WithLogLevel

// Sentinel errors surfaced by Create, Open and transaction operations.
// Match with errors.Is.
var (
	ErrInvalidPageSize    = pagestore.ErrInvalidPageSize
	ErrCorruptStore       = pagestore.ErrCorruptStore
	ErrInvalidPageID      = pagestore.ErrInvalidPageID
	ErrWrongPageSize      = pagestore.ErrWrongPageSize
	ErrTransactionActive  = pagestore.ErrTransactionActive
	ErrTransactionClosed  = pagestore.ErrTransactionClosed
	ErrTooManyPendingFree = pagestore.ErrTooManyPendingFree
)

// Create initializes a new page store at path. pageSize must be a power of
// two and at least 64 bytes.
func Create(path string, pageSize uint32, opts ...StoreOption) (*Store, error) {
	return pagestore.Create(path, pageSize, opts...)
}

// Open opens an existing page store at path, selecting the freshest valid
// header slot and completing any deferred free-list reclamation before
// returning.
func Open(path string, opts ...StoreOption) (*Store, error) {
	return pagestore.Open(path, opts...)
}
