package pagestore

import "errors"

// Sentinel errors, wrapped with fmt.Errorf("...: %w", ...) at the call site
// and matched with errors.Is, rather than defined as bespoke error structs.
var (
	// ErrInvalidPageSize is returned by Create when pageSize is not a power
	// of two or is smaller than the 64-byte minimum.
	ErrInvalidPageSize = errors.New("pagestore: page size must be a power of two and at least 64 bytes")

	// ErrCorruptStore is returned by Open when neither header slot parses.
	ErrCorruptStore = errors.New("pagestore: corrupt page store")

	// ErrInvalidPageID is returned by Read and Free for ids outside their
	// respective valid ranges.
	ErrInvalidPageID = errors.New("pagestore: invalid page id")

	// ErrWrongPageSize is returned by Write when the supplied buffer length
	// does not equal the store's page size.
	ErrWrongPageSize = errors.New("pagestore: write buffer does not match page size")

	// ErrTransactionActive is returned by Modify/BeginTransaction when
	// another transaction is already outstanding.
	ErrTransactionActive = errors.New("pagestore: a transaction is already active")

	// ErrTransactionClosed is returned by batch operations invoked after
	// Commit or Rollback has already completed the transaction.
	ErrTransactionClosed = errors.New("pagestore: transaction already committed or rolled back")

	// ErrTooManyPendingFree is returned by Commit when the number of pages
	// freed during the batch would overflow the header's pendingFree
	// capacity for this page size.
	ErrTooManyPendingFree = errors.New("pagestore: too many pages freed in a single commit")

	// errHeaderInvalid is the internal "no valid header" failure the header
	// codec returns; Open translates two of these into ErrCorruptStore.
	errHeaderInvalid = errors.New("pagestore: invalid header")
)
