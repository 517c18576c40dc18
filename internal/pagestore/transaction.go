package pagestore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type txState int

const (
	txActive txState = iota + 1
	txCompleted
)

// Transaction is the wider capability set: everything in WriteBatch plus
// explicit Commit/Rollback and IsActive, backed by a copy-on-write
// write-batch state machine.
type Transaction struct {
	store *Store
	state txState

	written   map[PageID][]byte
	freed     []PageID
	allocated []PageID

	newMetaRoot *PageID
}

var _ WriteBatch = (*Transaction)(nil)

// IsActive reports whether the transaction can still accept operations.
func (tx *Transaction) IsActive() bool {
	return tx.state == txActive
}

// Allocate hands out a page id: popped from the in-memory free deque if one
// is available, otherwise minted by extending the file with a zeroed page.
// Extending bumps the store's pageCount immediately, not at commit, so the
// new id is readable within this same batch and the extension sticks even
// if the batch later rolls back.
func (tx *Transaction) Allocate(ctx context.Context) (PageID, error) {
	if tx.state != txActive {
		return NoPage, ErrTransactionClosed
	}

	s := tx.store

	if len(s.freeDeque) > 0 {
		id := s.freeDeque[0]
		s.freeDeque = s.freeDeque[1:]
		tx.allocated = append(tx.allocated, id)
		return id, nil
	}

	id := PageID(s.pageCount)
	zero := make([]byte, s.pageSize)
	if err := writeFullAt(s.file, int64(id)*int64(s.pageSize), zero); err != nil {
		return NoPage, fmt.Errorf("pagestore: extend file for page %d: %w", id, err)
	}
	s.pageCount++
	tx.allocated = append(tx.allocated, id)

	return id, nil
}

// Read returns the batch's own pending write for id if present, otherwise
// the on-disk contents. It never observes writes from a different,
// concurrently impossible transaction, since at most one is ever active.
func (tx *Transaction) Read(ctx context.Context, id PageID) ([]byte, error) {
	if tx.state != txActive {
		return nil, ErrTransactionClosed
	}
	if buf, ok := tx.written[id]; ok {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	}
	return tx.store.Read(ctx, id)
}

// Write stages data as the final bytes for page id; the buffer is
// defensively copied since the caller may mutate it after the call
// returns.
func (tx *Transaction) Write(ctx context.Context, id PageID, data []byte) error {
	if tx.state != txActive {
		return ErrTransactionClosed
	}
	if uint32(len(data)) != tx.store.pageSize {
		return fmt.Errorf("%w: got %d want %d", ErrWrongPageSize, len(data), tx.store.pageSize)
	}
	if isHeaderPage(id) {
		return fmt.Errorf("%w: %d is a header page", ErrInvalidPageID, id)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	tx.written[id] = cp
	return nil
}

// Free marks id as freed in this batch; it becomes this commit's
// pendingFree entry rather than being linked into the allocatable chain
// immediately.
func (tx *Transaction) Free(ctx context.Context, id PageID) error {
	if tx.state != txActive {
		return ErrTransactionClosed
	}
	if isHeaderPage(id) {
		return fmt.Errorf("%w: cannot free header page %d", ErrInvalidPageID, id)
	}
	tx.freed = append(tx.freed, id)
	delete(tx.written, id)
	return nil
}

// SetMetaRoot records the new root page id to be committed. No liveness
// validation is performed; the store does not interpret metaRoot.
func (tx *Transaction) SetMetaRoot(ctx context.Context, id PageID) {
	if tx.state != txActive {
		return
	}
	tx.newMetaRoot = &id
}

// Commit runs the atomic commit pipeline: write data pages, fsync, write
// the stale header slot, fsync again, then swap the active slot in memory.
// A crash at any point before the second fsync leaves the previous header
// authoritative; only after it completes does the new state become
// visible to future opens.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.state != txActive {
		return ErrTransactionClosed
	}

	s := tx.store

	newMetaRoot := s.metaRoot
	if tx.newMetaRoot != nil {
		newMetaRoot = *tx.newMetaRoot
	}
	currentFreeHead := NoPage
	if len(s.freeDeque) > 0 {
		currentFreeHead = s.freeDeque[0]
	}

	if len(tx.freed) > maxPendingFree(s.pageSize) {
		return fmt.Errorf("%w: %d freed, capacity %d", ErrTooManyPendingFree, len(tx.freed), maxPendingFree(s.pageSize))
	}

	if len(tx.written) > 0 {
		for id, data := range tx.written {
			if err := writeFullAt(s.file, int64(id)*int64(s.pageSize), data); err != nil {
				return fmt.Errorf("pagestore: write page %d: %w", id, err)
			}
		}
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("pagestore: fsync data pages: %w", err)
		}
	}

	pendingFree := append([]PageID(nil), tx.freed...)

	newHeader := header{
		Version:      formatVersion,
		PageSize:     s.pageSize,
		PageCount:    s.pageCount,
		Epoch:        s.epoch + 1,
		MetaRoot:     newMetaRoot,
		FreeListHead: currentFreeHead,
		PendingFree:  pendingFree,
	}

	staleSlot := 1 - s.activeSlot
	buf := encodeHeader(newHeader, s.pageSize)
	if err := writeFullAt(s.file, int64(staleSlot)*int64(s.pageSize), buf); err != nil {
		return fmt.Errorf("pagestore: write header slot %d: %w", staleSlot, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("pagestore: fsync header: %w", err)
	}

	s.epoch = newHeader.Epoch
	s.pageCount = newHeader.PageCount
	s.metaRoot = newHeader.MetaRoot
	s.freeListHead = newHeader.FreeListHead
	s.pendingFree = newHeader.PendingFree
	s.activeSlot = staleSlot
	s.pendingLinked = false
	s.txActive = false

	s.logger.Debug("committed",
		zap.Uint64("epoch", s.epoch),
		zap.Int("written", len(tx.written)),
		zap.Int("freed", len(tx.freed)),
		zap.Uint32("page_count", s.pageCount),
	)

	tx.state = txCompleted
	return nil
}

// Rollback discards all batch state without issuing any disk writes.
// Pages handed out by Allocate are prepended back onto the in-memory free
// deque so they are reusable immediately. pageCount is a high-water mark
// and is never lowered here: any file extension performed while allocating
// stays in effect, so the requeued id remains in [2, pageCount) and is
// valid to reallocate and commit later. Epoch never advances on rollback.
func (tx *Transaction) Rollback(ctx context.Context) error {
	if tx.state != txActive {
		return ErrTransactionClosed
	}

	s := tx.store

	if len(tx.allocated) > 0 {
		s.freeDeque = append(append([]PageID(nil), tx.allocated...), s.freeDeque...)
	}

	s.txActive = false
	tx.state = txCompleted
	tx.written = nil
	tx.freed = nil
	tx.allocated = nil

	return nil
}
