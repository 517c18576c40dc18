package pagestore

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store is a crash-safe, atomic, durable page store over a single file. It
// is not safe for concurrent callers: at most one transaction or Modify
// call may be outstanding at a time.
type Store struct {
	file     FileHandle
	pageSize uint32

	pageCount    uint32
	epoch        uint64
	metaRoot     PageID
	freeListHead PageID
	pendingFree  []PageID // mirrors the pendingFree field of the active on-disk header
	activeSlot   int      // 0 or 1

	freeDeque     []PageID // in-memory free list; authoritative during a batch
	pendingLinked bool     // whether this session has already pending-linked the active header's pendingFree

	txActive bool

	logger *zap.Logger
}

// Create initializes a new page store at path. pageSize must be a power of
// two and at least 64 bytes.
func Create(path string, pageSize uint32, opts ...StoreOption) (*Store, error) {
	if !isPowerOfTwo(pageSize) || pageSize < 64 {
		return nil, ErrInvalidPageSize
	}
	file, err := OpenFileHandle(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: create %q: %w", path, err)
	}
	s, err := createWithFile(file, pageSize, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// createWithFile runs Create's logic against an already-open FileHandle,
// letting tests substitute an in-memory fake for crash/corruption scenarios
// without touching real disk.
func createWithFile(file FileHandle, pageSize uint32, opts ...StoreOption) (*Store, error) {
	if !isPowerOfTwo(pageSize) || pageSize < 64 {
		return nil, ErrInvalidPageSize
	}

	s := &Store{
		file:     file,
		pageSize: pageSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	h := header{
		Version:      formatVersion,
		PageSize:     pageSize,
		PageCount:    headerPages,
		Epoch:        0,
		MetaRoot:     NoPage,
		FreeListHead: NoPage,
	}
	buf := encodeHeader(h, pageSize)

	if err := writeFullAt(s.file, 0, buf); err != nil {
		return nil, fmt.Errorf("pagestore: write header slot 0: %w", err)
	}
	if err := writeFullAt(s.file, int64(pageSize), buf); err != nil {
		return nil, fmt.Errorf("pagestore: write header slot 1: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return nil, fmt.Errorf("pagestore: fsync initial headers: %w", err)
	}

	s.pageCount = h.PageCount
	s.epoch = h.Epoch
	s.metaRoot = h.MetaRoot
	s.freeListHead = h.FreeListHead
	s.activeSlot = 0

	s.logger.Debug("created page store", zap.Uint32("page_size", pageSize))

	return s, nil
}

// Open opens an existing page store at path, selecting the freshest valid
// header slot and completing any deferred free-list reclamation before
// returning.
func Open(path string, opts ...StoreOption) (*Store, error) {
	file, err := OpenFileHandle(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %q: %w", path, err)
	}
	s, err := openWithFile(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// openWithFile runs Open's logic against an already-open FileHandle, letting
// tests drive the header-selection and startup-reclaim paths against an
// in-memory fake rather than real disk.
func openWithFile(file FileHandle, opts ...StoreOption) (*Store, error) {
	s := &Store{
		file:   file,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	sizeBuf := make([]byte, 4)
	if err := readFullAt(s.file, 8, sizeBuf); err != nil {
		return nil, fmt.Errorf("pagestore: read page size: %w", err)
	}
	pageSize := uint32At(sizeBuf, 0)
	if pageSize < 64 {
		return nil, fmt.Errorf("%w: implausible page size %d", ErrCorruptStore, pageSize)
	}
	s.pageSize = pageSize

	slot0 := make([]byte, pageSize)
	if err := readFullAt(s.file, 0, slot0); err != nil {
		return nil, fmt.Errorf("pagestore: read header slot 0: %w", err)
	}
	slot1 := make([]byte, pageSize)
	if err := readFullAt(s.file, int64(pageSize), slot1); err != nil {
		return nil, fmt.Errorf("pagestore: read header slot 1: %w", err)
	}

	h0, err0 := decodeHeader(slot0, pageSize)
	h1, err1 := decodeHeader(slot1, pageSize)

	var chosen *header
	var chosenSlot int
	switch {
	case err0 == nil && err1 == nil:
		if h1.Epoch > h0.Epoch {
			chosen, chosenSlot = h1, 1
		} else {
			chosen, chosenSlot = h0, 0
		}
	case err0 == nil:
		s.logger.Warn("header slot 1 failed validation", zap.Error(err1))
		chosen, chosenSlot = h0, 0
	case err1 == nil:
		s.logger.Warn("header slot 0 failed validation", zap.Error(err0))
		chosen, chosenSlot = h1, 1
	default:
		return nil, fmt.Errorf("%w: %s", ErrCorruptStore, multierr.Append(err0, err1))
	}

	s.pageCount = chosen.PageCount
	s.epoch = chosen.Epoch
	s.metaRoot = chosen.MetaRoot
	s.freeListHead = chosen.FreeListHead
	s.pendingFree = chosen.PendingFree
	s.activeSlot = chosenSlot
	s.pendingLinked = false

	if err := s.hydrateFreeList(); err != nil {
		return nil, err
	}

	if len(s.pendingFree) > 0 {
		if err := s.startupReclaim(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// PageSize returns the store's immutable page size.
func (s *Store) PageSize() uint32 {
	return s.pageSize
}

// MetaRoot returns the current committed root page id.
func (s *Store) MetaRoot() PageID {
	return s.metaRoot
}

// Read returns a freshly-owned copy of the on-disk bytes of page id,
// bypassing any in-flight transaction.
func (s *Store) Read(ctx context.Context, id PageID) ([]byte, error) {
	if id < headerPages || uint32(id) >= s.pageCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	buf := make([]byte, s.pageSize)
	if err := readFullAt(s.file, int64(id)*int64(s.pageSize), buf); err != nil {
		return nil, fmt.Errorf("pagestore: read page %d: %w", id, err)
	}
	return buf, nil
}

// Close closes the backing file. It never flushes or completes any
// outstanding pending-link state; the next Open's startup reclamation is
// what brings the file to a clean state.
func (s *Store) Close() error {
	return s.file.Close()
}

// Modify opens a transaction, runs fn under it, commits on normal
// completion and rolls back if fn returns an error or panics.
func (s *Store) Modify(ctx context.Context, fn func(WriteBatch) error) (err error) {
	tx, err := s.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				panic(multierr.Combine(fmt.Errorf("panic in modify callback: %v", r), rbErr))
			}
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("pagestore: rollback after callback error %v: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// BeginTransaction opens an explicit transaction. Only one transaction may
// be outstanding at a time. As its first act it performs pending-link if
// the active header has unlinked pending frees.
func (s *Store) BeginTransaction(ctx context.Context) (*Transaction, error) {
	if s.txActive {
		return nil, ErrTransactionActive
	}
	if err := s.pendingLink(); err != nil {
		return nil, err
	}
	s.txActive = true
	return &Transaction{
		store:   s,
		written: make(map[PageID][]byte),
		state:   txActive,
	}, nil
}
