package pagestore

import "go.uber.org/zap"

// walkFreeList follows the on-disk singly-linked free chain starting at
// head, reading the first four bytes of each page as the next page id,
// until it hits the NoPage terminator.
func (s *Store) walkFreeList(head PageID) ([]PageID, error) {
	var ids []PageID
	next := head
	nextBuf := make([]byte, 4)
	for next != NoPage {
		ids = append(ids, next)
		if err := readFullAt(s.file, int64(next)*int64(s.pageSize), nextBuf); err != nil {
			return nil, err
		}
		next = PageID(uint32At(nextBuf, 0))
	}
	return ids, nil
}

// hydrateFreeList populates the in-memory free deque from the active
// header's on-disk chain. Open always needs this, not only when
// startupReclaim also runs, since Allocate consults the deque immediately.
func (s *Store) hydrateFreeList() error {
	ids, err := s.walkFreeList(s.freeListHead)
	if err != nil {
		return err
	}
	s.freeDeque = ids
	return nil
}

// linkPendingPages physically chains pending[0] -> pending[1] -> ... ->
// tailHead on disk and fsyncs. It does not touch the on-disk header.
func (s *Store) linkPendingPages(pending []PageID, tailHead PageID) error {
	if len(pending) == 0 {
		return nil
	}
	nextBuf := make([]byte, 4)
	for i, p := range pending {
		next := tailHead
		if i+1 < len(pending) {
			next = pending[i+1]
		}
		putUint32(nextBuf, uint32(next), 0)
		if err := writeFullAt(s.file, int64(p)*int64(s.pageSize), nextBuf); err != nil {
			return err
		}
	}
	return s.file.Sync()
}

// pendingLink performs the start-of-batch linking step: if the active
// header has unlinked pending frees, chain them into the on-disk free list
// and prepend them to the in-memory deque. Idempotent per session via the
// pendingLinked flag, which resets on each commit.
func (s *Store) pendingLink() error {
	if s.pendingLinked || len(s.pendingFree) == 0 {
		return nil
	}

	if err := s.linkPendingPages(s.pendingFree, s.freeListHead); err != nil {
		return err
	}

	prepended := make([]PageID, 0, len(s.pendingFree)+len(s.freeDeque))
	prepended = append(prepended, s.pendingFree...)
	prepended = append(prepended, s.freeDeque...)
	s.freeDeque = prepended
	s.pendingLinked = true

	s.logger.Debug("pending-linked free pages", zap.Int("count", len(s.pendingFree)))

	return nil
}

// startupReclaim completes reclamation of a header opened mid-cycle: it
// links the pending pages exactly as pendingLink does, then immediately
// writes a new header (epoch+1, pendingFree cleared, freeListHead updated)
// into the stale slot and fsyncs, bringing the file to a clean state before
// any caller work begins. The in-memory deque is rebuilt by walking the new
// on-disk chain from scratch, since hydrateFreeList only ever saw the old
// freeListHead and not the newly-linked prefix.
func (s *Store) startupReclaim() error {
	if err := s.linkPendingPages(s.pendingFree, s.freeListHead); err != nil {
		return err
	}

	newHead := NoPage
	if len(s.pendingFree) > 0 {
		newHead = s.pendingFree[0]
	}

	newHeader := header{
		Version:      formatVersion,
		PageSize:     s.pageSize,
		PageCount:    s.pageCount,
		Epoch:        s.epoch + 1,
		MetaRoot:     s.metaRoot,
		FreeListHead: newHead,
	}
	staleSlot := 1 - s.activeSlot
	buf := encodeHeader(newHeader, s.pageSize)
	if err := writeFullAt(s.file, int64(staleSlot)*int64(s.pageSize), buf); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}

	ids, err := s.walkFreeList(newHead)
	if err != nil {
		return err
	}

	s.epoch = newHeader.Epoch
	s.freeListHead = newHead
	s.pendingFree = nil
	s.freeDeque = ids
	s.activeSlot = staleSlot
	s.pendingLinked = true

	s.logger.Debug("completed startup reclamation", zap.Uint64("epoch", s.epoch), zap.Int("reclaimed", len(ids)))

	return nil
}
