package pagestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var errRaised = errors.New("boom")

const testPageSize = 256

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.pgst")
	s, err := Create(path, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestCreateRejectsBadPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.pgst")

	_, err := Create(path, 100)
	require.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = Create(path, 32)
	require.ErrorIs(t, err, ErrInvalidPageSize)

	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatalf("Create must not leave a file behind on precondition failure")
	}
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	s, path := openTempStore(t)
	require.Equal(t, uint32(testPageSize), s.PageSize())
	require.Equal(t, NoPage, s.MetaRoot())
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint32(testPageSize), reopened.PageSize())
	require.Equal(t, NoPage, reopened.MetaRoot())
}

// Round-trip of content: a committed write survives a close/open cycle.
func TestRoundTripOfContentAcrossReopen(t *testing.T) {
	s, path := openTempStore(t)
	ctx := context.Background()

	var id PageID
	payload := make([]byte, testPageSize)
	payload[0] = 0xAB

	err := s.Modify(ctx, func(b WriteBatch) error {
		var allocErr error
		id, allocErr = b.Allocate(ctx)
		if allocErr != nil {
			return allocErr
		}
		if err := b.Write(ctx, id, payload); err != nil {
			return err
		}
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, id, reopened.MetaRoot())
	got, err := reopened.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// Scenario 5: reuse after two commits.
func TestReuseAfterTwoCommits(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	var pageA PageID
	err := s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		pageA = id
		buf := make([]byte, testPageSize)
		buf[0] = 0x01
		if err := b.Write(ctx, id, buf); err != nil {
			return err
		}
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)

	err = s.Modify(ctx, func(b WriteBatch) error {
		pageB, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		if err := b.Free(ctx, pageA); err != nil {
			return err
		}
		b.SetMetaRoot(ctx, pageB)
		return nil
	})
	require.NoError(t, err)

	var pageC PageID
	err = s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		pageC = id
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, pageA, pageC)
}

// Scenario 6: startup-completed reclamation — close right after the second
// commit (before a third transaction's pending-link would have run) and
// confirm reopening still hands page A back out first.
func TestStartupCompletedReclamation(t *testing.T) {
	s, path := openTempStore(t)
	ctx := context.Background()

	var pageA PageID
	err := s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		pageA = id
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)

	err = s.Modify(ctx, func(b WriteBatch) error {
		pageB, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		if err := b.Free(ctx, pageA); err != nil {
			return err
		}
		b.SetMetaRoot(ctx, pageB)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var pageC PageID
	err = reopened.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		pageC = id
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, pageA, pageC)
}

// Scenario 7: rollback transparency.
func TestRollbackTransparency(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	var root PageID
	err := s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		root = id
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)

	wantPageCount := s.pageCount
	wantFreeHead := s.freeListHead

	err = s.Modify(ctx, func(b WriteBatch) error {
		newID, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		buf := make([]byte, testPageSize)
		buf[0] = 0xFF
		if err := b.Write(ctx, newID, buf); err != nil {
			return err
		}
		b.SetMetaRoot(ctx, newID)
		return errRaised
	})
	require.ErrorIs(t, err, errRaised)

	require.Equal(t, root, s.MetaRoot())
	require.Equal(t, wantPageCount, s.pageCount)
	require.Equal(t, wantFreeHead, s.freeListHead)
}

// A panicking callback is rolled back and the panic propagates unchanged to
// the caller when rollback itself succeeds.
func TestModifyRollsBackAndRepanicsOnCallbackPanic(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	wantRoot := s.MetaRoot()

	require.Panics(t, func() {
		_ = s.Modify(ctx, func(b WriteBatch) error {
			_, _ = b.Allocate(ctx)
			panic("callback exploded")
		})
	})

	require.False(t, s.txActive)
	require.Equal(t, wantRoot, s.MetaRoot())
}

// Scenario 8: precondition — a write buffer of the wrong length raises and
// leaves state untouched.
func TestWriteWrongSizeIsPrecondition(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	wantRoot := s.MetaRoot()
	wantPageCount := s.pageCount

	err := s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		return b.Write(ctx, id, make([]byte, 10))
	})
	require.ErrorIs(t, err, ErrWrongPageSize)

	require.Equal(t, wantRoot, s.MetaRoot())
	require.Equal(t, wantPageCount, s.pageCount)
}

func TestWriteRejectsHeaderPage(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	err := s.Modify(ctx, func(b WriteBatch) error {
		return b.Write(ctx, PageID(0), make([]byte, testPageSize))
	})
	require.ErrorIs(t, err, ErrInvalidPageID)
}

func TestFreeRejectsHeaderPage(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	err := s.Modify(ctx, func(b WriteBatch) error {
		return b.Free(ctx, PageID(1))
	})
	require.ErrorIs(t, err, ErrInvalidPageID)
}

func TestReadRejectsInvalidPageID(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	_, err := s.Read(ctx, PageID(0))
	require.ErrorIs(t, err, ErrInvalidPageID)

	_, err = s.Read(ctx, PageID(999))
	require.ErrorIs(t, err, ErrInvalidPageID)
}

// Epoch monotonicity: each successful commit advances the epoch by exactly 1.
func TestEpochMonotonicity(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	require.Equal(t, uint64(0), s.epoch)

	for i := uint64(1); i <= 5; i++ {
		err := s.Modify(ctx, func(b WriteBatch) error {
			_, err := b.Allocate(ctx)
			return err
		})
		require.NoError(t, err)
		require.Equal(t, i, s.epoch)
	}

	// A rolled-back commit must not advance the epoch.
	before := s.epoch
	err := s.Modify(ctx, func(b WriteBatch) error {
		return errRaised
	})
	require.ErrorIs(t, err, errRaised)
	require.Equal(t, before, s.epoch)
}

func TestBeginTransactionRejectsConcurrentTransaction(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = s.BeginTransaction(ctx)
	require.ErrorIs(t, err, ErrTransactionActive)
}

func TestTransactionOperationsRejectedAfterCommit(t *testing.T) {
	s, _ := openTempStore(t)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	require.False(t, tx.IsActive())
	_, err = tx.Allocate(ctx)
	require.ErrorIs(t, err, ErrTransactionClosed)
	require.ErrorIs(t, tx.Commit(ctx), ErrTransactionClosed)
	require.ErrorIs(t, tx.Rollback(ctx), ErrTransactionClosed)
}

// Header selection: Open must pick the header slot with the higher epoch
// when both slots parse, modelling a crash that left the stale slot intact.
func TestOpenSelectsHigherEpochWhenBothSlotsValid(t *testing.T) {
	f := newFakeFile()
	s, err := createWithFile(f, testPageSize)
	require.NoError(t, err)

	ctx := context.Background()
	err = s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)
	wantRoot := s.MetaRoot()
	wantEpoch := s.epoch

	reopened, err := openWithFile(f)
	require.NoError(t, err)
	require.Equal(t, wantRoot, reopened.MetaRoot())
	require.Equal(t, wantEpoch, reopened.epoch)
}

// Header selection: if the freshest slot is corrupted (modelling a crash
// mid-write), open must fall back to the immediately prior committed state
// rather than fail outright.
func TestOpenFallsBackWhenFreshestSlotCorrupt(t *testing.T) {
	f := newFakeFile()
	s, err := createWithFile(f, testPageSize)
	require.NoError(t, err)

	ctx := context.Background()
	var firstRoot PageID
	err = s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		firstRoot = id
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)

	err = s.Modify(ctx, func(b WriteBatch) error {
		id, err := b.Allocate(ctx)
		if err != nil {
			return err
		}
		b.SetMetaRoot(ctx, id)
		return nil
	})
	require.NoError(t, err)

	// The slot that now holds the freshest header is the one just written
	// to; corrupt it to model a crash partway through the fsync that would
	// have made it durable.
	freshestSlot := s.activeSlot
	f.corrupt(int64(freshestSlot) * int64(testPageSize))

	reopened, err := openWithFile(f)
	require.NoError(t, err)
	require.Equal(t, firstRoot, reopened.MetaRoot())
}

// Header selection: both slots unreadable is unrecoverable corruption.
func TestOpenFailsWhenBothSlotsCorrupt(t *testing.T) {
	f := newFakeFile()
	_, err := createWithFile(f, testPageSize)
	require.NoError(t, err)

	f.truncateSlot(0, testPageSize)
	f.truncateSlot(testPageSize, testPageSize)

	_, err = openWithFile(f)
	require.ErrorIs(t, err, ErrCorruptStore)
}
