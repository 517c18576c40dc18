package pagestore

import "context"

// WriteBatch is the narrower capability surface handed to a Modify
// callback: allocate, read, write, free and set the root, with no way to
// commit or roll back directly (that's the enclosing Transaction's job).
// context.Context is accepted on Read/Write/Free/Allocate for parity with
// the store's other methods, though no operation here blocks on it, since
// the store has no asynchronous work to cancel.
type WriteBatch interface {
	Allocate(ctx context.Context) (PageID, error)
	Read(ctx context.Context, id PageID) ([]byte, error)
	Write(ctx context.Context, id PageID, data []byte) error
	Free(ctx context.Context, id PageID) error
	SetMetaRoot(ctx context.Context, id PageID)
}
