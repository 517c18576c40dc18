package pagestore

import (
	"io"
	"os"
)

// FileHandle is the random-access file abstraction the store depends on as
// an external collaborator: an absolute seek, a fill-or-fail read, a write
// of an exact length at the current position, fsync and close. Narrowed to
// the operations the commit/read paths actually issue so a test fake does
// not need to implement pread/pwrite semantics.
type FileHandle interface {
	Seek(offset int64) error
	ReadFully(buf []byte) error
	Write(buf []byte, off, length int) (int, error)
	Sync() error
	Close() error
}

// osFileHandle is the default FileHandle backed by a real *os.File.
type osFileHandle struct {
	f *os.File
}

// OpenFileHandle opens path with the given flags, wrapping it as a
// FileHandle. Callers needing an isolated fake (e.g. to model a crash at a
// specific byte offset) can implement FileHandle directly instead.
func OpenFileHandle(path string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &osFileHandle{f: f}, nil
}

func (o *osFileHandle) Seek(offset int64) error {
	_, err := o.f.Seek(offset, io.SeekStart)
	return err
}

func (o *osFileHandle) ReadFully(buf []byte) error {
	_, err := io.ReadFull(o.f, buf)
	return err
}

func (o *osFileHandle) Write(buf []byte, off, length int) (int, error) {
	return o.f.Write(buf[off : off+length])
}

func (o *osFileHandle) Sync() error {
	return o.f.Sync()
}

func (o *osFileHandle) Close() error {
	return o.f.Close()
}

// writeFullAt seeks to offset and writes all of buf, a convenience wrapper
// used throughout the commit and reclamation paths.
func writeFullAt(f FileHandle, offset int64, buf []byte) error {
	if err := f.Seek(offset); err != nil {
		return err
	}
	_, err := f.Write(buf, 0, len(buf))
	return err
}

// readFullAt seeks to offset and fills buf entirely.
func readFullAt(f FileHandle, offset int64, buf []byte) error {
	if err := f.Seek(offset); err != nil {
		return err
	}
	return f.ReadFully(buf)
}
