package pagestore

import "fmt"

const (
	magic          = "PGST"
	formatVersion  = uint32(1)
	headerPages    = 2  // pages 0 and 1 are always reserved headers
	fixedFieldSize = 34 // magic(4) + version(4) + pageSize(4) + pageCount(4) + epoch(8) + metaRoot(4) + freeListHead(4) + pendingCount(2)
	checksumSize   = 4
)

// maxPendingFree returns the largest number of pending-free page ids that
// fit in a single header of the given page size.
func maxPendingFree(pageSize uint32) int {
	return (int(pageSize) - fixedFieldSize - checksumSize) / 4
}

// header is the parsed form of the record written into page 0 or page 1.
type header struct {
	Version      uint32
	PageSize     uint32
	PageCount    uint32
	Epoch        uint64
	MetaRoot     PageID
	FreeListHead PageID
	PendingFree  []PageID
}

// encodeHeader serializes h into a buffer of exactly pageSize bytes. Bytes
// past the checksum are left zero.
func encodeHeader(h header, pageSize uint32) []byte {
	buf := make([]byte, pageSize)

	i := 0
	copy(buf[i:i+4], magic)
	i += 4
	putUint32(buf, h.Version, i)
	i += 4
	putUint32(buf, h.PageSize, i)
	i += 4
	putUint32(buf, h.PageCount, i)
	i += 4
	putUint64(buf, h.Epoch, i)
	i += 8
	putUint32(buf, uint32(h.MetaRoot), i)
	i += 4
	putUint32(buf, uint32(h.FreeListHead), i)
	i += 4
	putUint16(buf, uint16(len(h.PendingFree)), i)
	i += 2

	for _, p := range h.PendingFree {
		putUint32(buf, uint32(p), i)
		i += 4
	}

	sum := checksumRange(buf, 0, i)
	putUint32(buf, sum, i)

	return buf
}

// decodeHeader parses buf (which must be exactly pageSize bytes, or at
// least long enough to hold the fixed fields) into a header record, or
// returns errHeaderInvalid if buf does not hold a valid, checksum-verified
// header.
func decodeHeader(buf []byte, pageSize uint32) (*header, error) {
	if len(buf) < fixedFieldSize+checksumSize {
		return nil, fmt.Errorf("%w: buffer too short", errHeaderInvalid)
	}
	if string(buf[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", errHeaderInvalid)
	}

	i := 4
	version := uint32At(buf, i)
	i += 4
	pgSize := uint32At(buf, i)
	i += 4
	pageCount := uint32At(buf, i)
	i += 4
	epoch := uint64At(buf, i)
	i += 8
	metaRoot := PageID(uint32At(buf, i))
	i += 4
	freeListHead := PageID(uint32At(buf, i))
	i += 4
	pendingCount := int(uint16At(buf, i))
	i += 2

	if pendingCount > maxPendingFree(pageSize) {
		return nil, fmt.Errorf("%w: pendingFree count %d exceeds capacity", errHeaderInvalid, pendingCount)
	}

	checksumOffset := fixedFieldSize + pendingCount*4
	if checksumOffset+checksumSize > len(buf) {
		return nil, fmt.Errorf("%w: checksum region past end of buffer", errHeaderInvalid)
	}

	pending := make([]PageID, pendingCount)
	for k := 0; k < pendingCount; k++ {
		pending[k] = PageID(uint32At(buf, fixedFieldSize+k*4))
	}

	want := checksumRange(buf, 0, checksumOffset)
	got := uint32At(buf, checksumOffset)
	if got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", errHeaderInvalid)
	}

	return &header{
		Version:      version,
		PageSize:     pgSize,
		PageCount:    pageCount,
		Epoch:        epoch,
		MetaRoot:     metaRoot,
		FreeListHead: freeListHead,
		PendingFree:  pending,
	}, nil
}
