package pagestore

import "hash/crc32"

// ieeeTable is the standard library's precomputed 256-entry CRC-32 table for
// the reflected IEEE 802.3 polynomial (0xEDB88320). The header codec uses it
// directly rather than pulling in a third-party CRC package.
var ieeeTable = crc32.IEEETable

// checksum computes the CRC-32 (IEEE, reflected, init 0xFFFFFFFF, xorout
// 0xFFFFFFFF) of data.
func checksum(data []byte) uint32 {
	return crc32.Checksum(data, ieeeTable)
}

// checksumRange computes the checksum of data[offset:offset+length] without
// copying the slice.
func checksumRange(data []byte, offset, length int) uint32 {
	return checksum(data[offset : offset+length])
}
