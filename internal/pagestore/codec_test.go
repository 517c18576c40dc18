package pagestore

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func TestUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	for i := 0; i < 50; i++ {
		n := gofakeit.Uint32()
		putUint32(buf, n, 0)
		require.Equal(t, n, uint32At(buf, 0))
	}
}

func TestUint64RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	for i := 0; i < 50; i++ {
		n := gofakeit.Uint64()
		putUint64(buf, n, 0)
		require.Equal(t, n, uint64At(buf, 0))
	}
}

func TestUint32BigEndianByteOrder(t *testing.T) {
	buf := make([]byte, 4)
	putUint32(buf, 0x01020304, 0)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
}

func TestUint16RoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	putUint16(buf, 0xABCD, 0)
	require.Equal(t, []byte{0xAB, 0xCD}, buf)
	require.Equal(t, uint16(0xABCD), uint16At(buf, 0))
}
