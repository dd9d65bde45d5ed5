package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteUtil(t *testing.T) {
	buf := make([]byte, 32)

	WriteUB4(buf, 0, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), ReadUB4(buf, 0))

	WriteB4(buf, 4, -1)
	assert.Equal(t, int32(-1), ReadB4(buf, 4))

	WriteB8(buf, 8, -1234567890123)
	assert.Equal(t, int64(-1234567890123), ReadB8(buf, 8))

	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, ConvertInt4Bytes(-1))
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, ConvertUInt4Bytes(0x12345678))
}

func TestHashCode(t *testing.T) {
	a := HashCode([]byte("page-1"))
	b := HashCode([]byte("page-1"))
	c := HashCode([]byte("page-2"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
