package util

import "encoding/binary"

// 页面内定长编码统一使用小端字节序

// ReadUB4 读取小端uint32
func ReadUB4(buf []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(buf[offset : offset+4])
}

// WriteUB4 写入小端uint32
func WriteUB4(buf []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], value)
}

// ReadB4 读取小端int32
func ReadB4(buf []byte, offset int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))
}

// WriteB4 写入小端int32
func WriteB4(buf []byte, offset int, value int32) {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(value))
}

// ReadB8 读取小端int64
func ReadB8(buf []byte, offset int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[offset : offset+8]))
}

// WriteB8 写入小端int64
func WriteB8(buf []byte, offset int, value int64) {
	binary.LittleEndian.PutUint64(buf[offset:offset+8], uint64(value))
}

// ConvertInt4Bytes int32转小端4字节
func ConvertInt4Bytes(value int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(value))
	return buf[:]
}

// ConvertUInt4Bytes uint32转小端4字节
func ConvertUInt4Bytes(value uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return buf[:]
}
