package buffer

import "errors"

var (
	// 替换器错误
	ErrFrameNotTracked   = errors.New("frame is not tracked by replacer")
	ErrFrameNotEvictable = errors.New("frame is not evictable")

	// 缓冲池错误
	ErrBufferExhausted = errors.New("no free or evictable frame in buffer pool")
	ErrInvalidConfig   = errors.New("invalid buffer pool configuration")
)
