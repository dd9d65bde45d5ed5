package disk

import "errors"

var (
	// 文件错误
	ErrClosed       = errors.New("disk manager is closed")
	ErrFileLocked   = errors.New("data file is locked by another process")
	ErrInvalidPage  = errors.New("invalid page id")
	ErrShortBuffer  = errors.New("page buffer size mismatch")
	ErrCorruptFrame = errors.New("compressed page frame is corrupted")
)
