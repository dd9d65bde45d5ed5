package index

import "errors"

var (
	// ErrOutOfMemory 结构调整过程中缓冲池无法分配新页面
	ErrOutOfMemory = errors.New("buffer pool cannot allocate page for index operation")
)
