package common

// PageID 页面逻辑标识，由缓冲池单调分配
type PageID int32

// FrameID 缓冲池帧槽位标识，取值范围 [0, pool_pages)
type FrameID int32

// TxnID 事务标识，单调递增，值越大事务越年轻
type TxnID int32

// TableOID 表对象标识
type TableOID uint32

// LSN 日志序列号
type LSN uint32

const (
	// InvalidPageID 无效页面
	InvalidPageID PageID = -1
	// HeaderPageID 头页面固定为0号页
	HeaderPageID PageID = 0
	// InvalidTxnID 无效事务
	InvalidTxnID TxnID = -1
)

// DefaultPageSize 默认页面大小（字节）
const DefaultPageSize = 4096
