package page

import (
	"xengine/common"
	"xengine/util"
)

// IndexPageType B+树页面类型
type IndexPageType uint32

const (
	INVALID_INDEX_PAGE IndexPageType = iota // 未初始化
	LEAF_PAGE                               // 叶子页
	INTERNAL_PAGE                           // 内部页
)

// 页面公共头布局，共24字节:
// page_type(u4) | lsn(u4) | size(4) | max_size(4) | parent_id(4) | page_id(4)
const (
	offPageType = 0
	offLSN      = 4
	offSize     = 8
	offMaxSize  = 12
	offParentID = 16
	offPageID   = 20

	// BPlusTreeHeaderSize 公共头大小
	BPlusTreeHeaderSize = 24
)

// BPlusTreePage 叶子页与内部页的公共头访问器，直接落在页面字节上
type BPlusTreePage struct {
	page *Page
}

// AsBPlusTreePage 以B+树页头视角解读页面
func AsBPlusTreePage(p *Page) *BPlusTreePage {
	return &BPlusTreePage{page: p}
}

// Page 底层页面
func (bp *BPlusTreePage) Page() *Page {
	return bp.page
}

func (bp *BPlusTreePage) data() []byte {
	return bp.page.Data()
}

// PageType 页面类型
func (bp *BPlusTreePage) PageType() IndexPageType {
	return IndexPageType(util.ReadUB4(bp.data(), offPageType))
}

// SetPageType 设置页面类型
func (bp *BPlusTreePage) SetPageType(t IndexPageType) {
	util.WriteUB4(bp.data(), offPageType, uint32(t))
}

// IsLeafPage 是否叶子页
func (bp *BPlusTreePage) IsLeafPage() bool {
	return bp.PageType() == LEAF_PAGE
}

// IsRootPage 是否根页面
func (bp *BPlusTreePage) IsRootPage() bool {
	return bp.ParentPageID() == common.InvalidPageID
}

// LSN 页面日志序列号
func (bp *BPlusTreePage) LSN() common.LSN {
	return common.LSN(util.ReadUB4(bp.data(), offLSN))
}

// SetLSN 设置日志序列号
func (bp *BPlusTreePage) SetLSN(lsn common.LSN) {
	util.WriteUB4(bp.data(), offLSN, uint32(lsn))
}

// Size 当前条目数
func (bp *BPlusTreePage) Size() int {
	return int(util.ReadB4(bp.data(), offSize))
}

// SetSize 设置条目数
func (bp *BPlusTreePage) SetSize(size int) {
	util.WriteB4(bp.data(), offSize, int32(size))
}

// IncSize 条目数增加delta
func (bp *BPlusTreePage) IncSize(delta int) {
	bp.SetSize(bp.Size() + delta)
}

// MaxSize 容量上限
func (bp *BPlusTreePage) MaxSize() int {
	return int(util.ReadB4(bp.data(), offMaxSize))
}

// SetMaxSize 设置容量上限
func (bp *BPlusTreePage) SetMaxSize(maxSize int) {
	util.WriteB4(bp.data(), offMaxSize, int32(maxSize))
}

// MinSize 下限，根页面除外为容量上限的一半向上取整
func (bp *BPlusTreePage) MinSize() int {
	return (bp.MaxSize() + 1) / 2
}

// ParentPageID 父页面号
func (bp *BPlusTreePage) ParentPageID() common.PageID {
	return common.PageID(util.ReadB4(bp.data(), offParentID))
}

// SetParentPageID 设置父页面号
func (bp *BPlusTreePage) SetParentPageID(id common.PageID) {
	util.WriteB4(bp.data(), offParentID, int32(id))
}

// PageID 头中记录的本页页号
func (bp *BPlusTreePage) PageID() common.PageID {
	return common.PageID(util.ReadB4(bp.data(), offPageID))
}

// SetPageID 设置本页页号
func (bp *BPlusTreePage) SetPageID(id common.PageID) {
	util.WriteB4(bp.data(), offPageID, int32(id))
}
