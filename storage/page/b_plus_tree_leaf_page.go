package page

import (
	"fmt"
	"sort"

	"xengine/common"
	"xengine/util"
)

// 叶子页布局: 公共头(24) + next_page_id(4) + size个(key i64, rid i32+i32)
const (
	offNextPageID = 24

	// LeafHeaderSize 叶子页头大小
	LeafHeaderSize = 28
	// LeafPairSize 叶子页单条目大小
	LeafPairSize = 16
)

// LeafCapacity 给定页面大小能容纳的叶子条目数，取偶数保证分裂后两半均不低于下限
func LeafCapacity(pageSize int) int {
	capacity := (pageSize - LeafHeaderSize) / LeafPairSize
	return capacity &^ 1
}

// BPlusTreeLeafPage 叶子页访问器
type BPlusTreeLeafPage struct {
	BPlusTreePage
}

// AsLeafPage 以叶子页视角解读页面
func AsLeafPage(p *Page) *BPlusTreeLeafPage {
	return &BPlusTreeLeafPage{BPlusTreePage{page: p}}
}

// Init 初始化叶子页
func (lp *BPlusTreeLeafPage) Init(pageID, parentID common.PageID, maxSize int) {
	lp.SetPageType(LEAF_PAGE)
	lp.SetLSN(0)
	lp.SetSize(0)
	lp.SetMaxSize(maxSize)
	lp.SetParentPageID(parentID)
	lp.SetPageID(pageID)
	lp.SetNextPageID(common.InvalidPageID)
}

// NextPageID 右兄弟页号
func (lp *BPlusTreeLeafPage) NextPageID() common.PageID {
	return common.PageID(util.ReadB4(lp.data(), offNextPageID))
}

// SetNextPageID 设置右兄弟页号
func (lp *BPlusTreeLeafPage) SetNextPageID(id common.PageID) {
	util.WriteB4(lp.data(), offNextPageID, int32(id))
}

func (lp *BPlusTreeLeafPage) pairOffset(index int) int {
	return LeafHeaderSize + index*LeafPairSize
}

// KeyAt 下标处的键
func (lp *BPlusTreeLeafPage) KeyAt(index int) int64 {
	lp.checkIndex(index)
	return util.ReadB8(lp.data(), lp.pairOffset(index))
}

// RIDAt 下标处的行标识
func (lp *BPlusTreeLeafPage) RIDAt(index int) common.RID {
	lp.checkIndex(index)
	off := lp.pairOffset(index)
	return common.RID{
		PageID:  common.PageID(util.ReadB4(lp.data(), off+8)),
		SlotNum: util.ReadB4(lp.data(), off+12),
	}
}

func (lp *BPlusTreeLeafPage) setPairAt(index int, key int64, rid common.RID) {
	off := lp.pairOffset(index)
	util.WriteB8(lp.data(), off, key)
	util.WriteB4(lp.data(), off+8, int32(rid.PageID))
	util.WriteB4(lp.data(), off+12, rid.SlotNum)
}

// KeyIndex 第一个键不小于key的下标，不存在时返回size
func (lp *BPlusTreeLeafPage) KeyIndex(key int64) int {
	size := lp.Size()
	return sort.Search(size, func(i int) bool {
		return lp.KeyAt(i) >= key
	})
}

// Lookup 精确查找
func (lp *BPlusTreeLeafPage) Lookup(key int64) (common.RID, bool) {
	idx := lp.KeyIndex(key)
	if idx < lp.Size() && lp.KeyAt(idx) == key {
		return lp.RIDAt(idx), true
	}
	return common.RID{}, false
}

// Insert 有序插入，返回插入后的条目数。键已存在时不修改
func (lp *BPlusTreeLeafPage) Insert(key int64, rid common.RID) int {
	idx := lp.KeyIndex(key)
	size := lp.Size()
	if idx < size && lp.KeyAt(idx) == key {
		return size
	}
	lp.shiftRight(idx)
	lp.setPairAt(idx, key, rid)
	lp.IncSize(1)
	return size + 1
}

// Remove 删除键，返回是否删除
func (lp *BPlusTreeLeafPage) Remove(key int64) bool {
	idx := lp.KeyIndex(key)
	if idx >= lp.Size() || lp.KeyAt(idx) != key {
		return false
	}
	lp.shiftLeft(idx)
	lp.IncSize(-1)
	return true
}

// shiftRight 将[index, size)整体右移一格
func (lp *BPlusTreeLeafPage) shiftRight(index int) {
	data := lp.data()
	start := lp.pairOffset(index)
	end := lp.pairOffset(lp.Size())
	copy(data[start+LeafPairSize:end+LeafPairSize], data[start:end])
}

// shiftLeft 将(index, size)整体左移一格覆盖index
func (lp *BPlusTreeLeafPage) shiftLeft(index int) {
	data := lp.data()
	start := lp.pairOffset(index)
	end := lp.pairOffset(lp.Size())
	copy(data[start:], data[start+LeafPairSize:end])
}

// MoveHalfTo 分裂时将后半部分条目移入新叶子
func (lp *BPlusTreeLeafPage) MoveHalfTo(recipient *BPlusTreeLeafPage) {
	size := lp.Size()
	keep := size - size/2
	moved := 0
	for i := keep; i < size; i++ {
		recipient.setPairAt(moved, lp.KeyAt(i), lp.RIDAt(i))
		moved++
	}
	lp.SetSize(keep)
	recipient.SetSize(moved)
}

// MoveAllTo 合并时将全部条目追加到左兄弟，接管next指针
func (lp *BPlusTreeLeafPage) MoveAllTo(recipient *BPlusTreeLeafPage) {
	dstSize := recipient.Size()
	size := lp.Size()
	for i := 0; i < size; i++ {
		recipient.setPairAt(dstSize+i, lp.KeyAt(i), lp.RIDAt(i))
	}
	recipient.SetSize(dstSize + size)
	recipient.SetNextPageID(lp.NextPageID())
	lp.SetSize(0)
}

// MoveLastToFrontOf 从左兄弟借出末尾条目
func (lp *BPlusTreeLeafPage) MoveLastToFrontOf(recipient *BPlusTreeLeafPage) {
	last := lp.Size() - 1
	key, rid := lp.KeyAt(last), lp.RIDAt(last)
	lp.IncSize(-1)

	recipient.shiftRight(0)
	recipient.setPairAt(0, key, rid)
	recipient.IncSize(1)
}

// MoveFirstToEndOf 从右兄弟借出首条目
func (lp *BPlusTreeLeafPage) MoveFirstToEndOf(recipient *BPlusTreeLeafPage) {
	key, rid := lp.KeyAt(0), lp.RIDAt(0)
	lp.shiftLeft(0)
	lp.IncSize(-1)

	recipient.setPairAt(recipient.Size(), key, rid)
	recipient.IncSize(1)
}

func (lp *BPlusTreeLeafPage) checkIndex(index int) {
	if index < 0 || index >= lp.MaxSize()+1 {
		panic(fmt.Sprintf("leaf index %d out of range, max_size %d", index, lp.MaxSize()))
	}
}
