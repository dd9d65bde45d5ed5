package page

import (
	"fmt"
	"sort"

	"xengine/common"
	"xengine/util"
)

// 内部页布局: 公共头(24) + size个(key i64, child i32)，下标0的键为哨兵不参与比较
const (
	// InternalHeaderSize 内部页头大小
	InternalHeaderSize = 24
	// InternalPairSize 内部页单条目大小
	InternalPairSize = 12
)

// InternalCapacity 给定页面大小能容纳的内部条目数
func InternalCapacity(pageSize int) int {
	return (pageSize - InternalHeaderSize) / InternalPairSize
}

// BPlusTreeInternalPage 内部页访问器
//
// 条目i(i>=1)的键是child_{i-1}与child_i的分隔键：child_i子树内所有键不小于key_i。
type BPlusTreeInternalPage struct {
	BPlusTreePage
}

// AsInternalPage 以内部页视角解读页面
func AsInternalPage(p *Page) *BPlusTreeInternalPage {
	return &BPlusTreeInternalPage{BPlusTreePage{page: p}}
}

// Init 初始化内部页
func (ip *BPlusTreeInternalPage) Init(pageID, parentID common.PageID, maxSize int) {
	ip.SetPageType(INTERNAL_PAGE)
	ip.SetLSN(0)
	ip.SetSize(0)
	ip.SetMaxSize(maxSize)
	ip.SetParentPageID(parentID)
	ip.SetPageID(pageID)
}

func (ip *BPlusTreeInternalPage) pairOffset(index int) int {
	return InternalHeaderSize + index*InternalPairSize
}

// KeyAt 下标处的键
func (ip *BPlusTreeInternalPage) KeyAt(index int) int64 {
	ip.checkIndex(index)
	return util.ReadB8(ip.data(), ip.pairOffset(index))
}

// SetKeyAt 设置下标处的键
func (ip *BPlusTreeInternalPage) SetKeyAt(index int, key int64) {
	ip.checkIndex(index)
	util.WriteB8(ip.data(), ip.pairOffset(index), key)
}

// ChildAt 下标处的子页面号
func (ip *BPlusTreeInternalPage) ChildAt(index int) common.PageID {
	ip.checkIndex(index)
	return common.PageID(util.ReadB4(ip.data(), ip.pairOffset(index)+8))
}

// SetChildAt 设置下标处的子页面号
func (ip *BPlusTreeInternalPage) SetChildAt(index int, child common.PageID) {
	ip.checkIndex(index)
	util.WriteB4(ip.data(), ip.pairOffset(index)+8, int32(child))
}

// ChildIndex 子页面号所在的下标，不存在返回-1
func (ip *BPlusTreeInternalPage) ChildIndex(child common.PageID) int {
	for i := 0; i < ip.Size(); i++ {
		if ip.ChildAt(i) == child {
			return i
		}
	}
	return -1
}

// Lookup 按键下降应走的子页面
func (ip *BPlusTreeInternalPage) Lookup(key int64) common.PageID {
	size := ip.Size()
	// 在[1, size)内找第一个key_i > key，则目标为其左侧子节点
	idx := sort.Search(size-1, func(i int) bool {
		return ip.KeyAt(i+1) > key
	})
	return ip.ChildAt(idx)
}

// PopulateNewRoot 新根承接分裂出的左右子节点
func (ip *BPlusTreeInternalPage) PopulateNewRoot(left common.PageID, key int64, right common.PageID) {
	ip.SetChildAt(0, left)
	ip.SetKeyAt(1, key)
	ip.SetChildAt(1, right)
	ip.SetSize(2)
}

// InsertNodeAfter 在oldChild之后插入(key, newChild)，返回新条目数
func (ip *BPlusTreeInternalPage) InsertNodeAfter(oldChild common.PageID, key int64, newChild common.PageID) int {
	idx := ip.ChildIndex(oldChild)
	if idx < 0 {
		panic(fmt.Sprintf("child %d not found in internal page %d", oldChild, ip.PageID()))
	}
	ip.shiftRight(idx + 1)
	ip.setEntryAt(idx+1, key, newChild)
	ip.IncSize(1)
	return ip.Size()
}

// Remove 删除下标处的条目
func (ip *BPlusTreeInternalPage) Remove(index int) {
	ip.checkIndex(index)
	ip.shiftLeft(index)
	ip.IncSize(-1)
}

func (ip *BPlusTreeInternalPage) setEntryAt(index int, key int64, child common.PageID) {
	off := ip.pairOffset(index)
	util.WriteB8(ip.data(), off, key)
	util.WriteB4(ip.data(), off+8, int32(child))
}

// shiftRight 将[index, size)整体右移一格
func (ip *BPlusTreeInternalPage) shiftRight(index int) {
	data := ip.data()
	start := ip.pairOffset(index)
	end := ip.pairOffset(ip.Size())
	copy(data[start+InternalPairSize:end+InternalPairSize], data[start:end])
}

// shiftLeft 将(index, size)整体左移一格覆盖index
func (ip *BPlusTreeInternalPage) shiftLeft(index int) {
	data := ip.data()
	start := ip.pairOffset(index)
	end := ip.pairOffset(ip.Size())
	copy(data[start:], data[start+InternalPairSize:end])
}

// CopyAllFrom 将src整页条目复制进来（用于超容暂存页）
func (ip *BPlusTreeInternalPage) CopyAllFrom(src *BPlusTreeInternalPage) {
	size := src.Size()
	data := ip.data()
	srcData := src.data()
	copy(data[InternalHeaderSize:], srcData[InternalHeaderSize:src.pairOffset(size)])
	ip.SetSize(size)
}

// MoveHalfTo 分裂时将后半部分条目移入新内部页
//
// 新页下标0条目的键即上推的分隔键，之后退化为哨兵。子节点的parent指针
// 由树层负责改写。
func (ip *BPlusTreeInternalPage) MoveHalfTo(recipient *BPlusTreeInternalPage) {
	size := ip.Size()
	keep := (size + 1) / 2
	moved := 0
	for i := keep; i < size; i++ {
		recipient.setEntryAt(moved, ip.KeyAt(i), ip.ChildAt(i))
		moved++
	}
	ip.SetSize(keep)
	recipient.SetSize(moved)
}

// MoveAllTo 合并时将全部条目追加到左兄弟，middleKey为父节点中的分隔键
func (ip *BPlusTreeInternalPage) MoveAllTo(recipient *BPlusTreeInternalPage, middleKey int64) {
	dstSize := recipient.Size()
	size := ip.Size()
	recipient.setEntryAt(dstSize, middleKey, ip.ChildAt(0))
	for i := 1; i < size; i++ {
		recipient.setEntryAt(dstSize+i, ip.KeyAt(i), ip.ChildAt(i))
	}
	recipient.SetSize(dstSize + size)
	ip.SetSize(0)
}

// MoveLastToFrontOf 从左兄弟借出末尾条目，middleKey为父节点中的分隔键
func (ip *BPlusTreeInternalPage) MoveLastToFrontOf(recipient *BPlusTreeInternalPage, middleKey int64) {
	last := ip.Size() - 1
	child := ip.ChildAt(last)
	ip.IncSize(-1)

	recipient.shiftRight(0)
	recipient.setEntryAt(0, 0, child)
	recipient.SetKeyAt(1, middleKey)
	recipient.IncSize(1)
}

// StolenLastKey 借出末尾条目前读取其键，作为父节点新的分隔键
func (ip *BPlusTreeInternalPage) StolenLastKey() int64 {
	return ip.KeyAt(ip.Size() - 1)
}

// MoveFirstToEndOf 从右兄弟借出首条目，middleKey为父节点中的分隔键
func (ip *BPlusTreeInternalPage) MoveFirstToEndOf(recipient *BPlusTreeInternalPage, middleKey int64) {
	child := ip.ChildAt(0)
	ip.shiftLeft(0)
	ip.IncSize(-1)

	recipient.setEntryAt(recipient.Size(), middleKey, child)
	recipient.IncSize(1)
}

func (ip *BPlusTreeInternalPage) checkIndex(index int) {
	if index < 0 || index > ip.MaxSize()+1 {
		panic(fmt.Sprintf("internal index %d out of range, max_size %d", index, ip.MaxSize()))
	}
}
