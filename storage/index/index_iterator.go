package index

import (
	"github.com/pkg/errors"

	"xengine/buffer"
	"xengine/common"
	"xengine/storage/page"
)

// IndexIterator 叶子链上的正向迭代器
//
// 迭代器固定当前叶子页，前进到下一叶子时释放上一页。用毕必须调用
// Close释放最后一页。
type IndexIterator struct {
	bpm     *buffer.BufferPoolManager
	leafRaw *page.Page
	leaf    *page.BPlusTreeLeafPage
	index   int
}

// newIndexIterator leafRaw为nil时表示尾后迭代器
func newIndexIterator(bpm *buffer.BufferPoolManager, leafRaw *page.Page, index int) *IndexIterator {
	it := &IndexIterator{bpm: bpm, leafRaw: leafRaw, index: index}
	if leafRaw != nil {
		it.leaf = page.AsLeafPage(leafRaw)
	}
	return it
}

// IsEnd 是否到达尾后位置
func (it *IndexIterator) IsEnd() bool {
	return it.leafRaw == nil
}

// Key 当前键
func (it *IndexIterator) Key() int64 {
	return it.leaf.KeyAt(it.index)
}

// RID 当前行标识
func (it *IndexIterator) RID() common.RID {
	return it.leaf.RIDAt(it.index)
}

// Next 前进一个位置，越过叶子尾部时沿next指针换页
func (it *IndexIterator) Next() error {
	if it.IsEnd() {
		return nil
	}
	it.index++
	if it.index < it.leaf.Size() {
		return nil
	}
	return it.advanceLeaf()
}

// advanceLeaf 换到下一叶子页并释放当前页
func (it *IndexIterator) advanceLeaf() error {
	nextID := it.leaf.NextPageID()
	it.bpm.UnpinPage(it.leafRaw.ID(), false)
	if nextID == common.InvalidPageID {
		it.leafRaw = nil
		it.leaf = nil
		return nil
	}

	nextRaw, err := it.bpm.FetchPage(nextID)
	if err != nil {
		it.leafRaw = nil
		it.leaf = nil
		return errors.Wrapf(err, "advance to leaf %d", nextID)
	}
	it.leafRaw = nextRaw
	it.leaf = page.AsLeafPage(nextRaw)
	it.index = 0
	return nil
}

// Close 提前结束迭代时释放当前页
func (it *IndexIterator) Close() {
	if it.leafRaw != nil {
		it.bpm.UnpinPage(it.leafRaw.ID(), false)
		it.leafRaw = nil
		it.leaf = nil
	}
}

// Begin 定位到最左叶子的第一个条目
func (t *BPlusTree) Begin() (*IndexIterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == common.InvalidPageID {
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	leafRaw, err := t.getLeftmostLeaf()
	if err != nil {
		return nil, err
	}
	it := newIndexIterator(t.bpm, leafRaw, 0)
	// 空叶子（整树被删空前的根）直接归位到尾后
	if it.leaf.Size() == 0 {
		if err := it.advanceLeaf(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// BeginFrom 定位到第一个键不小于key的条目
func (t *BPlusTree) BeginFrom(key int64) (*IndexIterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == common.InvalidPageID {
		return newIndexIterator(t.bpm, nil, 0), nil
	}
	leafRaw, err := t.getLeafPage(key)
	if err != nil {
		return nil, err
	}
	leaf := page.AsLeafPage(leafRaw)
	it := newIndexIterator(t.bpm, leafRaw, leaf.KeyIndex(key))
	if it.index >= leaf.Size() {
		if err := it.advanceLeaf(); err != nil {
			return nil, err
		}
	}
	return it, nil
}
