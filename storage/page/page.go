package page

import (
	"xengine/common"
	"xengine/latch"
)

// Page 缓冲池帧内承载的页面
//
// pinCount与dirty由缓冲池在池级互斥锁下维护；页面内容的并发访问
// 由页级读写latch保护。
type Page struct {
	lt       *latch.Latch
	data     []byte
	pageID   common.PageID
	pinCount int
	dirty    bool
}

// NewPage 创建一个空页面
func NewPage(pageSize int) *Page {
	return &Page{
		lt:     latch.NewLatch(),
		data:   make([]byte, pageSize),
		pageID: common.InvalidPageID,
	}
}

// Data 页面原始字节
func (p *Page) Data() []byte {
	return p.data
}

// ID 页面号
func (p *Page) ID() common.PageID {
	return p.pageID
}

// SetID 绑定页面号
func (p *Page) SetID(pageID common.PageID) {
	p.pageID = pageID
}

// PinCount 当前引用计数
func (p *Page) PinCount() int {
	return p.pinCount
}

// SetPinCount 设置引用计数
func (p *Page) SetPinCount(count int) {
	p.pinCount = count
}

// IncPinCount 引用计数加一
func (p *Page) IncPinCount() {
	p.pinCount++
}

// DecPinCount 引用计数减一
func (p *Page) DecPinCount() {
	p.pinCount--
}

// IsDirty 页面是否为脏
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirty 设置脏标记
func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// ResetMemory 清空页面内容并复位元数据
func (p *Page) ResetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.pageID = common.InvalidPageID
	p.pinCount = 0
	p.dirty = false
}

// WLatch 获取页面写latch
func (p *Page) WLatch() {
	p.lt.Lock()
}

// WUnlatch 释放页面写latch
func (p *Page) WUnlatch() {
	p.lt.Unlock()
}

// RLatch 获取页面读latch
func (p *Page) RLatch() {
	p.lt.RLock()
}

// RUnlatch 释放页面读latch
func (p *Page) RUnlatch() {
	p.lt.RUnlock()
}
