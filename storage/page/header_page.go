package page

import (
	"bytes"

	"xengine/common"
	"xengine/util"
)

// 头页面布局: record_count(4) + count个(name 32字节定长, root_page_id 4字节)
// 固定落在0号页，充当索引名到根页面号的注册表
const (
	headerRecordNameSize = 32
	headerRecordSize     = headerRecordNameSize + 4
	offHeaderRecordCount = 0
	offHeaderRecords     = 4
)

// HeaderPage 头页面访问器
type HeaderPage struct {
	page *Page
}

// AsHeaderPage 以头页面视角解读页面
func AsHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{page: p}
}

// Init 初始化空注册表
func (hp *HeaderPage) Init() {
	util.WriteB4(hp.page.Data(), offHeaderRecordCount, 0)
}

// RecordCount 记录数
func (hp *HeaderPage) RecordCount() int {
	return int(util.ReadB4(hp.page.Data(), offHeaderRecordCount))
}

func (hp *HeaderPage) maxRecords() int {
	return (len(hp.page.Data()) - offHeaderRecords) / headerRecordSize
}

func (hp *HeaderPage) recordOffset(index int) int {
	return offHeaderRecords + index*headerRecordSize
}

func (hp *HeaderPage) nameAt(index int) string {
	off := hp.recordOffset(index)
	raw := hp.page.Data()[off : off+headerRecordNameSize]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func (hp *HeaderPage) findRecord(name string) int {
	count := hp.RecordCount()
	for i := 0; i < count; i++ {
		if hp.nameAt(i) == name {
			return i
		}
	}
	return -1
}

func (hp *HeaderPage) writeRecord(index int, name string, rootID common.PageID) {
	off := hp.recordOffset(index)
	data := hp.page.Data()
	nameField := data[off : off+headerRecordNameSize]
	for i := range nameField {
		nameField[i] = 0
	}
	copy(nameField, name)
	util.WriteB4(data, off+headerRecordNameSize, int32(rootID))
}

// InsertRecord 登记一个新索引。重名或名字超长或注册表已满时返回false
func (hp *HeaderPage) InsertRecord(name string, rootID common.PageID) bool {
	if len(name) > headerRecordNameSize {
		return false
	}
	if hp.findRecord(name) >= 0 {
		return false
	}
	count := hp.RecordCount()
	if count >= hp.maxRecords() {
		return false
	}
	hp.writeRecord(count, name, rootID)
	util.WriteB4(hp.page.Data(), offHeaderRecordCount, int32(count+1))
	return true
}

// UpdateRecord 更新已登记索引的根页面号
func (hp *HeaderPage) UpdateRecord(name string, rootID common.PageID) bool {
	idx := hp.findRecord(name)
	if idx < 0 {
		return false
	}
	util.WriteB4(hp.page.Data(), hp.recordOffset(idx)+headerRecordNameSize, int32(rootID))
	return true
}

// DeleteRecord 注销索引
func (hp *HeaderPage) DeleteRecord(name string) bool {
	idx := hp.findRecord(name)
	if idx < 0 {
		return false
	}
	count := hp.RecordCount()
	data := hp.page.Data()
	copy(data[hp.recordOffset(idx):hp.recordOffset(count-1)+headerRecordSize],
		data[hp.recordOffset(idx+1):hp.recordOffset(count)])
	util.WriteB4(data, offHeaderRecordCount, int32(count-1))
	return true
}

// GetRootID 查询索引根页面号
func (hp *HeaderPage) GetRootID(name string) (common.PageID, bool) {
	idx := hp.findRecord(name)
	if idx < 0 {
		return common.InvalidPageID, false
	}
	return common.PageID(util.ReadB4(hp.page.Data(), hp.recordOffset(idx)+headerRecordNameSize)), true
}
