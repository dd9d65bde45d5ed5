package common

import "fmt"

// RID 行标识符，由页号和槽号构成
type RID struct {
	PageID  PageID
	SlotNum int32
}

// NewRID 创建行标识符
func NewRID(pageID PageID, slotNum int32) RID {
	return RID{PageID: pageID, SlotNum: slotNum}
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}
