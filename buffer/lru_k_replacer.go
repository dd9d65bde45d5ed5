package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"xengine/common"
)

// frameRecord 记录单个帧的访问历史
type frameRecord struct {
	frameID   common.FrameID
	history   []uint64 // 最近K次访问时间戳，最新的在末尾
	evictable bool
	elem      *list.Element
	inCache   bool
}

// kthRecent K次最近访问中最早的一次
func (fr *frameRecord) kthRecent() uint64 {
	return fr.history[0]
}

// LRUKReplacer LRU-K帧替换器
//
// history队列保存访问次数不足K次的帧，按首次访问FIFO淘汰；
// cache队列保存访问满K次的帧，按倒数第K次访问时间升序淘汰。
// history整体先于cache被淘汰。
type LRUKReplacer struct {
	mu sync.Mutex

	numFrames int
	k         int
	timestamp uint64
	curSize   int // 可淘汰帧数量

	records map[common.FrameID]*frameRecord

	// 新帧插到front，back是最早首次访问的帧
	historyList *list.List
	// front到back按倒数第K次访问时间降序，back最先被淘汰
	cacheList *list.List
}

// NewLRUKReplacer 创建替换器
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		numFrames:   numFrames,
		k:           k,
		records:     make(map[common.FrameID]*frameRecord),
		historyList: list.New(),
		cacheList:   list.New(),
	}
}

// RecordAccess 记录一次帧访问
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	r.timestamp++
	rec, ok := r.records[frameID]
	if !ok {
		rec = &frameRecord{
			frameID: frameID,
			history: []uint64{r.timestamp},
		}
		rec.elem = r.historyList.PushFront(rec)
		r.records[frameID] = rec
		return
	}

	rec.history = append(rec.history, r.timestamp)
	if len(rec.history) > r.k {
		rec.history = rec.history[len(rec.history)-r.k:]
	}

	if len(rec.history) < r.k {
		// 仍在history队列，首次访问时间不变，位置不动
		return
	}

	if !rec.inCache {
		r.historyList.Remove(rec.elem)
		rec.inCache = true
	} else {
		r.cacheList.Remove(rec.elem)
	}
	r.insertIntoCache(rec)
}

// insertIntoCache 按倒数第K次访问时间降序插入cache队列
func (r *LRUKReplacer) insertIntoCache(rec *frameRecord) {
	kth := rec.kthRecent()
	for e := r.cacheList.Front(); e != nil; e = e.Next() {
		if e.Value.(*frameRecord).kthRecent() < kth {
			rec.elem = r.cacheList.InsertBefore(rec, e)
			return
		}
	}
	rec.elem = r.cacheList.PushBack(rec)
}

// SetEvictable 设置帧是否可淘汰
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	rec, ok := r.records[frameID]
	if !ok {
		return
	}
	if evictable && !rec.evictable {
		r.curSize++
	} else if !evictable && rec.evictable {
		r.curSize--
	}
	rec.evictable = evictable
}

// Evict 淘汰一个帧。history优先（无穷倒数第K距离），其次cache
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.historyList.Back(); e != nil; e = e.Prev() {
		rec := e.Value.(*frameRecord)
		if rec.evictable {
			r.historyList.Remove(e)
			delete(r.records, rec.frameID)
			r.curSize--
			return rec.frameID, true
		}
	}
	for e := r.cacheList.Back(); e != nil; e = e.Prev() {
		rec := e.Value.(*frameRecord)
		if rec.evictable {
			r.cacheList.Remove(e)
			delete(r.records, rec.frameID)
			r.curSize--
			return rec.frameID, true
		}
	}
	return common.FrameID(-1), false
}

// Remove 移除一个被跟踪的可淘汰帧
func (r *LRUKReplacer) Remove(frameID common.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	rec, ok := r.records[frameID]
	if !ok {
		return ErrFrameNotTracked
	}
	if !rec.evictable {
		return ErrFrameNotEvictable
	}
	if rec.inCache {
		r.cacheList.Remove(rec.elem)
	} else {
		r.historyList.Remove(rec.elem)
	}
	delete(r.records, frameID)
	r.curSize--
	return nil
}

// Size 当前可淘汰帧数量
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}

func (r *LRUKReplacer) checkFrameID(frameID common.FrameID) {
	if frameID < 0 || int(frameID) >= r.numFrames {
		panic(fmt.Sprintf("invalid frame id %d, replacer size %d", frameID, r.numFrames))
	}
}
