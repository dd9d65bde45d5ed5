package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"xengine/common"
	hashtable "xengine/container/hash"
	"xengine/logger"
	"xengine/storage/disk"
	"xengine/storage/page"
	"xengine/util"
)

// pageIDHash 页面号散列，供页表使用
func pageIDHash(pageID common.PageID) uint64 {
	return util.HashCode(util.ConvertInt4Bytes(int32(pageID)))
}

// BufferPoolManager 缓冲池
//
// 固定数量的帧缓存磁盘页面。页表将页面号映射到帧槽位，LRU-K替换器
// 决定淘汰顺序。所有公共操作在池级互斥锁下串行执行。
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize    int
	pages       []*page.Page
	pageTable   *hashtable.ExtendibleHashTable[common.PageID, common.FrameID]
	replacer    *LRUKReplacer
	diskManager *disk.DiskManager
	freeList    []common.FrameID
	nextPageID  common.PageID

	// 统计信息
	stats struct {
		hits       uint64
		misses     uint64
		evictions  uint64
		writeBacks uint64
	}
}

// NewBufferPoolManager 创建缓冲池
func NewBufferPoolManager(poolSize, replacerK, bucketSize int, diskManager *disk.DiskManager) (*BufferPoolManager, error) {
	if poolSize <= 0 || replacerK <= 0 || bucketSize <= 0 {
		return nil, errors.Annotatef(ErrInvalidConfig,
			"pool_pages=%d replacer_k=%d bucket_size=%d", poolSize, replacerK, bucketSize)
	}
	if diskManager == nil {
		return nil, errors.Annotate(ErrInvalidConfig, "disk manager is required")
	}

	bpm := &BufferPoolManager{
		poolSize:    poolSize,
		pages:       make([]*page.Page, poolSize),
		pageTable:   hashtable.NewExtendibleHashTable[common.PageID, common.FrameID](bucketSize, pageIDHash),
		replacer:    NewLRUKReplacer(poolSize, replacerK),
		diskManager: diskManager,
		freeList:    make([]common.FrameID, 0, poolSize),
		// 0号页保留给头页面，按需Fetch时从磁盘零填充读出
		nextPageID: common.HeaderPageID + 1,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = page.NewPage(diskManager.PageSize())
		bpm.freeList = append(bpm.freeList, common.FrameID(i))
	}
	return bpm, nil
}

// PoolSize 帧数量
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// NewPage 分配一个新页面并固定在帧中
//
// 所有帧都被固定时返回ErrBufferExhausted。
func (bpm *BufferPoolManager) NewPage() (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.getAvailableFrame()
	if err != nil {
		return nil, err
	}

	pageID := bpm.allocatePage()
	p := bpm.pages[frameID]
	p.SetID(pageID)
	p.SetPinCount(1)
	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	return p, nil
}

// FetchPage 获取页面并固定
//
// 未缓存时从磁盘读入，必要时先淘汰一帧。所有帧都被固定时返回
// ErrBufferExhausted。每次成功的Fetch都需要一次对应的Unpin。
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID) (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable.Find(pageID); ok {
		p := bpm.pages[frameID]
		p.IncPinCount()
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		atomic.AddUint64(&bpm.stats.hits, 1)
		return p, nil
	}

	frameID, err := bpm.getAvailableFrame()
	if err != nil {
		return nil, err
	}

	p := bpm.pages[frameID]
	if err := bpm.diskManager.ReadPage(pageID, p.Data()); err != nil {
		// 读失败的帧放回空闲链，保持池状态不变
		bpm.freeList = append(bpm.freeList, frameID)
		return nil, errors.Annotatef(err, "fetch page %d", pageID)
	}
	p.SetID(pageID)
	p.SetPinCount(1)
	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	atomic.AddUint64(&bpm.stats.misses, 1)
	return p, nil
}

// UnpinPage 解除一次固定
//
// isDirty以或方式并入脏标记，解除固定从不清除脏标记。页面不在缓冲池
// 或引用计数已为0时返回false。
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	p := bpm.pages[frameID]
	if p.PinCount() <= 0 {
		return false
	}
	p.DecPinCount()
	if isDirty {
		p.SetDirty(true)
	}
	if p.PinCount() == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage 将页面写回磁盘并清除脏标记，无论是否为脏
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.flushPageLocked(pageID)
}

func (bpm *BufferPoolManager) flushPageLocked(pageID common.PageID) bool {
	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	p := bpm.pages[frameID]
	if err := bpm.diskManager.WritePage(pageID, p.Data()); err != nil {
		logger.Errorf("flush page %d failed: %v", pageID, err)
		return false
	}
	p.SetDirty(false)
	atomic.AddUint64(&bpm.stats.writeBacks, 1)
	return true
}

// FlushAllPages 写回所有驻留页面
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for frameID := 0; frameID < bpm.poolSize; frameID++ {
		p := bpm.pages[frameID]
		if p.ID() != common.InvalidPageID {
			bpm.flushPageLocked(p.ID())
		}
	}
}

// DeletePage 删除页面并释放其帧。页面被固定时返回false
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return true
	}
	p := bpm.pages[frameID]
	if p.PinCount() > 0 {
		return false
	}

	bpm.pageTable.Remove(pageID)
	if err := bpm.replacer.Remove(frameID); err != nil {
		logger.Errorf("remove frame %d from replacer failed: %v", frameID, err)
	}
	p.ResetMemory()
	bpm.freeList = append(bpm.freeList, frameID)
	return true
}

// allocatePage 单调分配下一个页面号
func (bpm *BufferPoolManager) allocatePage() common.PageID {
	pageID := bpm.nextPageID
	bpm.nextPageID++
	return pageID
}

// getAvailableFrame 取一个可用帧，空闲链优先，其次淘汰
//
// 淘汰脏帧时同步写回。
func (bpm *BufferPoolManager) getAvailableFrame() (common.FrameID, error) {
	if len(bpm.freeList) > 0 {
		frameID := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameID, nil
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return -1, errors.Annotatef(ErrBufferExhausted, "pool size %d", bpm.poolSize)
	}

	victim := bpm.pages[frameID]
	if victim.IsDirty() {
		if err := bpm.diskManager.WritePage(victim.ID(), victim.Data()); err != nil {
			return -1, errors.Annotatef(err, "write back evicted page %d", victim.ID())
		}
		atomic.AddUint64(&bpm.stats.writeBacks, 1)
	}
	logger.Debugf("evict page %d from frame %d", victim.ID(), frameID)
	bpm.pageTable.Remove(victim.ID())
	victim.ResetMemory()
	atomic.AddUint64(&bpm.stats.evictions, 1)
	return frameID, nil
}

// GetStats 缓冲池统计
func (bpm *BufferPoolManager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"pool_size":   bpm.poolSize,
		"hits":        atomic.LoadUint64(&bpm.stats.hits),
		"misses":      atomic.LoadUint64(&bpm.stats.misses),
		"evictions":   atomic.LoadUint64(&bpm.stats.evictions),
		"write_backs": atomic.LoadUint64(&bpm.stats.writeBacks),
	}
}
