package concurrency

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"xengine/common"
	"xengine/latch"
	"xengine/logger"
)

// LockRequest 锁请求
type LockRequest struct {
	txn     *Transaction
	txnID   common.TxnID
	mode    LockMode
	oid     common.TableOID
	rid     common.RID
	isRow   bool
	granted bool
}

// LockRequestQueue 单个资源上的请求队列
//
// FIFO授予，待升级的请求优先于普通等待者。upgrading记录唯一的升级者。
type LockRequestQueue struct {
	lt        *latch.Latch
	cv        *sync.Cond
	requests  *list.List // *LockRequest
	upgrading common.TxnID
}

func newLockRequestQueue() *LockRequestQueue {
	lt := latch.NewLatch()
	return &LockRequestQueue{
		lt:        lt,
		cv:        sync.NewCond(lt),
		requests:  list.New(),
		upgrading: common.InvalidTxnID,
	}
}

// findRequest 队列中指定事务的请求
func (q *LockRequestQueue) findRequest(txnID common.TxnID) (*list.Element, *LockRequest) {
	for e := q.requests.Front(); e != nil; e = e.Next() {
		req := e.Value.(*LockRequest)
		if req.txnID == txnID {
			return e, req
		}
	}
	return nil, nil
}

// insert 入队。升级请求插到所有未授予的普通请求之前
func (q *LockRequestQueue) insert(req *LockRequest, isUpgrade bool) {
	if isUpgrade {
		for e := q.requests.Front(); e != nil; e = e.Next() {
			if !e.Value.(*LockRequest).granted {
				q.requests.InsertBefore(req, e)
				return
			}
		}
	}
	q.requests.PushBack(req)
}

// AreLocksCompatible 锁模式兼容矩阵
func AreLocksCompatible(a, b LockMode) bool {
	switch a {
	case LOCK_IS:
		return b != LOCK_X
	case LOCK_IX:
		return b == LOCK_IS || b == LOCK_IX
	case LOCK_S:
		return b == LOCK_IS || b == LOCK_S
	case LOCK_SIX:
		return b == LOCK_IS
	case LOCK_X:
		return false
	}
	return false
}

// canUpgradeLock 锁升级格: IS→{S,IX,SIX,X}, S→{SIX,X}, IX→{SIX,X}, SIX→X
func canUpgradeLock(held, want LockMode) bool {
	switch held {
	case LOCK_IS:
		return want == LOCK_S || want == LOCK_IX || want == LOCK_SIX || want == LOCK_X
	case LOCK_S:
		return want == LOCK_SIX || want == LOCK_X
	case LOCK_IX:
		return want == LOCK_SIX || want == LOCK_X
	case LOCK_SIX:
		return want == LOCK_X
	}
	return false
}

// LockManager 多粒度两阶段锁管理器
type LockManager struct {
	tableMapLatch *latch.Latch
	tableLockMap  map[common.TableOID]*LockRequestQueue

	rowMapLatch *latch.Latch
	rowLockMap  map[common.RID]*LockRequestQueue

	cycleDetectionInterval time.Duration
	stopChan               chan struct{}
	doneChan               chan struct{}
}

// NewLockManager 创建锁管理器并启动死锁检测
func NewLockManager(cycleDetectionInterval time.Duration) *LockManager {
	lm := &LockManager{
		tableMapLatch:          latch.NewLatch(),
		tableLockMap:           make(map[common.TableOID]*LockRequestQueue),
		rowMapLatch:            latch.NewLatch(),
		rowLockMap:             make(map[common.RID]*LockRequestQueue),
		cycleDetectionInterval: cycleDetectionInterval,
		stopChan:               make(chan struct{}),
		doneChan:               make(chan struct{}),
	}
	go lm.runCycleDetection()
	return lm
}

// Close 停止死锁检测
func (lm *LockManager) Close() {
	close(lm.stopChan)
	<-lm.doneChan
}

// checkLockValidity 隔离级别对加锁的前置限制
func (lm *LockManager) checkLockValidity(txn *Transaction, mode LockMode) error {
	switch txn.IsolationLevel() {
	case READ_UNCOMMITTED:
		if mode == LOCK_S || mode == LOCK_IS || mode == LOCK_SIX {
			return abort(txn, LOCK_SHARED_ON_READ_UNCOMMITTED)
		}
		if txn.State() == SHRINKING && (mode == LOCK_X || mode == LOCK_IX) {
			return abort(txn, LOCK_ON_SHRINKING)
		}
	case READ_COMMITTED:
		if txn.State() == SHRINKING && (mode == LOCK_X || mode == LOCK_IX || mode == LOCK_SIX) {
			return abort(txn, LOCK_ON_SHRINKING)
		}
	case REPEATABLE_READ:
		if txn.State() == SHRINKING {
			return abort(txn, LOCK_ON_SHRINKING)
		}
	}
	return nil
}

// canGrant 请求可被授予的条件：与所有已授予请求兼容，且更早的未授予
// 请求只能是自己
func (lm *LockManager) canGrant(req *LockRequest, q *LockRequestQueue) bool {
	for e := q.requests.Front(); e != nil; e = e.Next() {
		cur := e.Value.(*LockRequest)
		if cur.granted {
			if !AreLocksCompatible(cur.mode, req.mode) {
				return false
			}
		} else if cur != req {
			return false
		} else {
			return true
		}
	}
	return false
}

// LockTable 获取表锁
//
// 返回false且无错误表示事务在等待中被中止（死锁检测）。锁协议违例
// 返回TransactionAbortError，事务已置为ABORTED。
func (lm *LockManager) LockTable(txn *Transaction, mode LockMode, oid common.TableOID) (bool, error) {
	if err := lm.checkLockValidity(txn, mode); err != nil {
		return false, err
	}

	lm.tableMapLatch.Lock()
	q, ok := lm.tableLockMap[oid]
	if !ok {
		q = newLockRequestQueue()
		lm.tableLockMap[oid] = q
	}
	q.lt.Lock()
	lm.tableMapLatch.Unlock()

	isUpgrade := false
	if elem, held := q.findRequest(txn.ID()); held != nil {
		if held.mode == mode {
			q.lt.Unlock()
			return true, nil
		}
		if !canUpgradeLock(held.mode, mode) {
			q.lt.Unlock()
			return false, abort(txn, INCOMPATIBLE_UPGRADE)
		}
		if q.upgrading != common.InvalidTxnID {
			q.lt.Unlock()
			return false, abort(txn, UPGRADE_CONFLICT)
		}
		// 占据升级席位，撤下旧的已授予请求
		isUpgrade = true
		q.upgrading = txn.ID()
		q.requests.Remove(elem)
		txn.RemoveTableLock(held.mode, oid)
	}

	req := &LockRequest{txn: txn, txnID: txn.ID(), mode: mode, oid: oid}
	q.insert(req, isUpgrade)

	for !lm.canGrant(req, q) {
		q.cv.Wait()
		if txn.State() == ABORTED {
			if isUpgrade {
				q.upgrading = common.InvalidTxnID
			}
			if elem, _ := q.findRequest(txn.ID()); elem != nil {
				q.requests.Remove(elem)
			}
			q.cv.Broadcast()
			q.lt.Unlock()
			logger.Debugf("txn %d lock table %d mode %s aborted while waiting", txn.ID(), oid, mode)
			return false, nil
		}
	}

	req.granted = true
	if isUpgrade {
		q.upgrading = common.InvalidTxnID
	}
	txn.AddTableLock(mode, oid)
	q.cv.Broadcast()
	q.lt.Unlock()
	return true, nil
}

// UnlockTable 释放表锁
//
// 该表上仍有行锁未释放时违例。按隔离级别触发向SHRINKING的迁移。
func (lm *LockManager) UnlockTable(txn *Transaction, oid common.TableOID) (bool, error) {
	lm.tableMapLatch.Lock()
	q, ok := lm.tableLockMap[oid]
	if !ok {
		lm.tableMapLatch.Unlock()
		return false, abort(txn, ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD)
	}
	if txn.HasRowLocksOnTable(oid) {
		lm.tableMapLatch.Unlock()
		return false, abort(txn, TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS)
	}
	q.lt.Lock()
	lm.tableMapLatch.Unlock()

	elem, req := q.findRequest(txn.ID())
	if req == nil || !req.granted {
		q.lt.Unlock()
		return false, abort(txn, ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD)
	}
	q.requests.Remove(elem)
	q.cv.Broadcast()
	q.lt.Unlock()

	lm.maybeShrink(txn, req.mode)
	txn.RemoveTableLock(req.mode, oid)
	return true, nil
}

// LockRow 获取行锁。行锁只支持S与X，且要求相应的表锁已持有
func (lm *LockManager) LockRow(txn *Transaction, mode LockMode, oid common.TableOID, rid common.RID) (bool, error) {
	if mode != LOCK_S && mode != LOCK_X {
		return false, abort(txn, ATTEMPTED_INTENTION_LOCK_ON_ROW)
	}
	if err := lm.checkLockValidity(txn, mode); err != nil {
		return false, err
	}

	// 多级锁检查
	if mode == LOCK_X {
		if !txn.IsTableLocked(LOCK_X, oid) && !txn.IsTableLocked(LOCK_IX, oid) && !txn.IsTableLocked(LOCK_SIX, oid) {
			return false, abort(txn, TABLE_LOCK_NOT_PRESENT)
		}
	} else {
		if _, any := txn.TableLockMode(oid); !any {
			return false, abort(txn, TABLE_LOCK_NOT_PRESENT)
		}
	}

	lm.rowMapLatch.Lock()
	q, ok := lm.rowLockMap[rid]
	if !ok {
		q = newLockRequestQueue()
		lm.rowLockMap[rid] = q
	}
	q.lt.Lock()
	lm.rowMapLatch.Unlock()

	isUpgrade := false
	if elem, held := q.findRequest(txn.ID()); held != nil {
		if held.mode == mode {
			q.lt.Unlock()
			return true, nil
		}
		if !canUpgradeLock(held.mode, mode) {
			q.lt.Unlock()
			return false, abort(txn, INCOMPATIBLE_UPGRADE)
		}
		if q.upgrading != common.InvalidTxnID {
			q.lt.Unlock()
			return false, abort(txn, UPGRADE_CONFLICT)
		}
		isUpgrade = true
		q.upgrading = txn.ID()
		q.requests.Remove(elem)
		txn.RemoveRowLock(held.mode, oid, rid)
	}

	req := &LockRequest{txn: txn, txnID: txn.ID(), mode: mode, oid: oid, rid: rid, isRow: true}
	q.insert(req, isUpgrade)

	for !lm.canGrant(req, q) {
		q.cv.Wait()
		if txn.State() == ABORTED {
			if isUpgrade {
				q.upgrading = common.InvalidTxnID
			}
			if elem, _ := q.findRequest(txn.ID()); elem != nil {
				q.requests.Remove(elem)
			}
			q.cv.Broadcast()
			q.lt.Unlock()
			logger.Debugf("txn %d lock row %s mode %s aborted while waiting", txn.ID(), rid, mode)
			return false, nil
		}
	}

	req.granted = true
	if isUpgrade {
		q.upgrading = common.InvalidTxnID
	}
	txn.AddRowLock(mode, oid, rid)
	q.cv.Broadcast()
	q.lt.Unlock()
	return true, nil
}

// UnlockRow 释放行锁
func (lm *LockManager) UnlockRow(txn *Transaction, oid common.TableOID, rid common.RID) (bool, error) {
	lm.rowMapLatch.Lock()
	q, ok := lm.rowLockMap[rid]
	if !ok {
		lm.rowMapLatch.Unlock()
		return false, abort(txn, ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD)
	}
	q.lt.Lock()
	lm.rowMapLatch.Unlock()

	elem, req := q.findRequest(txn.ID())
	if req == nil || !req.granted || req.oid != oid {
		q.lt.Unlock()
		return false, abort(txn, ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD)
	}
	q.requests.Remove(elem)
	q.cv.Broadcast()
	q.lt.Unlock()

	lm.maybeShrink(txn, req.mode)
	txn.RemoveRowLock(req.mode, oid, rid)
	return true, nil
}

// maybeShrink 两阶段锁迁移规则
//
// REPEATABLE_READ释放S/X进入收缩期，READ_COMMITTED与READ_UNCOMMITTED
// 仅在释放X时进入。已提交或已中止的事务不迁移。
func (lm *LockManager) maybeShrink(txn *Transaction, released LockMode) {
	shrink := false
	switch txn.IsolationLevel() {
	case REPEATABLE_READ:
		shrink = released == LOCK_S || released == LOCK_X
	case READ_COMMITTED, READ_UNCOMMITTED:
		shrink = released == LOCK_X
	}
	if !shrink {
		return
	}
	if st := txn.State(); st != COMMITTED && st != ABORTED {
		txn.SetState(SHRINKING)
	}
}

// ReleaseAllLocks 事务提交或中止时释放其持有的全部锁
//
// 先行锁后表锁，绕过两阶段迁移与行锁前置检查。
func (lm *LockManager) ReleaseAllLocks(txn *Transaction) {
	for _, mode := range []LockMode{LOCK_S, LOCK_X} {
		for _, ref := range txn.rowLockRefs(mode) {
			lm.rowMapLatch.Lock()
			q, ok := lm.rowLockMap[ref.rid]
			if !ok {
				lm.rowMapLatch.Unlock()
				continue
			}
			q.lt.Lock()
			lm.rowMapLatch.Unlock()
			if elem, _ := q.findRequest(txn.ID()); elem != nil {
				q.requests.Remove(elem)
			}
			q.cv.Broadcast()
			q.lt.Unlock()
			txn.RemoveRowLock(mode, ref.oid, ref.rid)
		}
	}

	for _, mode := range []LockMode{LOCK_IS, LOCK_IX, LOCK_S, LOCK_SIX, LOCK_X} {
		for _, oid := range txn.TableLockSnapshot(mode) {
			lm.tableMapLatch.Lock()
			q, ok := lm.tableLockMap[oid]
			if !ok {
				lm.tableMapLatch.Unlock()
				continue
			}
			q.lt.Lock()
			lm.tableMapLatch.Unlock()
			if elem, _ := q.findRequest(txn.ID()); elem != nil {
				q.requests.Remove(elem)
			}
			q.cv.Broadcast()
			q.lt.Unlock()
			txn.RemoveTableLock(mode, oid)
		}
	}
}

// runCycleDetection 周期性死锁检测
func (lm *LockManager) runCycleDetection() {
	defer close(lm.doneChan)
	ticker := time.NewTicker(lm.cycleDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.detectOnce()
		case <-lm.stopChan:
			return
		}
	}
}

// detectOnce 构建waits-for图并中止每个环中最年轻的事务
func (lm *LockManager) detectOnce() {
	lm.tableMapLatch.Lock()
	lm.rowMapLatch.Lock()
	defer lm.rowMapLatch.Unlock()
	defer lm.tableMapLatch.Unlock()

	waitsFor := make(map[common.TxnID]map[common.TxnID]struct{})
	txnByID := make(map[common.TxnID]*Transaction)

	collect := func(q *LockRequestQueue) {
		q.lt.Lock()
		defer q.lt.Unlock()
		for e := q.requests.Front(); e != nil; e = e.Next() {
			waiter := e.Value.(*LockRequest)
			if waiter.granted {
				continue
			}
			txnByID[waiter.txnID] = waiter.txn
			for g := q.requests.Front(); g != nil; g = g.Next() {
				holder := g.Value.(*LockRequest)
				if !holder.granted || holder.txnID == waiter.txnID {
					continue
				}
				if !AreLocksCompatible(holder.mode, waiter.mode) {
					if waitsFor[waiter.txnID] == nil {
						waitsFor[waiter.txnID] = make(map[common.TxnID]struct{})
					}
					waitsFor[waiter.txnID][holder.txnID] = struct{}{}
				}
			}
		}
	}
	for _, q := range lm.tableLockMap {
		collect(q)
	}
	for _, q := range lm.rowLockMap {
		collect(q)
	}

	aborted := false
	for {
		victim, found := findCycleVictim(waitsFor)
		if !found {
			break
		}
		logger.Warnf("deadlock detected, aborting youngest txn %d", victim)
		if txn := txnByID[victim]; txn != nil {
			txn.SetState(ABORTED)
		}
		delete(waitsFor, victim)
		for _, targets := range waitsFor {
			delete(targets, victim)
		}
		aborted = true
	}

	if aborted {
		for _, q := range lm.tableLockMap {
			q.cv.Broadcast()
		}
		for _, q := range lm.rowLockMap {
			q.cv.Broadcast()
		}
	}
}

// findCycleVictim 深度优先找环，返回环内最大（最年轻）的事务号
func findCycleVictim(waitsFor map[common.TxnID]map[common.TxnID]struct{}) (common.TxnID, bool) {
	starts := make([]common.TxnID, 0, len(waitsFor))
	for id := range waitsFor {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	visited := make(map[common.TxnID]bool)
	for _, start := range starts {
		if visited[start] {
			continue
		}
		path := make([]common.TxnID, 0)
		onPath := make(map[common.TxnID]int)
		if cycle := dfsCycle(start, waitsFor, visited, &path, onPath); cycle != nil {
			victim := cycle[0]
			for _, id := range cycle {
				if id > victim {
					victim = id
				}
			}
			return victim, true
		}
	}
	return common.InvalidTxnID, false
}

// dfsCycle 沿升序邻居深搜，命中路径上的节点即成环
func dfsCycle(node common.TxnID, waitsFor map[common.TxnID]map[common.TxnID]struct{},
	visited map[common.TxnID]bool, path *[]common.TxnID, onPath map[common.TxnID]int) []common.TxnID {
	if pos, ok := onPath[node]; ok {
		return (*path)[pos:]
	}
	if visited[node] {
		return nil
	}
	visited[node] = true
	onPath[node] = len(*path)
	*path = append(*path, node)

	neighbors := make([]common.TxnID, 0, len(waitsFor[node]))
	for id := range waitsFor[node] {
		neighbors = append(neighbors, id)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	for _, next := range neighbors {
		if cycle := dfsCycle(next, waitsFor, visited, path, onPath); cycle != nil {
			return cycle
		}
	}

	delete(onPath, node)
	*path = (*path)[:len(*path)-1]
	return nil
}

// GetStats 锁管理器统计
func (lm *LockManager) GetStats() map[string]interface{} {
	lm.tableMapLatch.Lock()
	tableQueues := len(lm.tableLockMap)
	lm.tableMapLatch.Unlock()
	lm.rowMapLatch.Lock()
	rowQueues := len(lm.rowLockMap)
	lm.rowMapLatch.Unlock()
	return map[string]interface{}{
		"table_queues": tableQueues,
		"row_queues":   rowQueues,
	}
}
