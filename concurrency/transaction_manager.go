package concurrency

import (
	"sync"

	"xengine/common"
	"xengine/logger"
)

// TransactionManager 事务生命周期管理
//
// 事务号单调分配。提交或中止时通过锁管理器释放事务持有的全部锁。
type TransactionManager struct {
	mu sync.Mutex

	nextTxnID common.TxnID
	txnMap    map[common.TxnID]*Transaction
	lockMgr   *LockManager
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(lockMgr *LockManager) *TransactionManager {
	return &TransactionManager{
		txnMap:  make(map[common.TxnID]*Transaction),
		lockMgr: lockMgr,
	}
}

// Begin 开启事务
func (tm *TransactionManager) Begin(level IsolationLevel) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn := NewTransaction(tm.nextTxnID, level)
	tm.txnMap[tm.nextTxnID] = txn
	tm.nextTxnID++
	return txn
}

// GetTransaction 按事务号查询
func (tm *TransactionManager) GetTransaction(id common.TxnID) (*Transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	txn, ok := tm.txnMap[id]
	return txn, ok
}

// Commit 提交事务并释放全部锁
func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.SetState(COMMITTED)
	tm.lockMgr.ReleaseAllLocks(txn)
	logger.Debugf("txn %d committed", txn.ID())
}

// Abort 中止事务并释放全部锁
func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.SetState(ABORTED)
	tm.lockMgr.ReleaseAllLocks(txn)
	logger.Debugf("txn %d aborted", txn.ID())
}
