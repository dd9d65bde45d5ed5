package index

import (
	"sync"

	"github.com/pkg/errors"

	"xengine/buffer"
	"xengine/common"
	"xengine/logger"
	"xengine/storage/page"
)

// BPlusTree 磁盘B+树索引
//
// 键为int64，值为行标识。页面通过缓冲池存取，根页面号持久化在头页面
// 的注册表中。结构调整由树级读写锁串行化，页面写latch仅在叶子条目
// 插入与删除处成对获取释放。
type BPlusTree struct {
	mu sync.RWMutex

	indexName       string
	rootPageID      common.PageID
	bpm             *buffer.BufferPoolManager
	leafMaxSize     int
	internalMaxSize int
	pageSize        int
}

// NewBPlusTree 创建或打开一棵B+树
//
// leafMaxSize/internalMaxSize为0时按页面大小推算。已有同名索引时从
// 头页面恢复根页面号。
func NewBPlusTree(name string, bpm *buffer.BufferPoolManager, pageSize, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if leafMaxSize == 0 {
		leafMaxSize = page.LeafCapacity(pageSize)
	}
	if internalMaxSize == 0 {
		internalMaxSize = page.InternalCapacity(pageSize)
	}

	tree := &BPlusTree{
		indexName:       name,
		rootPageID:      common.InvalidPageID,
		bpm:             bpm,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		pageSize:        pageSize,
	}

	headerRaw, err := bpm.FetchPage(common.HeaderPageID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch header page")
	}
	header := page.AsHeaderPage(headerRaw)
	if rootID, ok := header.GetRootID(name); ok {
		tree.rootPageID = rootID
		bpm.UnpinPage(common.HeaderPageID, false)
	} else {
		header.InsertRecord(name, common.InvalidPageID)
		bpm.UnpinPage(common.HeaderPageID, true)
	}
	return tree, nil
}

// IsEmpty 树是否为空
func (t *BPlusTree) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID == common.InvalidPageID
}

// GetValue 点查
func (t *BPlusTree) GetValue(key int64) (common.RID, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == common.InvalidPageID {
		return common.RID{}, false, nil
	}
	leafRaw, err := t.getLeafPage(key)
	if err != nil {
		return common.RID{}, false, err
	}
	leaf := page.AsLeafPage(leafRaw)
	rid, found := leaf.Lookup(key)
	t.bpm.UnpinPage(leafRaw.ID(), false)
	return rid, found, nil
}

// Insert 插入键值对。键已存在时返回false
func (t *BPlusTree) Insert(key int64, rid common.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == common.InvalidPageID {
		if err := t.startNewTree(key, rid); err != nil {
			return false, err
		}
		return true, nil
	}
	return t.insertIntoLeaf(key, rid)
}

// startNewTree 以单个叶子页建树
func (t *BPlusTree) startNewTree(key int64, rid common.RID) error {
	rootRaw, err := t.bpm.NewPage()
	if err != nil {
		return errors.Wrapf(ErrOutOfMemory, "start new tree: %v", err)
	}
	root := page.AsLeafPage(rootRaw)
	root.Init(rootRaw.ID(), common.InvalidPageID, t.leafMaxSize)
	root.Insert(key, rid)

	t.rootPageID = rootRaw.ID()
	t.bpm.UnpinPage(rootRaw.ID(), true)
	return t.updateRootPageID()
}

// insertIntoLeaf 插入到既有叶子，必要时分裂并向上传播
func (t *BPlusTree) insertIntoLeaf(key int64, rid common.RID) (bool, error) {
	leafRaw, err := t.getLeafPage(key)
	if err != nil {
		return false, err
	}
	leaf := page.AsLeafPage(leafRaw)

	if _, exists := leaf.Lookup(key); exists {
		t.bpm.UnpinPage(leafRaw.ID(), false)
		return false, nil
	}

	leafRaw.WLatch()
	leaf.Insert(key, rid)
	leafRaw.WUnlatch()

	if leaf.Size() >= leaf.MaxSize() {
		if err := t.splitLeaf(leafRaw, leaf); err != nil {
			t.bpm.UnpinPage(leafRaw.ID(), true)
			return false, err
		}
	}
	t.bpm.UnpinPage(leafRaw.ID(), true)
	return true, nil
}

// splitLeaf 叶子分裂，新叶子接到右侧，首键上推
func (t *BPlusTree) splitLeaf(leafRaw *page.Page, leaf *page.BPlusTreeLeafPage) error {
	newRaw, err := t.bpm.NewPage()
	if err != nil {
		return errors.Wrapf(ErrOutOfMemory, "split leaf %d: %v", leafRaw.ID(), err)
	}
	newLeaf := page.AsLeafPage(newRaw)
	newLeaf.Init(newRaw.ID(), leaf.ParentPageID(), t.leafMaxSize)

	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(newRaw.ID())

	risenKey := newLeaf.KeyAt(0)
	err = t.insertIntoParent(&leaf.BPlusTreePage, risenKey, &newLeaf.BPlusTreePage)
	t.bpm.UnpinPage(newRaw.ID(), true)
	return err
}

// insertIntoParent 将分裂产生的(key, newNode)插入父节点，父节点溢出时递归分裂
func (t *BPlusTree) insertIntoParent(oldNode *page.BPlusTreePage, key int64, newNode *page.BPlusTreePage) error {
	if oldNode.IsRootPage() {
		newRootRaw, err := t.bpm.NewPage()
		if err != nil {
			return errors.Wrapf(ErrOutOfMemory, "grow new root: %v", err)
		}
		newRoot := page.AsInternalPage(newRootRaw)
		newRoot.Init(newRootRaw.ID(), common.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.PageID(), key, newNode.PageID())
		oldNode.SetParentPageID(newRootRaw.ID())
		newNode.SetParentPageID(newRootRaw.ID())

		t.rootPageID = newRootRaw.ID()
		t.bpm.UnpinPage(newRootRaw.ID(), true)
		return t.updateRootPageID()
	}

	parentRaw, err := t.bpm.FetchPage(oldNode.ParentPageID())
	if err != nil {
		return errors.Wrapf(err, "fetch parent %d", oldNode.ParentPageID())
	}
	parent := page.AsInternalPage(parentRaw)

	if parent.Size() < t.internalMaxSize {
		parent.InsertNodeAfter(oldNode.PageID(), key, newNode.PageID())
		newNode.SetParentPageID(parentRaw.ID())
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return nil
	}

	// 父节点已满：复制到超容暂存页，插入后分裂
	scratchRaw := page.NewPage(t.pageSize + page.InternalPairSize)
	scratch := page.AsInternalPage(scratchRaw)
	scratch.Init(parent.PageID(), parent.ParentPageID(), t.internalMaxSize)
	scratch.CopyAllFrom(parent)
	scratch.InsertNodeAfter(oldNode.PageID(), key, newNode.PageID())
	newNode.SetParentPageID(parentRaw.ID())

	splitRaw, err := t.bpm.NewPage()
	if err != nil {
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return errors.Wrapf(ErrOutOfMemory, "split internal %d: %v", parentRaw.ID(), err)
	}
	splitNode := page.AsInternalPage(splitRaw)
	splitNode.Init(splitRaw.ID(), parent.ParentPageID(), t.internalMaxSize)
	scratch.MoveHalfTo(splitNode)
	parent.CopyAllFrom(scratch)

	// 右半部分的子节点改挂到新内部页
	if err := t.reparentChildren(splitNode, 0, splitNode.Size()); err != nil {
		t.bpm.UnpinPage(splitRaw.ID(), true)
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return err
	}

	risenKey := splitNode.KeyAt(0)
	err = t.insertIntoParent(&parent.BPlusTreePage, risenKey, &splitNode.BPlusTreePage)
	t.bpm.UnpinPage(splitRaw.ID(), true)
	t.bpm.UnpinPage(parentRaw.ID(), true)
	return err
}

// reparentChildren 将internal[from, to)范围内子节点的parent指针改为internal自身
func (t *BPlusTree) reparentChildren(internal *page.BPlusTreeInternalPage, from, to int) error {
	for i := from; i < to; i++ {
		childID := internal.ChildAt(i)
		childRaw, err := t.bpm.FetchPage(childID)
		if err != nil {
			return errors.Wrapf(err, "fetch child %d for reparent", childID)
		}
		page.AsBPlusTreePage(childRaw).SetParentPageID(internal.PageID())
		t.bpm.UnpinPage(childID, true)
	}
	return nil
}

// Remove 删除键。键不存在时为空操作
func (t *BPlusTree) Remove(key int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == common.InvalidPageID {
		return nil
	}
	leafRaw, err := t.getLeafPage(key)
	if err != nil {
		return err
	}
	leaf := page.AsLeafPage(leafRaw)

	leafRaw.WLatch()
	removed := leaf.Remove(key)
	leafRaw.WUnlatch()
	if !removed {
		t.bpm.UnpinPage(leafRaw.ID(), false)
		return nil
	}

	if leaf.Size() < leaf.MinSize() || leaf.IsRootPage() {
		if err := t.coalesceOrRedistribute(leafRaw, &leaf.BPlusTreePage); err != nil {
			t.bpm.UnpinPage(leafRaw.ID(), true)
			return err
		}
	}
	t.bpm.UnpinPage(leafRaw.ID(), true)
	return nil
}

// coalesceOrRedistribute 下溢处理：先借，借不到则向左合并，必要时递归父节点
//
// node由调用者固定并释放；本函数内获取的父节点与兄弟页面在返回前释放。
func (t *BPlusTree) coalesceOrRedistribute(nodeRaw *page.Page, node *page.BPlusTreePage) error {
	if node.IsRootPage() {
		return t.adjustRoot(node)
	}
	if node.Size() >= node.MinSize() {
		return nil
	}

	parentRaw, err := t.bpm.FetchPage(node.ParentPageID())
	if err != nil {
		return errors.Wrapf(err, "fetch parent %d", node.ParentPageID())
	}
	parent := page.AsInternalPage(parentRaw)
	nodeIndex := parent.ChildIndex(node.PageID())
	if nodeIndex < 0 {
		panic("node is not a child of its recorded parent")
	}

	// 先尝试从左右兄弟借一个条目
	borrowed, err := t.tryRedistribute(node, parent, nodeIndex)
	if err != nil {
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return err
	}
	if borrowed {
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return nil
	}

	// 借不到则合并，统一并入左侧
	if err := t.coalesce(nodeRaw, node, parent, nodeIndex); err != nil {
		t.bpm.UnpinPage(parentRaw.ID(), true)
		return err
	}

	err = t.coalesceOrRedistribute(parentRaw, &parent.BPlusTreePage)
	t.bpm.UnpinPage(parentRaw.ID(), true)
	return err
}

// adjustRoot 根节点的特殊下溢规则
func (t *BPlusTree) adjustRoot(root *page.BPlusTreePage) error {
	if root.IsLeafPage() {
		if root.Size() == 0 {
			// 最后一个键被删除，整棵树置空
			t.rootPageID = common.InvalidPageID
			return t.updateRootPageID()
		}
		return nil
	}

	if root.Size() == 1 {
		// 内部根只剩单个子节点，提升该子节点为新根
		rootInternal := page.AsInternalPage(root.Page())
		childID := rootInternal.ChildAt(0)
		childRaw, err := t.bpm.FetchPage(childID)
		if err != nil {
			return errors.Wrapf(err, "fetch promoted child %d", childID)
		}
		page.AsBPlusTreePage(childRaw).SetParentPageID(common.InvalidPageID)
		t.rootPageID = childID
		t.bpm.UnpinPage(childID, true)
		logger.Debugf("btree %s root collapsed, new root %d", t.indexName, childID)
		return t.updateRootPageID()
	}
	return nil
}

// tryRedistribute 尝试从兄弟借一个条目，成功返回true
func (t *BPlusTree) tryRedistribute(node *page.BPlusTreePage, parent *page.BPlusTreeInternalPage, nodeIndex int) (bool, error) {
	if nodeIndex > 0 {
		leftRaw, err := t.bpm.FetchPage(parent.ChildAt(nodeIndex - 1))
		if err != nil {
			return false, errors.Wrap(err, "fetch left sibling")
		}
		left := page.AsBPlusTreePage(leftRaw)
		if left.Size() > left.MinSize() {
			if node.IsLeafPage() {
				leftLeaf := page.AsLeafPage(leftRaw)
				nodeLeaf := page.AsLeafPage(node.Page())
				leftLeaf.MoveLastToFrontOf(nodeLeaf)
				parent.SetKeyAt(nodeIndex, nodeLeaf.KeyAt(0))
			} else {
				leftInternal := page.AsInternalPage(leftRaw)
				nodeInternal := page.AsInternalPage(node.Page())
				stolenKey := leftInternal.StolenLastKey()
				leftInternal.MoveLastToFrontOf(nodeInternal, parent.KeyAt(nodeIndex))
				parent.SetKeyAt(nodeIndex, stolenKey)
				if err := t.reparentChildren(nodeInternal, 0, 1); err != nil {
					t.bpm.UnpinPage(leftRaw.ID(), true)
					return false, err
				}
			}
			t.bpm.UnpinPage(leftRaw.ID(), true)
			return true, nil
		}
		t.bpm.UnpinPage(leftRaw.ID(), false)
	}

	if nodeIndex < parent.Size()-1 {
		rightRaw, err := t.bpm.FetchPage(parent.ChildAt(nodeIndex + 1))
		if err != nil {
			return false, errors.Wrap(err, "fetch right sibling")
		}
		right := page.AsBPlusTreePage(rightRaw)
		if right.Size() > right.MinSize() {
			if node.IsLeafPage() {
				rightLeaf := page.AsLeafPage(rightRaw)
				nodeLeaf := page.AsLeafPage(node.Page())
				rightLeaf.MoveFirstToEndOf(nodeLeaf)
				parent.SetKeyAt(nodeIndex+1, rightLeaf.KeyAt(0))
			} else {
				rightInternal := page.AsInternalPage(rightRaw)
				nodeInternal := page.AsInternalPage(node.Page())
				rightInternal.MoveFirstToEndOf(nodeInternal, parent.KeyAt(nodeIndex+1))
				parent.SetKeyAt(nodeIndex+1, rightInternal.KeyAt(0))
				if err := t.reparentChildren(nodeInternal, nodeInternal.Size()-1, nodeInternal.Size()); err != nil {
					t.bpm.UnpinPage(rightRaw.ID(), true)
					return false, err
				}
			}
			t.bpm.UnpinPage(rightRaw.ID(), true)
			return true, nil
		}
		t.bpm.UnpinPage(rightRaw.ID(), false)
	}
	return false, nil
}

// coalesce 合并下溢节点。有左兄弟时并入左兄弟，否则右兄弟并入自身
func (t *BPlusTree) coalesce(nodeRaw *page.Page, node *page.BPlusTreePage, parent *page.BPlusTreeInternalPage, nodeIndex int) error {
	if nodeIndex > 0 {
		leftRaw, err := t.bpm.FetchPage(parent.ChildAt(nodeIndex - 1))
		if err != nil {
			return errors.Wrap(err, "fetch left sibling for coalesce")
		}
		if node.IsLeafPage() {
			page.AsLeafPage(nodeRaw).MoveAllTo(page.AsLeafPage(leftRaw))
		} else {
			leftInternal := page.AsInternalPage(leftRaw)
			movedFrom := leftInternal.Size()
			page.AsInternalPage(nodeRaw).MoveAllTo(leftInternal, parent.KeyAt(nodeIndex))
			if err := t.reparentChildren(leftInternal, movedFrom, leftInternal.Size()); err != nil {
				t.bpm.UnpinPage(leftRaw.ID(), true)
				return err
			}
		}
		parent.Remove(nodeIndex)
		t.bpm.UnpinPage(leftRaw.ID(), true)
		return nil
	}

	rightRaw, err := t.bpm.FetchPage(parent.ChildAt(nodeIndex + 1))
	if err != nil {
		return errors.Wrap(err, "fetch right sibling for coalesce")
	}
	if node.IsLeafPage() {
		page.AsLeafPage(rightRaw).MoveAllTo(page.AsLeafPage(nodeRaw))
	} else {
		nodeInternal := page.AsInternalPage(nodeRaw)
		movedFrom := nodeInternal.Size()
		page.AsInternalPage(rightRaw).MoveAllTo(nodeInternal, parent.KeyAt(nodeIndex+1))
		if err := t.reparentChildren(nodeInternal, movedFrom, nodeInternal.Size()); err != nil {
			t.bpm.UnpinPage(rightRaw.ID(), true)
			return err
		}
	}
	parent.Remove(nodeIndex + 1)
	t.bpm.UnpinPage(rightRaw.ID(), true)
	return nil
}

// getLeafPage 自根下降到key应落的叶子页，返回时仅叶子页保持固定
func (t *BPlusTree) getLeafPage(key int64) (*page.Page, error) {
	pageID := t.rootPageID
	for {
		raw, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch page %d during descent", pageID)
		}
		node := page.AsBPlusTreePage(raw)
		if node.IsLeafPage() {
			return raw, nil
		}
		next := page.AsInternalPage(raw).Lookup(key)
		t.bpm.UnpinPage(pageID, false)
		pageID = next
	}
}

// getLeftmostLeaf 最左叶子页
func (t *BPlusTree) getLeftmostLeaf() (*page.Page, error) {
	pageID := t.rootPageID
	for {
		raw, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch page %d during descent", pageID)
		}
		node := page.AsBPlusTreePage(raw)
		if node.IsLeafPage() {
			return raw, nil
		}
		next := page.AsInternalPage(raw).ChildAt(0)
		t.bpm.UnpinPage(pageID, false)
		pageID = next
	}
}

// updateRootPageID 将当前根页面号写入头页面注册表
func (t *BPlusTree) updateRootPageID() error {
	headerRaw, err := t.bpm.FetchPage(common.HeaderPageID)
	if err != nil {
		return errors.Wrap(err, "fetch header page")
	}
	header := page.AsHeaderPage(headerRaw)
	if !header.UpdateRecord(t.indexName, t.rootPageID) {
		header.InsertRecord(t.indexName, t.rootPageID)
	}
	t.bpm.UnpinPage(common.HeaderPageID, true)
	return nil
}

// RootPageID 当前根页面号
func (t *BPlusTree) RootPageID() common.PageID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID
}
