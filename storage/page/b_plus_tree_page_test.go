package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xengine/common"
)

func newLeaf(t *testing.T, pageID common.PageID, maxSize int) *BPlusTreeLeafPage {
	t.Helper()
	lp := AsLeafPage(NewPage(4096))
	lp.Init(pageID, common.InvalidPageID, maxSize)
	return lp
}

func newInternal(t *testing.T, pageID common.PageID, maxSize int) *BPlusTreeInternalPage {
	t.Helper()
	ip := AsInternalPage(NewPage(4096))
	ip.Init(pageID, common.InvalidPageID, maxSize)
	return ip
}

func TestBPlusTreeLeafPage(t *testing.T) {
	t.Run("头字段往返", func(t *testing.T) {
		lp := newLeaf(t, 5, 8)
		assert.Equal(t, LEAF_PAGE, lp.PageType())
		assert.True(t, lp.IsLeafPage())
		assert.True(t, lp.IsRootPage())
		assert.Equal(t, common.PageID(5), lp.PageID())
		assert.Equal(t, 8, lp.MaxSize())
		assert.Equal(t, 4, lp.MinSize())
		assert.Equal(t, common.InvalidPageID, lp.NextPageID())

		lp.SetParentPageID(2)
		assert.False(t, lp.IsRootPage())
	})

	t.Run("有序插入与查找", func(t *testing.T) {
		lp := newLeaf(t, 1, 8)
		for _, k := range []int64{30, 10, 50, 20, 40} {
			lp.Insert(k, common.NewRID(common.PageID(k), 0))
		}
		require.Equal(t, 5, lp.Size())
		for i := 0; i < 4; i++ {
			assert.Less(t, lp.KeyAt(i), lp.KeyAt(i+1))
		}

		rid, ok := lp.Lookup(30)
		require.True(t, ok)
		assert.Equal(t, common.PageID(30), rid.PageID)
		_, ok = lp.Lookup(35)
		assert.False(t, ok)

		// 重复插入不改变大小
		lp.Insert(30, common.NewRID(99, 99))
		assert.Equal(t, 5, lp.Size())
	})

	t.Run("删除与KeyIndex", func(t *testing.T) {
		lp := newLeaf(t, 1, 8)
		for _, k := range []int64{10, 20, 30} {
			lp.Insert(k, common.RID{})
		}
		assert.Equal(t, 1, lp.KeyIndex(15))
		assert.Equal(t, 1, lp.KeyIndex(20))
		assert.Equal(t, 3, lp.KeyIndex(99))

		assert.True(t, lp.Remove(20))
		assert.False(t, lp.Remove(20))
		assert.Equal(t, 2, lp.Size())
		assert.Equal(t, int64(30), lp.KeyAt(1))
	})

	t.Run("分裂搬移后半", func(t *testing.T) {
		left := newLeaf(t, 1, 4)
		right := newLeaf(t, 2, 4)
		for _, k := range []int64{1, 2, 3, 4} {
			left.Insert(k, common.RID{})
		}
		left.MoveHalfTo(right)
		assert.Equal(t, 2, left.Size())
		assert.Equal(t, 2, right.Size())
		assert.Equal(t, int64(3), right.KeyAt(0))
	})

	t.Run("借位与合并", func(t *testing.T) {
		left := newLeaf(t, 1, 8)
		right := newLeaf(t, 2, 8)
		for _, k := range []int64{1, 2, 3} {
			left.Insert(k, common.RID{})
		}
		for _, k := range []int64{10, 20} {
			right.Insert(k, common.RID{})
		}

		left.MoveLastToFrontOf(right)
		assert.Equal(t, int64(3), right.KeyAt(0))
		assert.Equal(t, 2, left.Size())

		right.MoveFirstToEndOf(left)
		assert.Equal(t, int64(3), left.KeyAt(2))

		left.SetNextPageID(right.PageID())
		right.SetNextPageID(77)
		right.MoveAllTo(left)
		assert.Equal(t, 5, left.Size())
		assert.Equal(t, 0, right.Size())
		assert.Equal(t, common.PageID(77), left.NextPageID())
	})
}

func TestBPlusTreeInternalPage(t *testing.T) {
	t.Run("新根与下降查找", func(t *testing.T) {
		ip := newInternal(t, 9, 8)
		ip.PopulateNewRoot(1, 100, 2)
		require.Equal(t, 2, ip.Size())

		assert.Equal(t, common.PageID(1), ip.Lookup(50))
		assert.Equal(t, common.PageID(2), ip.Lookup(100))
		assert.Equal(t, common.PageID(2), ip.Lookup(500))
	})

	t.Run("插入与删除条目", func(t *testing.T) {
		ip := newInternal(t, 9, 8)
		ip.PopulateNewRoot(1, 100, 2)
		ip.InsertNodeAfter(2, 200, 3)
		ip.InsertNodeAfter(2, 150, 4)
		require.Equal(t, 4, ip.Size())

		// 条目顺序: child1 | 100 child2 | 150 child4 | 200 child3
		assert.Equal(t, common.PageID(4), ip.Lookup(150))
		assert.Equal(t, common.PageID(3), ip.Lookup(999))
		assert.Equal(t, 2, ip.ChildIndex(4))

		ip.Remove(2)
		assert.Equal(t, 3, ip.Size())
		assert.Equal(t, common.PageID(3), ip.Lookup(250))
	})

	t.Run("分裂搬移与上推键", func(t *testing.T) {
		src := newInternal(t, 9, 4)
		dst := newInternal(t, 10, 4)
		src.PopulateNewRoot(1, 100, 2)
		src.InsertNodeAfter(2, 200, 3)
		src.InsertNodeAfter(3, 300, 4)
		src.InsertNodeAfter(4, 400, 5)
		require.Equal(t, 5, src.Size())

		src.MoveHalfTo(dst)
		assert.Equal(t, 3, src.Size())
		assert.Equal(t, 2, dst.Size())
		// dst下标0的键是待上推的分隔键
		assert.Equal(t, int64(300), dst.KeyAt(0))
		assert.Equal(t, common.PageID(4), dst.ChildAt(0))
	})

	t.Run("借位与合并", func(t *testing.T) {
		left := newInternal(t, 1, 8)
		node := newInternal(t, 2, 8)
		left.PopulateNewRoot(10, 100, 11)
		left.InsertNodeAfter(11, 200, 12)
		node.PopulateNewRoot(20, 500, 21)

		// 从左兄弟借末尾条目，分隔键400下移
		stolen := left.StolenLastKey()
		assert.Equal(t, int64(200), stolen)
		left.MoveLastToFrontOf(node, 400)
		assert.Equal(t, 2, left.Size())
		require.Equal(t, 3, node.Size())
		assert.Equal(t, common.PageID(12), node.ChildAt(0))
		assert.Equal(t, int64(400), node.KeyAt(1))

		// 合并: node全部并入left，分隔键300居中
		node.MoveAllTo(left, 300)
		require.Equal(t, 5, left.Size())
		assert.Equal(t, int64(300), left.KeyAt(2))
		assert.Equal(t, common.PageID(12), left.ChildAt(2))
		assert.Equal(t, 0, node.Size())
	})
}
