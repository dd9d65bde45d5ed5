package hash

import (
	"sync"
)

// entry 桶内键值对
type entry[K comparable, V any] struct {
	key   K
	value V
}

// bucket 扩展哈希桶，局部深度决定其承接的地址位数
type bucket[K comparable, V any] struct {
	items []entry[K, V]
	size  int
	depth int
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{
		items: make([]entry[K, V], 0, size),
		size:  size,
		depth: depth,
	}
}

func (b *bucket[K, V]) isFull() bool {
	return len(b.items) >= b.size
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for i := range b.items {
		if b.items[i].key == key {
			return b.items[i].value, true
		}
	}
	var zero V
	return zero, false
}

// insert 插入或更新。桶满且键不存在时返回false
func (b *bucket[K, V]) insert(key K, value V) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key: key, value: value})
	return true
}

func (b *bucket[K, V]) remove(key K) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// ExtendibleHashTable 扩展哈希表
//
// 目录含 2^global_depth 个表项，局部深度以上的地址位不同的表项共享同一个桶。
// 表级互斥锁，目录倍增同样在锁内完成。
type ExtendibleHashTable[K comparable, V any] struct {
	mu sync.Mutex

	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hashFn      func(K) uint64
}

// NewExtendibleHashTable 创建扩展哈希表，hashFn给出键的64位散列
func NewExtendibleHashTable[K comparable, V any](bucketSize int, hashFn func(K) uint64) *ExtendibleHashTable[K, V] {
	return &ExtendibleHashTable[K, V]{
		globalDepth: 0,
		bucketSize:  bucketSize,
		numBuckets:  1,
		dir:         []*bucket[K, V]{newBucket[K, V](bucketSize, 0)},
		hashFn:      hashFn,
	}
}

// indexOf 键对应的目录下标
func (h *ExtendibleHashTable[K, V]) indexOf(key K) int {
	mask := uint64(1)<<h.globalDepth - 1
	return int(h.hashFn(key) & mask)
}

// Find 查找键
func (h *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[h.indexOf(key)].find(key)
}

// Remove 删除键，返回是否存在
func (h *ExtendibleHashTable[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[h.indexOf(key)].remove(key)
}

// Insert 插入键值对，键已存在时覆盖
func (h *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		target := h.dir[h.indexOf(key)]
		if target.insert(key, value) {
			return
		}

		// 目标桶已满，先分裂再重试
		if target.depth == h.globalDepth {
			// 目录倍增，新表项沿用原有桶指针
			h.dir = append(h.dir, h.dir...)
			h.globalDepth++
		}

		oldDepth := target.depth
		splitBit := uint64(1) << oldDepth
		zeroBucket := newBucket[K, V](h.bucketSize, oldDepth+1)
		oneBucket := newBucket[K, V](h.bucketSize, oldDepth+1)
		for _, item := range target.items {
			if h.hashFn(item.key)&splitBit != 0 {
				oneBucket.items = append(oneBucket.items, item)
			} else {
				zeroBucket.items = append(zeroBucket.items, item)
			}
		}
		for i := range h.dir {
			if h.dir[i] == target {
				if uint64(i)&splitBit != 0 {
					h.dir[i] = oneBucket
				} else {
					h.dir[i] = zeroBucket
				}
			}
		}
		h.numBuckets++
	}
}

// GetGlobalDepth 全局深度
func (h *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.globalDepth
}

// GetLocalDepth 指定目录项指向桶的局部深度
func (h *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[dirIndex].depth
}

// GetNumBuckets 互不相同的桶数量
func (h *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numBuckets
}
