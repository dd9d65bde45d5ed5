package disk

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"xengine/common"
	"xengine/logger"
)

// DiskManager 以页为单位读写单个数据文件
//
// 页面id直接映射到文件内偏移 page_id * page_size。从未写过的页读出全零。
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	pageSize int
	method   CompressionMethod
	closed   bool

	// 统计信息
	stats struct {
		reads  uint64
		writes uint64
		syncs  uint64
	}
}

// NewDiskManager 打开或创建数据文件并施加独占文件锁
func NewDiskManager(path string, pageSize int, method CompressionMethod) (*DiskManager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create data dir for %s", path)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open data file %s", path)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, errors.Wrapf(ErrFileLocked, "%s: %v", path, err)
	}

	logger.Debugf("disk manager opened %s page_size=%d compression=%d", path, pageSize, method)
	return &DiskManager{
		file:     file,
		path:     path,
		pageSize: pageSize,
		method:   method,
	}, nil
}

// PageSize 页面大小
func (d *DiskManager) PageSize() int {
	return d.pageSize
}

// ReadPage 读取指定页到buf
func (d *DiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	if pageID < 0 {
		return errors.Wrapf(ErrInvalidPage, "read page %d", pageID)
	}
	if len(buf) != d.pageSize {
		return errors.Wrapf(ErrShortBuffer, "read buf %d, page size %d", len(buf), d.pageSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	block := make([]byte, d.pageSize)
	offset := int64(pageID) * int64(d.pageSize)
	n, err := d.file.ReadAt(block, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read page %d at offset %d", pageID, offset)
	}
	// 文件尾之外的页面按全零返回
	for i := n; i < d.pageSize; i++ {
		block[i] = 0
	}

	atomic.AddUint64(&d.stats.reads, 1)
	return decompressPageImage(block, buf)
}

// WritePage 将buf写入指定页
func (d *DiskManager) WritePage(pageID common.PageID, buf []byte) error {
	if pageID < 0 {
		return errors.Wrapf(ErrInvalidPage, "write page %d", pageID)
	}
	if len(buf) != d.pageSize {
		return errors.Wrapf(ErrShortBuffer, "write buf %d, page size %d", len(buf), d.pageSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	block := compressPageImage(d.method, buf)
	if len(block) < d.pageSize {
		padded := make([]byte, d.pageSize)
		copy(padded, block)
		block = padded
	}

	offset := int64(pageID) * int64(d.pageSize)
	if _, err := d.file.WriteAt(block, offset); err != nil {
		return errors.Wrapf(err, "write page %d at offset %d", pageID, offset)
	}

	atomic.AddUint64(&d.stats.writes, 1)
	return nil
}

// Sync 将文件内容落盘
func (d *DiskManager) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.file.Sync(); err != nil {
		return errors.Wrap(err, "sync data file")
	}
	atomic.AddUint64(&d.stats.syncs, 1)
	return nil
}

// Close 释放文件锁并关闭数据文件
func (d *DiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.file.Sync(); err != nil {
		logger.Warnf("sync on close failed: %v", err)
	}
	unlockFile(d.file)
	return d.file.Close()
}

// GetStats 磁盘读写统计
func (d *DiskManager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"reads":  atomic.LoadUint64(&d.stats.reads),
		"writes": atomic.LoadUint64(&d.stats.writes),
		"syncs":  atomic.LoadUint64(&d.stats.syncs),
	}
}
