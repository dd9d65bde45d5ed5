package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"xengine/buffer"
	"xengine/common"
	"xengine/concurrency"
	"xengine/conf"
	"xengine/logger"
	"xengine/stats"
	"xengine/storage/disk"
	"xengine/storage/index"
)

func main() {
	configPath := flag.String("config", "", "ini配置文件路径")
	flag.Parse()

	cfg := conf.NewCfg()
	if err := cfg.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}

	logger.Info("========== 存储引擎核心演示 ==========")

	method, err := disk.ParseCompressionMethod(cfg.Compression)
	if err != nil {
		logger.Fatalf("bad compression config: %v", err)
	}
	dm, err := disk.NewDiskManager(filepath.Join(cfg.DataDir, "xengine.db"), cfg.PageSize, method)
	if err != nil {
		logger.Fatalf("open disk manager failed: %v", err)
	}
	defer dm.Close()

	bpm, err := buffer.NewBufferPoolManager(cfg.PoolPages, cfg.ReplacerK, cfg.PageTableBucketSize, dm)
	if err != nil {
		logger.Fatalf("create buffer pool failed: %v", err)
	}

	lockMgr := concurrency.NewLockManager(cfg.CycleDetectionIntervalDuration)
	defer lockMgr.Close()
	txnMgr := concurrency.NewTransactionManager(lockMgr)

	// 统计服务按配置启动
	var statsSrv *stats.Server
	if addr := cfg.StatsAddr(); addr != "" {
		statsSrv = stats.NewServer(addr)
		statsSrv.Register("bufferpool", bpm)
		statsSrv.Register("disk", dm)
		statsSrv.Register("locks", lockMgr)
		statsSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			statsSrv.Close(ctx)
		}()
	}

	// B+树插入、点查、范围扫描、删除
	tree, err := index.NewBPlusTree("demo_index", bpm, cfg.PageSize, 0, 0)
	if err != nil {
		logger.Fatalf("create btree failed: %v", err)
	}

	const rows = 10000
	logger.Infof("插入 %d 行", rows)
	for i := int64(0); i < rows; i++ {
		key := (i * 7919) % rows // 打散插入顺序
		if _, err := tree.Insert(key, common.NewRID(common.PageID(key/100), int32(key%100))); err != nil {
			logger.Fatalf("insert key %d failed: %v", key, err)
		}
	}

	rid, found, err := tree.GetValue(4242)
	if err != nil || !found {
		logger.Fatalf("lookup key 4242 failed: found=%v err=%v", found, err)
	}
	logger.Infof("点查 4242 -> %s", rid)

	it, err := tree.BeginFrom(9990)
	if err != nil {
		logger.Fatalf("open iterator failed: %v", err)
	}
	count := 0
	for !it.IsEnd() {
		count++
		if err := it.Next(); err != nil {
			logger.Fatalf("iterate failed: %v", err)
		}
	}
	logger.Infof("范围扫描 [9990, +inf) 共 %d 行", count)

	for i := int64(0); i < rows; i += 2 {
		if err := tree.Remove(i); err != nil {
			logger.Fatalf("remove key %d failed: %v", i, err)
		}
	}
	logger.Infof("删除偶数键后根页面号 %d", tree.RootPageID())

	// 锁管理器：升级与死锁检测
	demoLocks(txnMgr, lockMgr)

	bpm.FlushAllPages()
	logger.Infof("缓冲池统计: %v", bpm.GetStats())
	logger.Infof("磁盘统计: %v", dm.GetStats())
	logger.Info("========== 演示结束 ==========")
}

// demoLocks 两个事务构造死锁，检测器中止较年轻者
func demoLocks(txnMgr *concurrency.TransactionManager, lockMgr *concurrency.LockManager) {
	const tableA, tableB = common.TableOID(1), common.TableOID(2)

	t1 := txnMgr.Begin(concurrency.REPEATABLE_READ)
	t2 := txnMgr.Begin(concurrency.REPEATABLE_READ)

	if ok, err := lockMgr.LockTable(t1, concurrency.LOCK_X, tableA); !ok {
		logger.Fatalf("t1 lock A failed: %v", err)
	}
	if ok, err := lockMgr.LockTable(t2, concurrency.LOCK_X, tableB); !ok {
		logger.Fatalf("t2 lock B failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// t2 等 A，与主goroutine的 t1 等 B 成环
		ok, _ := lockMgr.LockTable(t2, concurrency.LOCK_X, tableA)
		logger.Infof("t2 lock A granted=%v state=%v", ok, t2.State())
		if t2.State() == concurrency.ABORTED {
			// 释放t2已持有的锁，等待中的t1随即获得授予
			txnMgr.Abort(t2)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	ok, err := lockMgr.LockTable(t1, concurrency.LOCK_X, tableB)
	logger.Infof("t1 lock B granted=%v err=%v", ok, err)
	<-done

	txnMgr.Commit(t1)
}
