//go:build !windows

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile 对数据文件施加独占advisory锁，已被占用时立即失败
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// unlockFile 释放文件锁
func unlockFile(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
