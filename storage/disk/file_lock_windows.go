//go:build windows

package disk

import "os"

// Windows下依赖CreateFile默认的共享语义，不再额外加锁
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) {}
