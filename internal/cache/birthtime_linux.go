//go:build linux

package cache

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime 通过 statx 读取创建时间，文件系统不支持时回退到 ModTime。
func birthTime(path string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return info.ModTime()
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
