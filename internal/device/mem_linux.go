//go:build linux

package device

import "golang.org/x/sys/unix"

func totalMemoryMB() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int64(uint64(info.Totalram) * uint64(info.Unit) / (1024 * 1024))
}
