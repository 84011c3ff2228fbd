//go:build darwin

package device

import "golang.org/x/sys/unix"

func totalMemoryMB() int64 {
	b, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return int64(b / (1024 * 1024))
}
