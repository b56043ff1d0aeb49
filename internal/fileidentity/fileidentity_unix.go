//go:build linux || darwin

package fileidentity

import (
	"os"
	"strconv"
	"syscall"
)

// tryResolve uses the POSIX device+inode pair, which is stable across
// renames and moves within the same filesystem.
func tryResolve(fullPath string) (Identity, bool) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return Identity{}, false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Identity{}, false
	}
	return Identity{
		Device: strconv.FormatUint(uint64(stat.Dev), 10),
		Value:  strconv.FormatUint(stat.Ino, 10),
	}, true
}
