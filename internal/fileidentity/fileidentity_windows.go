//go:build windows

package fileidentity

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// tryResolve uses the NTFS volume serial number and file index, queried via
// GetFileInformationByHandle.
func tryResolve(fullPath string) (Identity, bool) {
	ptr, err := windows.UTF16PtrFromString(fullPath)
	if err != nil {
		return Identity{}, false
	}

	handle, err := windows.CreateFile(
		ptr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return Identity{}, false
	}
	defer syscall.CloseHandle(syscall.Handle(handle))

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &info); err != nil {
		return Identity{}, false
	}

	fileIndex := (uint64(info.FileIndexHigh) << 32) | uint64(info.FileIndexLow)

	return Identity{
		Device: strconv.FormatUint(uint64(info.VolumeSerialNumber), 10),
		Value:  strconv.FormatUint(fileIndex, 10),
	}, true
}
