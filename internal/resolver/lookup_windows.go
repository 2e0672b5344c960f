//go:build windows

package resolver

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procGetPackageFamilyName = modkernel32.NewProc("GetPackageFamilyName")
)

const appModelErrorNoPackage = 15700 // APPMODEL_ERROR_NO_PACKAGE

// systemLookup reads the package family name of a process through the
// AppModel API. Processes that are not packaged report no identity; a
// process still initializing can fail transiently and is retried.
type systemLookup struct{}

// NewSystemLookup returns the platform package-identity lookup.
func NewSystemLookup() Lookup {
	return systemLookup{}
}

func (systemLookup) PackageIdentity(_ context.Context, pid int) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	var length uint32 = 256
	buf := make([]uint16, length)
	ret, _, _ := procGetPackageFamilyName.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&length)),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	switch ret {
	case 0: // ERROR_SUCCESS
		return windows.UTF16ToString(buf[:length]), nil
	case appModelErrorNoPackage:
		return "", nil
	default:
		return "", fmt.Errorf("GetPackageFamilyName(%d) failed with %d", pid, ret)
	}
}
