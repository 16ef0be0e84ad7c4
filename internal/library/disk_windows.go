//go:build windows

package library

import "golang.org/x/sys/windows"

// FreeSpaceGB returns the free space of the volume holding path in GiB.
func FreeSpaceGB(path string) (float64, error) {
	probe, err := nearestExisting(path)
	if err != nil {
		return 0, err
	}
	p, err := windows.UTF16PtrFromString(probe)
	if err != nil {
		return 0, err
	}
	var freeToCaller, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &free); err != nil {
		return 0, err
	}
	return float64(freeToCaller) / (1 << 30), nil
}
