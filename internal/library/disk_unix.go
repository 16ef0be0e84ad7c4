//go:build !windows

package library

import "golang.org/x/sys/unix"

// FreeSpaceGB returns the free space of the filesystem holding path in GiB.
// A missing path walks up to the nearest existing parent.
func FreeSpaceGB(path string) (float64, error) {
	probe, err := nearestExisting(path)
	if err != nil {
		return 0, err
	}
	var st unix.Statfs_t
	if err := unix.Statfs(probe, &st); err != nil {
		return 0, err
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	return free / (1 << 30), nil
}
