//go:build unix

package sysinfo

import "golang.org/x/sys/unix"

func diskUsage(path string) (percent float64, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize) //nolint:unconvert // Bsize width differs per platform
	total := uint64(st.Blocks) * bsize
	free = uint64(st.Bavail) * bsize
	if total == 0 {
		return 0, free, nil
	}
	used := total - uint64(st.Bfree)*bsize
	return float64(used) / float64(total) * 100, free, nil
}
