//go:build !unix

package sysinfo

import "errors"

func diskUsage(path string) (float64, uint64, error) {
	return 0, 0, errors.New("disk usage not supported on this platform")
}
