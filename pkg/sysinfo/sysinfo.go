// Package sysinfo samples host CPU, memory and disk load for the safety monitor.
package sysinfo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Usage is one sample of host load in percent.
type Usage struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	DiskFreeBytes uint64
}

// String formats the sample for logs.
func (u Usage) String() string {
	return fmt.Sprintf("cpu %.1f%%, mem %.1f%%, disk %.1f%% (%s free)",
		u.CPUPercent, u.MemoryPercent, u.DiskPercent, humanize.Bytes(u.DiskFreeBytes))
}

// Sampler reads /proc and the filesystem holding DiskPath. CPU usage is the busy
// share since the previous sample, or since boot on the first call.
type Sampler struct {
	procRoot string
	diskPath string

	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64
}

// NewSampler creates a sampler. An empty procRoot means "/proc"; an empty diskPath means "/".
func NewSampler(procRoot, diskPath string) *Sampler {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{procRoot: procRoot, diskPath: diskPath}
}

// Sample returns the current usage.
func (s *Sampler) Sample(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}

	cpu, err := s.cpuPercent()
	if err != nil {
		return Usage{}, fmt.Errorf("cpu: %w", err)
	}
	mem, err := s.memoryPercent()
	if err != nil {
		return Usage{}, fmt.Errorf("memory: %w", err)
	}
	disk, free, err := diskUsage(s.diskPath)
	if err != nil {
		return Usage{}, fmt.Errorf("disk: %w", err)
	}
	return Usage{CPUPercent: cpu, MemoryPercent: mem, DiskPercent: disk, DiskFreeBytes: free}, nil
}

func (s *Sampler) cpuPercent() (float64, error) {
	busy, total, err := readCPUTimes(filepath.Join(s.procRoot, "stat"))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dBusy, dTotal := busy, total
	if s.prevTotal > 0 && total > s.prevTotal {
		dBusy, dTotal = busy-s.prevBusy, total-s.prevTotal
	}
	s.prevBusy, s.prevTotal = busy, total

	if dTotal == 0 {
		return 0, nil
	}
	return float64(dBusy) / float64(dTotal) * 100, nil
}

// readCPUTimes parses the aggregate "cpu" line; idle and iowait count as not busy.
func readCPUTimes(path string) (busy, total uint64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		var idle uint64
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parse %q: %w", f, err)
			}
			total += v
			if i == 3 || i == 4 {
				idle += v
			}
		}
		return total - idle, total, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, fmt.Errorf("no cpu line in %s", path)
}

func (s *Sampler) memoryPercent() (float64, error) {
	file, err := os.Open(filepath.Join(s.procRoot, "meminfo"))
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var total, available float64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable:":
			available, _ = strconv.ParseFloat(fields[1], 64)
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("MemTotal missing")
	}
	return (total - available) / total * 100, nil
}
