package infrastructure

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// StorageInfo reports filesystem capacity for the download directory.
type StorageInfo struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage returns capacity numbers for the filesystem containing path.
func DiskUsage(path string) (*StorageInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat filesystem for %s: %w", path, err)
	}
	return &StorageInfo{
		Path:        path,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedBytes:   usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}
