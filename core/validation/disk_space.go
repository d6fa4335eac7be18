package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// MinHistoryFreeBytes is the free space required next to the history database.
const MinHistoryFreeBytes int64 = 64 * 1024 * 1024

// DiskSpaceInfo describes the filesystem holding a path.
type DiskSpaceInfo struct {
	Path        string
	Total       int64
	Free        int64
	Used        int64
	UsedPercent float64
}

// FreeFormatted renders Free for humans, e.g. "12 GiB".
func (d *DiskSpaceInfo) FreeFormatted() string {
	return humanize.IBytes(uint64(d.Free))
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, humanize.IBytes(uint64(e.Required)), humanize.IBytes(uint64(e.Available)))
}

// GetDiskSpace reports on the filesystem containing path. A path that does
// not exist yet is resolved to its nearest existing ancestor, so the
// location of a database that will be created on first start can be checked.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	path = filepath.Clean(path)
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				path = filepath.Dir(path)
			}
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot access path %s: %w", path, err)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no existing directory above %s", path)
		}
		path = parent
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}
	return &DiskSpaceInfo{
		Path:        path,
		Total:       total,
		Free:        free,
		Used:        used,
		UsedPercent: usedPercent,
	}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when fewer than requiredBytes are
// free at path.
func CheckDiskSpace(path string, requiredBytes int64) (*DiskSpaceInfo, error) {
	info, err := GetDiskSpace(path)
	if err != nil {
		return nil, err
	}
	if info.Free < requiredBytes {
		return info, &DiskSpaceError{Path: info.Path, Required: requiredBytes, Available: info.Free}
	}
	return info, nil
}
