package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// Stats summarizes a store for status reporting.
type Stats struct {
	Tracks     int64  `json:"tracks"`
	Dimensions int    `json:"dimensions"`
	IndexType  string `json:"index_type"`
	DiskBytes  int64  `json:"disk_bytes"`
}

// CollectStats counts tracks in store and sums the on-disk size of paths.
func CollectStats(ctx context.Context, store VectorStore, paths ...string) (*Stats, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Tracks: count, Dimensions: store.Dimensions(), IndexType: "unknown"}
	if typed, ok := store.(interface{ IndexType() string }); ok {
		st.IndexType = typed.IndexType()
	}
	size, err := DiskUsageBytes(paths...)
	if err != nil {
		return nil, err
	}
	st.DiskBytes = size
	return st, nil
}

// DiskUsageBytes returns the total size in bytes of the given files and directories.
// Missing paths count as zero. The SQLite WAL and shared-memory side files are included.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" || p == ":memory:" {
			continue
		}
		for _, candidate := range []string{p, p + "-wal", p + "-shm"} {
			n, err := pathSize(candidate)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
