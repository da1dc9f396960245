package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// timestampFormat includes microseconds so rapid consecutive backups
// never collide.
const timestampFormat = "20060102-150405.000000"

// Info describes one backup file.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// BackupFile copies src into dir under a timestamped name derived from
// the source filename, creating dir if needed.
func BackupFile(src, dir string) (Info, error) {
	if _, err := os.Stat(src); err != nil {
		return Info{}, fmt.Errorf("source not found: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Info{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dst := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, time.Now().Format(timestampFormat), ext))

	if err := copyFile(src, dst); err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(dst)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat backup: %w", err)
	}
	return Info{Path: dst, Size: stat.Size(), CreatedAt: stat.ModTime()}, nil
}

// ListBackups enumerates the backup files in dir, newest first.
func ListBackups(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Size:      stat.Size(),
			CreatedAt: stat.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Prune removes the oldest backups in dir beyond keep and returns how
// many were deleted.
func Prune(dir string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", b.Path, err)
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	return out.Close()
}
