package storage

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
)

// Header bytes prefixed to every file in the disk tier.
const (
	headerPlain byte = 0
	headerGzip  byte = 1
)

// diskTier keeps one file per id under dir. The directory is owned by a
// single process through an flock held on <dir>.lock.
type diskTier struct {
	dir  string
	lock *flock.Flock
}

func openDiskTier(dir string) (*diskTier, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fserrors.StorageError("failed to create storage parent directory", err).
			WithDetail("dir", dir)
	}

	lock := flock.New(dir + ".lock")
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fserrors.New(fserrors.ErrCodeStorageLocked, "failed to lock storage directory", err).
			WithDetail("dir", dir)
	}
	if !acquired {
		return nil, fserrors.New(fserrors.ErrCodeStorageLocked, "storage directory is in use by another process", nil).
			WithDetail("dir", dir).
			WithSuggestion("Stop the other fsindex daemon or set storage.dir to a different path")
	}

	// Leftovers belong to a previous run; contents are not durable.
	if err := os.RemoveAll(dir); err != nil {
		_ = lock.Unlock()
		return nil, fserrors.StorageError("failed to clear storage directory", err).WithDetail("dir", dir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		_ = lock.Unlock()
		return nil, fserrors.StorageError("failed to create storage directory", err).WithDetail("dir", dir)
	}
	return &diskTier{dir: dir, lock: lock}, nil
}

func (d *diskTier) path(id fileid.FileID) string {
	return filepath.Join(d.dir, string(id))
}

func (d *diskTier) write(id fileid.FileID, data []byte, compressed bool) error {
	header := headerPlain
	if compressed {
		header = headerGzip
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, header)
	buf = append(buf, data...)

	tmp := d.path(id) + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		_ = os.Remove(tmp)
		return writeError(id, err)
	}
	if err := os.Rename(tmp, d.path(id)); err != nil {
		_ = os.Remove(tmp)
		return writeError(id, err)
	}
	return nil
}

func (d *diskTier) read(id fileid.FileID) ([]byte, bool, bool, error) {
	raw, err := os.ReadFile(d.path(id))
	if os.IsNotExist(err) {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, fserrors.New(fserrors.ErrCodeStorageRead, "failed to read stored content", err).
			WithDetail("file_id", string(id))
	}
	if len(raw) == 0 {
		return nil, false, false, fserrors.New(fserrors.ErrCodeStorageRead, "stored content is truncated", nil).
			WithDetail("file_id", string(id))
	}
	return raw[1:], raw[0] == headerGzip, true, nil
}

func (d *diskTier) remove(id fileid.FileID) error {
	err := os.Remove(d.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fserrors.StorageError("failed to remove stored content", err).WithDetail("file_id", string(id))
	}
	return nil
}

func (d *diskTier) close() error {
	removeErr := os.RemoveAll(d.dir)
	unlockErr := d.lock.Unlock()
	_ = os.Remove(d.lock.Path())
	if removeErr != nil {
		return fmt.Errorf("remove storage directory: %w", removeErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("release storage lock: %w", unlockErr)
	}
	return nil
}

func writeError(id fileid.FileID, err error) error {
	if stderrors.Is(err, syscall.ENOSPC) {
		return fserrors.New(fserrors.ErrCodeDiskFull, "no space left for stored content", err).
			WithDetail("file_id", string(id))
	}
	return fserrors.StorageError("failed to write stored content", err).WithDetail("file_id", string(id))
}
