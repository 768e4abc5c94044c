package storage

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/maclib/library"
)

// Backup file naming.
const (
	BackupPrefix     = "library_backup_"
	BackupPattern    = BackupPrefix + "*.json"
	BackupTimeLayout = "20060102_150405"
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

// BackupName returns the backup filename for t.
func BackupName(t time.Time) string {
	return BackupPrefix + t.Format(BackupTimeLayout) + ".json"
}

// CreateBackup copies the canonical document to backups/ and rotates old
// backups. It returns ErrNoLibrary when there is nothing to back up and
// ErrBackupExists when a backup was already taken this second; an existing
// backup is never overwritten.
func (s *FileStore) CreateBackup() (name string, err error) {
	defer func() { observe("backup", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Exists() {
		return "", ErrNoLibrary
	}
	if err := s.EnsureDirectories(); err != nil {
		return "", ioFailure(s.logger, "create backup", err)
	}

	data, err := os.ReadFile(s.LibraryPath())
	if err != nil {
		return "", ioFailure(s.logger, "create backup", err, "path", s.LibraryPath())
	}

	now := s.now()
	name = BackupName(now)
	path := filepath.Join(s.BackupsPath(), name)
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrBackupExists, name)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", ioFailure(s.logger, "create backup", err, "path", path)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", ioFailure(s.logger, "create backup", err, "path", path)
	}
	// Retention ranks by mtime, so stamp it from the store clock.
	if err := os.Chtimes(path, now, now); err != nil {
		return "", ioFailure(s.logger, "create backup", err, "path", path)
	}

	s.logger.Info("Created backup", "filename", name)

	if err := s.rotateBackups(); err != nil {
		return "", err
	}
	return name, nil
}

// rotateBackups keeps the MaxBackups most recently modified backups.
// Caller must hold s.mu.
func (s *FileStore) rotateBackups() error {
	backups, err := s.listBackups()
	if err != nil {
		return err
	}

	if len(backups) > s.maxBackups {
		for _, b := range backups[s.maxBackups:] {
			path := filepath.Join(s.BackupsPath(), b.Filename)
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return ioFailure(s.logger, "rotate backups", err, "path", path)
			}
			s.logger.Debug("Removed old backup", "filename", b.Filename)
		}
		backups = backups[:s.maxBackups]
	}

	backupsRetained.Set(float64(len(backups)))
	return nil
}

// ListBackups returns every backup, newest first.
func (s *FileStore) ListBackups() (backups []BackupInfo, err error) {
	defer func() { observe("list_backups", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBackups()
}

func (s *FileStore) listBackups() ([]BackupInfo, error) {
	dir := s.BackupsPath()
	matches, err := doublestar.Glob(os.DirFS(dir), BackupPattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []BackupInfo{}, nil
		}
		return nil, ioFailure(s.logger, "list backups", err, "dir", dir)
	}

	backups := make([]BackupInfo, 0, len(matches))
	for _, name := range matches {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			// Removed between glob and stat.
			continue
		}
		backups = append(backups, BackupInfo{
			Filename: name,
			Modified: info.ModTime(),
			Size:     info.Size(),
		})
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		if c := b.Modified.Compare(a.Modified); c != 0 {
			return c
		}
		return cmp.Compare(b.Filename, a.Filename)
	})
	return backups, nil
}

// BackupPath resolves name to an existing backup file inside backups/.
func (s *FileStore) BackupPath(name string) (string, error) {
	return s.resolveBackup(name)
}

// resolveBackup rejects names that do not follow the backup pattern or that
// resolve outside the backups directory, and reports ErrBackupNotFound for
// well-formed names with no file behind them.
func (s *FileStore) resolveBackup(name string) (string, error) {
	if err := validateFileName(name); err != nil {
		return "", err
	}
	if ok, _ := doublestar.Match(BackupPattern, name); !ok {
		return "", fmt.Errorf("%w: %q is not a backup file", ErrInvalidName, name)
	}

	dir, err := filepath.Abs(s.BackupsPath())
	if err != nil {
		return "", ioFailure(s.logger, "resolve backup", err)
	}
	path := filepath.Join(dir, name)
	if !within(dir, path) {
		return "", fmt.Errorf("%w: %q escapes the backup directory", ErrInvalidName, name)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		return "", ioFailure(s.logger, "resolve backup", err, "path", path)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		realDir, err := filepath.EvalSymlinks(dir)
		if err != nil || !within(realDir, target) {
			return "", fmt.Errorf("%w: %q escapes the backup directory", ErrInvalidName, name)
		}
	} else if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	return path, nil
}

// within reports whether path is a direct child of dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// RestoreFromBackup copies the named backup over the canonical document.
// A backup that does not decode is rejected with library.ErrInvalidFormat
// and the canonical document is left alone. The caller is responsible for
// reloading.
func (s *FileStore) RestoreFromBackup(name string) (err error) {
	defer func() { observe("restore_backup", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolveBackup(name)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ioFailure(s.logger, "restore backup", err, "path", path)
	}
	if _, err := library.Decode(data); err != nil {
		s.logger.Warn("Backup is malformed", "filename", name, "error", err)
		return fmt.Errorf("restore backup %s: %w", name, err)
	}
	if err := writeFileAtomic(s.LibraryPath(), data); err != nil {
		return ioFailure(s.logger, "restore backup", err, "path", s.LibraryPath())
	}

	s.logger.Info("Restored library from backup", "filename", name)
	return nil
}

// DeleteBackup removes one backup.
func (s *FileStore) DeleteBackup(name string) (err error) {
	defer func() { observe("delete_backup", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolveBackup(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return ioFailure(s.logger, "delete backup", err, "path", path)
	}

	s.logger.Info("Deleted backup", "filename", name)
	backupsRetained.Dec()
	return nil
}

// DeleteAllBackups removes every backup and returns how many were deleted.
func (s *FileStore) DeleteAllBackups() (deleted int, err error) {
	defer func() { observe("delete_all_backups", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	backups, err := s.listBackups()
	if err != nil {
		return 0, err
	}
	for _, b := range backups {
		path, err := s.resolveBackup(b.Filename)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			return deleted, ioFailure(s.logger, "delete all backups", err, "path", path)
		}
		deleted++
	}

	s.logger.Info("Deleted all backups", "count", deleted)
	backupsRetained.Set(0)
	return deleted, nil
}
