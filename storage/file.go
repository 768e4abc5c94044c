// Package storage persists the standards library as a single JSON document
// with timestamped backups, filtered exports and an optional JetStream KV
// mirror.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360studio/maclib/library"
)

// Layout of the base directory.
const (
	LibraryFile = "library.json"
	BackupsDir  = "backups"
	ExportsDir  = "exports"

	// DefaultDirName is the base directory name used when none is configured.
	DefaultDirName = "standards_library"

	// DefaultMaxBackups is the number of backups kept by rotation.
	DefaultMaxBackups = 5
)

// DefaultBaseDir returns the data directory for this environment. On Cloud
// Run (K_SERVICE set) only /tmp is writable.
func DefaultBaseDir() string {
	if os.Getenv("K_SERVICE") != "" {
		return filepath.Join(os.TempDir(), DefaultDirName)
	}
	return DefaultDirName
}

// Mirror receives a copy of every document the store saves.
type Mirror interface {
	Put(ctx context.Context, data []byte) error
}

// Options configures a FileStore.
type Options struct {
	// BaseDir holds library.json, backups/ and exports/.
	BaseDir string
	// MaxBackups is the retention count (default 5).
	MaxBackups int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Mirror is optional.
	Mirror Mirror
}

// FileStore reads and writes the canonical library document.
//
// Writes, backup rotation and deletes are serialized by an internal mutex.
type FileStore struct {
	baseDir    string
	maxBackups int
	logger     *slog.Logger
	now        func() time.Time
	mirror     Mirror

	mu     sync.Mutex
	digest string
}

// NewFileStore creates a store rooted at opts.BaseDir. Directories are
// created lazily on first write.
func NewFileStore(opts Options) *FileStore {
	if opts.BaseDir == "" {
		opts.BaseDir = DefaultBaseDir()
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FileStore{
		baseDir:    opts.BaseDir,
		maxBackups: opts.MaxBackups,
		logger:     opts.Logger,
		now:        opts.Now,
		mirror:     opts.Mirror,
	}
}

// BaseDir returns the store's root directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// LibraryPath returns the path of the canonical document.
func (s *FileStore) LibraryPath() string {
	return filepath.Join(s.baseDir, LibraryFile)
}

// BackupsPath returns the backups directory.
func (s *FileStore) BackupsPath() string {
	return filepath.Join(s.baseDir, BackupsDir)
}

// ExportsPath returns the exports directory.
func (s *FileStore) ExportsPath() string {
	return filepath.Join(s.baseDir, ExportsDir)
}

// MaxBackups returns the retention count.
func (s *FileStore) MaxBackups() int {
	return s.maxBackups
}

// EnsureDirectories creates the directory structure if it doesn't exist.
func (s *FileStore) EnsureDirectories() error {
	for _, dir := range []string{s.baseDir, s.BackupsPath(), s.ExportsPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether a canonical library document is present.
func (s *FileStore) Exists() bool {
	info, err := os.Stat(s.LibraryPath())
	return err == nil && info.Mode().IsRegular()
}

// Digest returns the SHA-256 of the document this store last read or wrote.
func (s *FileStore) Digest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}

// Load reads and decodes the canonical document.
func (s *FileStore) Load() (lib *library.Library, err error) {
	defer func() { observe("load", err) }()

	if !s.Exists() {
		return nil, ErrNoLibrary
	}

	data, err := os.ReadFile(s.LibraryPath())
	if err != nil {
		return nil, ioFailure(s.logger, "load library", err, "path", s.LibraryPath())
	}

	lib, err = library.Decode(data)
	if err != nil {
		s.logger.Error("Library document is malformed", "path", s.LibraryPath(), "error", err)
		return nil, fmt.Errorf("load library: %w", err)
	}

	s.mu.Lock()
	s.digest = digestOf(data)
	s.mu.Unlock()

	return lib, nil
}

// Save stamps lib.LastModified, serializes the whole library and replaces
// the canonical document.
func (s *FileStore) Save(ctx context.Context, lib *library.Library) (err error) {
	defer func() { observe("save", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureDirectories(); err != nil {
		return ioFailure(s.logger, "save library", err)
	}

	lib.Touch(s.now())
	data, err := library.Encode(lib)
	if err != nil {
		return ioFailure(s.logger, "save library", err)
	}

	if err := writeFileAtomic(s.LibraryPath(), data); err != nil {
		return ioFailure(s.logger, "save library", err, "path", s.LibraryPath())
	}
	s.digest = digestOf(data)

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, data); err != nil {
			s.logger.Warn("Failed to mirror library document", "error", err)
		}
	}

	s.logger.Debug("Saved library",
		"path", s.LibraryPath(),
		"clusters", len(lib.Clusters),
		"standards", len(lib.Standards))
	return nil
}

// RestoreFromStream overwrites the canonical document verbatim with r.
// The content is not validated here; a subsequent Load reports malformed
// documents.
func (s *FileStore) RestoreFromStream(r io.Reader) (err error) {
	defer func() { observe("restore_stream", err) }()

	data, err := io.ReadAll(r)
	if err != nil {
		return ioFailure(s.logger, "restore from stream", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureDirectories(); err != nil {
		return ioFailure(s.logger, "restore from stream", err)
	}
	if err := writeFileAtomic(s.LibraryPath(), data); err != nil {
		return ioFailure(s.logger, "restore from stream", err, "path", s.LibraryPath())
	}

	s.logger.Info("Restored library from uploaded document", "bytes", len(data))
	return nil
}

// ExportFiltered writes an export document to exports/<filename> and returns
// its path.
func (s *FileStore) ExportFiltered(lib *library.Library, filename string, filter library.ExportFilter) (path string, err error) {
	defer func() { observe("export", err) }()

	if err := validateFileName(filename); err != nil {
		return "", err
	}
	if err := s.EnsureDirectories(); err != nil {
		return "", ioFailure(s.logger, "export library", err)
	}

	doc := library.Export(lib, filter, s.now())
	data, err := library.MarshalDocument(doc)
	if err != nil {
		return "", ioFailure(s.logger, "export library", err)
	}

	path = filepath.Join(s.ExportsPath(), filename)
	if err := writeFileAtomic(path, data); err != nil {
		return "", ioFailure(s.logger, "export library", err, "path", path)
	}

	s.logger.Info("Exported library", "path", path, "standards", len(doc.Standards))
	return path, nil
}

// validateFileName rejects names that are empty or carry path elements.
func validateFileName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile returns the SHA-256 of the file at path.
func DigestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return digestOf(data), nil
}
