package storage

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/maclib/library"
)

// Common storage errors. Each wraps one of the library sentinels so callers
// can branch with errors.Is on either.
var (
	// ErrNoLibrary is returned when no canonical library document exists yet.
	ErrNoLibrary = fmt.Errorf("library document %w", library.ErrNotFound)

	// ErrBackupNotFound is returned when a named backup does not exist.
	ErrBackupNotFound = fmt.Errorf("backup %w", library.ErrNotFound)

	// ErrBackupExists is returned when a backup for the same second already
	// exists. Backup names have one-second resolution.
	ErrBackupExists = fmt.Errorf("%w: backup already exists for this second", library.ErrValidation)

	// ErrInvalidName is returned for a backup or export name that is malformed
	// or resolves outside its directory.
	ErrInvalidName = fmt.Errorf("%w: invalid file name", library.ErrValidation)
)

// ioFailure logs the low-level cause and returns a generic ErrIO so callers
// never see raw filesystem errors.
func ioFailure(logger *slog.Logger, op string, err error, attrs ...any) error {
	logger.Error("Storage operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	return fmt.Errorf("%s: %w", op, library.ErrIO)
}
