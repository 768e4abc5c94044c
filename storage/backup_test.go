package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/maclib/library"
)

func TestBackupName(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "library_backup_20250102_030405.json", BackupName(ts))
}

func TestCreateBackup_NoLibrary(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateBackup()
	assert.ErrorIs(t, err, ErrNoLibrary)
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestCreateBackup_CopiesDocument(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))

	name, err := store.CreateBackup()
	require.NoError(t, err)
	assert.Regexp(t, `^library_backup_\d{8}_\d{6}\.json$`, name)

	want, err := os.ReadFile(store.LibraryPath())
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(store.BackupsPath(), name))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRotateBackups_KeepsNewest(t *testing.T) {
	store := NewFileStore(Options{
		BaseDir:    t.TempDir(),
		MaxBackups: 3,
		Now:        newFakeClock().Now,
	})
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))

	var created []string
	for range 5 {
		name, err := store.CreateBackup()
		require.NoError(t, err)
		created = append(created, name)
	}

	backups, err := store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 3)

	// Newest first.
	assert.Equal(t, created[4], backups[0].Filename)
	assert.Equal(t, created[3], backups[1].Filename)
	assert.Equal(t, created[2], backups[2].Filename)
	for i := 1; i < len(backups); i++ {
		assert.True(t, backups[i-1].Modified.After(backups[i].Modified))
	}

	for _, gone := range created[:2] {
		_, err := os.Stat(filepath.Join(store.BackupsPath(), gone))
		assert.True(t, os.IsNotExist(err), "%s should have been rotated out", gone)
	}
}

func TestCreateBackup_SameSecond(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	store := NewFileStore(Options{
		BaseDir: t.TempDir(),
		Now:     func() time.Time { return fixed },
	})
	ctx := context.Background()

	first := sampleLibrary()
	require.NoError(t, store.Save(ctx, first))
	name, err := store.CreateBackup()
	require.NoError(t, err)
	snapshot, err := os.ReadFile(filepath.Join(store.BackupsPath(), name))
	require.NoError(t, err)

	changed := sampleLibrary()
	changed.Standards[0].Name = "Changed"
	require.NoError(t, store.Save(ctx, changed))

	for range 2 {
		_, err := store.CreateBackup()
		assert.ErrorIs(t, err, ErrBackupExists)
		assert.ErrorIs(t, err, library.ErrValidation)
	}

	backups, err := store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, name, backups[0].Filename)

	kept, err := os.ReadFile(filepath.Join(store.BackupsPath(), name))
	require.NoError(t, err)
	assert.Equal(t, snapshot, kept, "earlier backup is not overwritten")
}

func TestRotateBackups_DefaultRetention(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))

	for range DefaultMaxBackups + 2 {
		_, err := store.CreateBackup()
		require.NoError(t, err)
	}

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, DefaultMaxBackups)
}

func TestRotateBackups_RanksByModifiedTime(t *testing.T) {
	store := NewFileStore(Options{
		BaseDir:    t.TempDir(),
		MaxBackups: 2,
		Now:        newFakeClock().Now,
	})
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))
	require.NoError(t, store.EnsureDirectories())

	// A lexically later name with an old mtime is rotated first.
	stale := filepath.Join(store.BackupsPath(), "library_backup_99991231_235959.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0644))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(stale, old, old))

	_, err := store.CreateBackup()
	require.NoError(t, err)
	_, err = store.CreateBackup()
	require.NoError(t, err)

	backups, err := store.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	for _, b := range backups {
		assert.NotEqual(t, filepath.Base(stale), b.Filename)
	}
}

func TestListBackups_Empty(t *testing.T) {
	store := newTestStore(t)

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestListBackups_IgnoresOtherFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureDirectories())
	require.NoError(t, os.WriteFile(filepath.Join(store.BackupsPath(), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.BackupsPath(), "library.json"), []byte("{}"), 0644))

	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRestoreFromBackup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := sampleLibrary()
	require.NoError(t, store.Save(ctx, original))
	name, err := store.CreateBackup()
	require.NoError(t, err)

	changed := sampleLibrary()
	changed.Standards[0].Name = "Changed"
	require.NoError(t, store.Save(ctx, changed))

	require.NoError(t, store.RestoreFromBackup(name))
	restored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Keep promises", restored.Standards[0].Name)
}

func TestRestoreFromBackup_RejectsMalformed(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))
	require.NoError(t, store.EnsureDirectories())
	before, err := os.ReadFile(store.LibraryPath())
	require.NoError(t, err)

	for i, content := range []string{"{not json", "null", "{}", `{"version":"1","standards":[]}`} {
		name := BackupName(time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC))
		require.NoError(t, os.WriteFile(filepath.Join(store.BackupsPath(), name), []byte(content), 0644))

		err := store.RestoreFromBackup(name)
		assert.ErrorIs(t, err, library.ErrInvalidFormat, content)
	}

	after, err := os.ReadFile(store.LibraryPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = store.Load()
	require.NoError(t, err)
}

func TestResolveBackup_Guards(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))

	// A file outside backups/ that looks like a backup.
	outside := filepath.Join(store.BaseDir(), "library_backup_20250101_000000.json")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0644))

	tests := []struct {
		name    string
		wantErr error
	}{
		{"../library.json", ErrInvalidName},
		{"../library_backup_20250101_000000.json", ErrInvalidName},
		{"/etc/passwd", ErrInvalidName},
		{"library.json", ErrInvalidName},
		{"", ErrInvalidName},
		{"library_backup_20250101_000001.json", ErrBackupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.RestoreFromBackup(tt.name)
			assert.ErrorIs(t, err, tt.wantErr)

			err = store.DeleteBackup(tt.name)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = store.BackupPath(tt.name)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// The canonical document is untouched.
	_, err := store.Load()
	require.NoError(t, err)
}

func TestResolveBackup_SymlinkEscape(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureDirectories())

	target := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0644))
	link := filepath.Join(store.BackupsPath(), "library_backup_20250101_000000.json")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := store.BackupPath("library_backup_20250101_000000.json")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestDeleteBackups(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), sampleLibrary()))

	var names []string
	for range 3 {
		name, err := store.CreateBackup()
		require.NoError(t, err)
		names = append(names, name)
	}

	require.NoError(t, store.DeleteBackup(names[0]))
	backups, err := store.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	deleted, err := store.DeleteAllBackups()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	backups, err = store.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	// The canonical document survives.
	assert.True(t, store.Exists())
}
