package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/storage"
)

// Reload replaces the in-memory library with the stored document. On
// failure the current library is kept.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reloadLocked(); err != nil {
		return err
	}
	c.publishReplaced(ctx, events.SourceReload, "")
	return nil
}

// reloadLocked loads the stored document. Caller must hold c.mu.
func (c *Controller) reloadLocked() error {
	lib, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("reload library: %w", err)
	}
	c.lib = lib
	c.observeSizes()
	c.logger.Info("Reloaded library",
		"clusters", len(lib.Clusters),
		"standards", len(lib.Standards))
	return nil
}

// publishReplaced announces a library swap. Caller must hold c.mu.
func (c *Controller) publishReplaced(ctx context.Context, source, backup string) {
	publish(ctx, c, events.LibraryReplaced, events.LibraryReplacedEvent{
		Source:       source,
		Backup:       backup,
		Clusters:     len(c.lib.Clusters),
		Standards:    len(c.lib.Standards),
		LastModified: c.lib.LastModified,
		At:           c.now(),
	})
}

// CreateBackup snapshots the stored document and returns the backup name.
func (c *Controller) CreateBackup(ctx context.Context) (name string, err error) {
	defer func() { observeMutation("create_backup", err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.CreateBackup()
}

// ListBackups returns the retained backups, newest first.
func (c *Controller) ListBackups() ([]storage.BackupInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.ListBackups()
}

// BackupPath resolves a backup name to its file for download.
func (c *Controller) BackupPath(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.BackupPath(name)
}

// RestoreFromBackup copies a backup over the stored document and reloads.
// A backup that does not decode is rejected with library.ErrInvalidFormat
// before anything is written.
func (c *Controller) RestoreFromBackup(ctx context.Context, name string) (err error) {
	defer func() { observeMutation("restore_backup", err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RestoreFromBackup(name); err != nil {
		return err
	}
	if err := c.reloadLocked(); err != nil {
		return err
	}

	c.logger.Info("Restored library from backup", "backup", name)
	c.publishReplaced(ctx, events.SourceBackup, name)
	return nil
}

// RestoreFromUpload replaces the stored document with an uploaded one and
// reloads. The upload is decoded first; a malformed document is rejected
// with library.ErrInvalidFormat and nothing is written.
func (c *Controller) RestoreFromUpload(ctx context.Context, r io.Reader) (err error) {
	defer func() { observeMutation("restore_upload", err) }()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", library.ErrIO)
	}
	if _, err := library.Decode(data); err != nil {
		return fmt.Errorf("restore from upload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RestoreFromStream(bytes.NewReader(data)); err != nil {
		return err
	}
	if err := c.reloadLocked(); err != nil {
		return err
	}

	c.logger.Info("Restored library from upload", "bytes", len(data))
	c.publishReplaced(ctx, events.SourceUpload, "")
	return nil
}

// DeleteBackup removes one backup.
func (c *Controller) DeleteBackup(ctx context.Context, name string) (err error) {
	defer func() { observeMutation("delete_backup", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.DeleteBackup(name)
}

// DeleteAllBackups removes every backup and returns the count.
func (c *Controller) DeleteAllBackups(ctx context.Context) (n int, err error) {
	defer func() { observeMutation("delete_all_backups", err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.DeleteAllBackups()
}

// EmotionChange records one standard rewritten by CleanupEmotions.
type EmotionChange struct {
	ID     string            `json:"id"`
	Before []library.Emotion `json:"before"`
	After  []library.Emotion `json:"after"`
}

// CleanupEmotions rewrites every standard's impacted emotions into canonical
// form: legacy aliases mapped, unknown terms dropped, duplicates collapsed
// and vocabulary order applied. The library is saved only when something
// changed.
func (c *Controller) CleanupEmotions(ctx context.Context) ([]EmotionChange, error) {
	changes := []EmotionChange{}

	c.mu.RLock()
	dirty := false
	for _, s := range c.lib.Standards {
		valid, _ := library.NormalizeEmotions(s.Emotions)
		if !slices.Equal(valid, s.Emotions) {
			dirty = true
			break
		}
	}
	c.mu.RUnlock()
	if !dirty {
		return changes, nil
	}

	_, err := c.mutate(ctx, "cleanup_emotions", func(lib *library.Library) error {
		changes = changes[:0]
		for i, s := range lib.Standards {
			valid, _ := library.NormalizeEmotions(s.Emotions)
			if slices.Equal(valid, s.Emotions) {
				continue
			}
			changes = append(changes, EmotionChange{ID: s.ID, Before: s.Emotions, After: valid})
			lib.Standards[i].Emotions = valid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ch := range changes {
		c.logger.Info("Corrected emotions", "id", ch.ID, "before", ch.Before, "after", ch.After)
	}

	c.mu.RLock()
	c.publishReplaced(ctx, events.SourceCleanup, "")
	c.mu.RUnlock()
	return changes, nil
}
