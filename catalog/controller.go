// Package catalog owns the in-memory standards library and is the only path
// through which it changes. Every successful mutation is persisted before it
// becomes visible, and cluster orders stay dense (1..N) across every
// operation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/library/validation"
	"github.com/c360studio/maclib/storage"
)

// Store is the persistence the controller needs. *storage.FileStore
// satisfies it.
type Store interface {
	Exists() bool
	Load() (*library.Library, error)
	Save(ctx context.Context, lib *library.Library) error
	CreateBackup() (string, error)
	ListBackups() ([]storage.BackupInfo, error)
	BackupPath(name string) (string, error)
	RestoreFromBackup(name string) error
	RestoreFromStream(r io.Reader) error
	DeleteBackup(name string) error
	DeleteAllBackups() (int, error)
	ExportFiltered(lib *library.Library, filename string, filter library.ExportFilter) (string, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPublisher sets the change-event publisher. Defaults to discarding events.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithClock sets the time source used for date stamps and events.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is safe for concurrent use. Reads share a lock; mutations,
// backup operations and reloads are serialized.
type Controller struct {
	store     Store
	logger    *slog.Logger
	publisher events.Publisher
	now       func() time.Time

	mu  sync.RWMutex
	lib *library.Library
}

// New loads the library from store. When no document exists yet a default
// library with the standard cluster set is created and saved. A document
// that exists but cannot be decoded is an error; it is never overwritten.
func New(ctx context.Context, store Store, opts ...Option) (*Controller, error) {
	c := &Controller{
		store:     store,
		logger:    slog.Default(),
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	lib, err := store.Load()
	switch {
	case err == nil:
		c.logger.Info("Loaded library",
			"clusters", len(lib.Clusters),
			"standards", len(lib.Standards))
	case errors.Is(err, library.ErrNotFound):
		lib = library.NewDefaultLibrary()
		if err := store.Save(ctx, lib); err != nil {
			return nil, fmt.Errorf("save default library: %w", err)
		}
		c.logger.Info("Created default library", "clusters", len(lib.Clusters))
	default:
		return nil, fmt.Errorf("load library: %w", err)
	}

	c.lib = lib
	c.observeSizes()
	return c, nil
}

// Library returns a deep copy of the current library.
func (c *Controller) Library() *library.Library {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lib.Clone()
}

// Version returns the library's version tag.
func (c *Controller) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lib.Version
}

// LastModified returns the timestamp of the last save.
func (c *Controller) LastModified() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lib.LastModified
}

// Standards returns copies of every standard in stored order.
func (c *Controller) Standards() []library.Standard {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]library.Standard, len(c.lib.Standards))
	for i, s := range c.lib.Standards {
		out[i] = s.Clone()
	}
	return out
}

// Standard returns the standard with id.
func (c *Controller) Standard(id string) (library.Standard, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.lib.FindStandard(id)
	if i < 0 {
		return library.Standard{}, fmt.Errorf("standard %q: %w", id, library.ErrNotFound)
	}
	return c.lib.Standards[i].Clone(), nil
}

// HasStandard reports whether a standard with id exists.
func (c *Controller) HasStandard(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lib.FindStandard(id) >= 0
}

// Clusters returns copies of every cluster in order.
func (c *Controller) Clusters() []library.Cluster {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]library.Cluster, len(c.lib.Clusters))
	copy(out, c.lib.Clusters)
	return out
}

// Cluster returns the cluster with id.
func (c *Controller) Cluster(id string) (library.Cluster, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.lib.FindCluster(id)
	if i < 0 {
		return library.Cluster{}, fmt.Errorf("cluster %q: %w", id, library.ErrNotFound)
	}
	return c.lib.Clusters[i], nil
}

// HasCluster reports whether a cluster with id exists.
func (c *Controller) HasCluster(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lib.FindCluster(id) >= 0
}

// Validate audits the current library.
func (c *Controller) Validate() *validation.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validation.Validate(c.lib)
}

// Export builds a filtered export document from the current library.
func (c *Controller) Export(filter library.ExportFilter) *library.ExportDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return library.Export(c.lib, filter, c.now())
}

// ExportToFile writes a filtered export to the store's exports directory and
// returns its path.
func (c *Controller) ExportToFile(filename string, filter library.ExportFilter) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.ExportFiltered(c.lib, filename, filter)
}

// mutate applies fn to a copy of the library, saves the copy and swaps it
// in. If fn or the save fails the in-memory library is unchanged.
func (c *Controller) mutate(ctx context.Context, op string, fn func(lib *library.Library) error) (lib *library.Library, err error) {
	defer func() { observeMutation(op, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.lib.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, next); err != nil {
		return nil, err
	}

	c.lib = next
	c.observeSizes()
	return next, nil
}

// today returns the date stamp for created/modified fields.
func (c *Controller) today() string {
	return c.now().Format(library.DateLayout)
}

// publish sends an event and logs failures. Events are best effort.
func publish[T any](ctx context.Context, c *Controller, subject events.Subject[T], payload T) {
	if err := subject.Publish(ctx, c.publisher, payload); err != nil {
		c.logger.Warn("Failed to publish event", "subject", subject.Pattern, "error", err)
	}
}

func (c *Controller) observeSizes() {
	standardsGauge.Set(float64(len(c.lib.Standards)))
	clustersGauge.Set(float64(len(c.lib.Clusters)))
}
