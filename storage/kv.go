package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KV mirror layout.
const (
	BucketLibrary = "MACLIB_LIBRARY"
	KeyLibrary    = "library"
)

// Revision is one mirrored copy of the library document.
type Revision struct {
	Revision uint64    `json:"revision"`
	Created  time.Time `json:"created"`
	Size     int       `json:"size"`
}

// KVMirror keeps the last saved library documents in a JetStream KV bucket
// so other processes can watch or recover them.
type KVMirror struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// NewKVMirror opens or creates the library bucket. history is the number of
// revisions JetStream retains.
func NewKVMirror(ctx context.Context, js jetstream.JetStream, history int, logger *slog.Logger) (*KVMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kv, err := getOrCreateBucket(ctx, js, BucketLibrary, history)
	if err != nil {
		return nil, fmt.Errorf("create library bucket: %w", err)
	}
	return &KVMirror{kv: kv, logger: logger}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string, history int) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if history <= 0 {
		history = DefaultMaxBackups
	}
	// JetStream caps per-key history at 64.
	history = min(history, jetstream.KeyValueMaxHistory)
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "MAC standards library mirror",
		History:     uint8(history),
	})
}

// Put stores data as the newest revision.
func (m *KVMirror) Put(ctx context.Context, data []byte) error {
	rev, err := m.kv.Put(ctx, KeyLibrary, data)
	if err != nil {
		return fmt.Errorf("mirror library: %w", err)
	}
	m.logger.Debug("Mirrored library document", "bucket", BucketLibrary, "revision", rev)
	return nil
}

// Latest returns the newest mirrored document and its revision.
func (m *KVMirror) Latest(ctx context.Context) ([]byte, uint64, error) {
	entry, err := m.kv.Get(ctx, KeyLibrary)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNoLibrary
		}
		return nil, 0, fmt.Errorf("get mirrored library: %w", err)
	}
	return entry.Value(), entry.Revision(), nil
}

// Get returns the document stored at a specific revision.
func (m *KVMirror) Get(ctx context.Context, revision uint64) ([]byte, error) {
	entry, err := m.kv.GetRevision(ctx, KeyLibrary, revision)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("revision %d: %w", revision, ErrNoLibrary)
		}
		return nil, fmt.Errorf("get mirrored library: %w", err)
	}
	return entry.Value(), nil
}

// History lists the retained revisions, oldest first.
func (m *KVMirror) History(ctx context.Context) ([]Revision, error) {
	entries, err := m.kv.History(ctx, KeyLibrary)
	if err != nil {
		if isNotFound(err) {
			return []Revision{}, nil
		}
		return nil, fmt.Errorf("library history: %w", err)
	}

	revs := make([]Revision, 0, len(entries))
	for _, e := range entries {
		if e.Operation() != jetstream.KeyValuePut {
			continue
		}
		revs = append(revs, Revision{
			Revision: e.Revision(),
			Created:  e.Created(),
			Size:     len(e.Value()),
		})
	}
	return revs, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrNoKeysFound)
}
