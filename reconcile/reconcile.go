// Package reconcile merges an external library document into the live
// library. Clusters are merged first so that standards in the same document
// can reference them; bad records are skipped and reported rather than
// aborting the run.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
)

// Target is the part of the catalog the reconciler writes through.
// *catalog.Controller satisfies it.
type Target interface {
	HasCluster(id string) bool
	HasStandard(id string) bool
	CreateCluster(ctx context.Context, in catalog.ClusterInput) (library.Cluster, error)
	UpdateCluster(ctx context.Context, id string, in catalog.ClusterInput) (library.Cluster, error)
	CreateStandard(ctx context.Context, in catalog.StandardInput) (library.Standard, error)
	UpdateStandard(ctx context.Context, id string, in catalog.StandardInput) (library.Standard, error)
}

// Record kinds.
const (
	KindCluster  = "cluster"
	KindStandard = "standard"
)

// Skip codes.
const (
	CodeUnknownCluster   = "unknown_cluster"
	CodeValidationFailed = "validation_failed"
	CodeMalformedRecord  = "malformed_record"
	CodeClusterRejected  = "cluster_rejected"
	CodeWriteFailed      = "write_failed"
)

// Skip describes one record the import did not apply.
type Skip struct {
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Report tallies an import run.
type Report struct {
	RunID            string   `json:"run_id"`
	ClustersAdded    int      `json:"clusters_added"`
	ClustersUpdated  int      `json:"clusters_updated"`
	StandardsAdded   int      `json:"standards_added"`
	StandardsUpdated int      `json:"standards_updated"`
	StandardsSkipped int      `json:"standards_skipped"`
	SkippedReasons   []string `json:"skipped_reasons"`
	Skips            []Skip   `json:"skips"`
}

func (r *Report) skip(s Skip, reason string) {
	if s.Kind == KindStandard {
		r.StandardsSkipped++
	}
	r.Skips = append(r.Skips, s)
	r.SkippedReasons = append(r.SkippedReasons, reason)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher sets where the completion event is published.
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

// Reconciler runs imports against a Target.
type Reconciler struct {
	target    Target
	logger    *slog.Logger
	publisher events.Publisher
}

// New creates a Reconciler writing through target.
func New(target Target, opts ...Option) *Reconciler {
	r := &Reconciler{
		target:    target,
		logger:    slog.Default(),
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type document struct {
	Clusters  []json.RawMessage `json:"clusters"`
	Standards []json.RawMessage `json:"standards"`
}

// Import reads a document and merges it. A document that is not a JSON
// object is rejected with library.ErrInvalidFormat before anything changes.
// Individual records that cannot be applied are skipped.
func (r *Reconciler) Import(ctx context.Context, src io.Reader) (*Report, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", library.ErrIO)
	}

	var doc document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &library.DecodeError{Err: errors.New("import document must be a JSON object")}
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &library.DecodeError{Err: err}
	}

	report := &Report{
		RunID:          uuid.NewString(),
		SkippedReasons: []string{},
		Skips:          []Skip{},
	}
	logger := r.logger.With("run_id", report.RunID)
	logger.Info("Import started", "clusters", len(doc.Clusters), "standards", len(doc.Standards))

	// Pass 1: clusters.
	for _, raw := range doc.Clusters {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.importCluster(ctx, logger, raw, report)
	}

	// Pass 2: standards, against the updated cluster set.
	for _, raw := range doc.Standards {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.importStandard(ctx, logger, raw, report)
	}

	logger.Info("Import finished",
		"clusters_added", report.ClustersAdded,
		"clusters_updated", report.ClustersUpdated,
		"standards_added", report.StandardsAdded,
		"standards_updated", report.StandardsUpdated,
		"standards_skipped", report.StandardsSkipped)

	if err := events.ImportCompleted.Publish(ctx, r.publisher, events.ImportCompletedEvent{
		RunID:            report.RunID,
		ClustersAdded:    report.ClustersAdded,
		ClustersUpdated:  report.ClustersUpdated,
		StandardsAdded:   report.StandardsAdded,
		StandardsUpdated: report.StandardsUpdated,
		StandardsSkipped: report.StandardsSkipped,
		At:               time.Now(),
	}); err != nil {
		logger.Warn("Failed to publish import event", "error", err)
	}
	return report, nil
}

func (r *Reconciler) importCluster(ctx context.Context, logger *slog.Logger, raw json.RawMessage, report *Report) {
	var in catalog.ClusterInput
	if err := json.Unmarshal(raw, &in); err != nil {
		id := probeID(raw)
		report.skip(Skip{Kind: KindCluster, ID: id, Code: CodeMalformedRecord, Detail: err.Error()},
			fmt.Sprintf("Cluster '%s' skipped: malformed record.", id))
		return
	}
	id := trimmed(in.ID)
	if id == "" {
		return
	}
	in.ID = &id

	var err error
	if r.target.HasCluster(id) {
		if _, err = r.target.UpdateCluster(ctx, id, in); err == nil {
			report.ClustersUpdated++
		}
	} else {
		if _, err = r.target.CreateCluster(ctx, in); err == nil {
			report.ClustersAdded++
		}
	}
	if err != nil {
		logger.Warn("Cluster rejected", "id", id, "error", err)
		report.skip(Skip{Kind: KindCluster, ID: id, Code: CodeClusterRejected, Detail: err.Error()},
			fmt.Sprintf("Cluster '%s' skipped: %v", id, err))
	}
}

func (r *Reconciler) importStandard(ctx context.Context, logger *slog.Logger, raw json.RawMessage, report *Report) {
	var in catalog.StandardInput
	if err := json.Unmarshal(raw, &in); err != nil {
		id := probeID(raw)
		report.skip(Skip{Kind: KindStandard, ID: id, Code: CodeMalformedRecord, Detail: err.Error()},
			fmt.Sprintf("Standard '%s' skipped: malformed record.", id))
		return
	}
	id, clusterID := trimmed(in.ID), trimmed(in.Cluster)
	if id == "" || clusterID == "" {
		return
	}
	in.ID, in.Cluster = &id, &clusterID

	if !r.target.HasCluster(clusterID) {
		report.skip(Skip{Kind: KindStandard, ID: id, Code: CodeUnknownCluster, Detail: clusterID},
			fmt.Sprintf("Standard '%s' skipped: Cluster '%s' does not exist.", id, clusterID))
		return
	}

	var err error
	if r.target.HasStandard(id) {
		if _, err = r.target.UpdateStandard(ctx, id, in); err == nil {
			report.StandardsUpdated++
		}
	} else {
		if _, err = r.target.CreateStandard(ctx, in); err == nil {
			report.StandardsAdded++
		}
	}
	if err == nil {
		return
	}

	code := CodeWriteFailed
	if errors.Is(err, library.ErrValidation) {
		code = CodeValidationFailed
	}
	logger.Warn("Standard rejected", "id", id, "code", code, "error", err)
	report.skip(Skip{Kind: KindStandard, ID: id, Code: code, Detail: err.Error()},
		fmt.Sprintf("Standard '%s' skipped: %v", id, err))
}

// probeID extracts a string id from a record that failed to decode, for
// reporting only.
func probeID(raw json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	if s, ok := probe.ID.(string); ok {
		return s
	}
	return ""
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
