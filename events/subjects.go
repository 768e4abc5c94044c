// Package events provides typed NATS subject definitions for library change
// events.
//
// Subjects follow "maclib.events.<entity>.<action>" so consumers can
// subscribe to one entity ("maclib.events.standard.>") or to everything
// (AllEvents).
package events

import "time"

// AllEvents matches every library change event.
const AllEvents = "maclib.events.>"

// Standard lifecycle events

// StandardChangedEvent is published when a standard is created, updated or
// deleted.
type StandardChangedEvent struct {
	ID           string    `json:"id"`
	Cluster      string    `json:"cluster,omitempty"`
	LastModified string    `json:"last_modified"`
	At           time.Time `json:"at"`
}

// Cluster lifecycle events

// ClusterChangedEvent is published when a cluster is created, updated or
// deleted. Order is the cluster's position after the change (0 on delete).
type ClusterChangedEvent struct {
	ID           string    `json:"id"`
	Order        int       `json:"order,omitempty"`
	LastModified string    `json:"last_modified"`
	At           time.Time `json:"at"`
}

// Library-wide events

// LibraryReplacedEvent is published when the whole library is swapped, by a
// restore or a reload of an externally edited document.
type LibraryReplacedEvent struct {
	Source       string    `json:"source"`
	Backup       string    `json:"backup,omitempty"`
	Clusters     int       `json:"clusters"`
	Standards    int       `json:"standards"`
	LastModified string    `json:"last_modified"`
	At           time.Time `json:"at"`
}

// Replacement sources.
const (
	SourceBackup  = "backup"
	SourceUpload  = "upload"
	SourceReload  = "reload"
	SourceCleanup = "cleanup"
)

// ImportCompletedEvent is published when an import run finishes.
type ImportCompletedEvent struct {
	RunID            string    `json:"run_id"`
	ClustersAdded    int       `json:"clusters_added"`
	ClustersUpdated  int       `json:"clusters_updated"`
	StandardsAdded   int       `json:"standards_added"`
	StandardsUpdated int       `json:"standards_updated"`
	StandardsSkipped int       `json:"standards_skipped"`
	At               time.Time `json:"at"`
}

// Typed subject definitions for library events.
var (
	// Standard events
	StandardCreated = NewSubject[StandardChangedEvent]("maclib.events.standard.created")
	StandardUpdated = NewSubject[StandardChangedEvent]("maclib.events.standard.updated")
	StandardDeleted = NewSubject[StandardChangedEvent]("maclib.events.standard.deleted")

	// Cluster events
	ClusterCreated = NewSubject[ClusterChangedEvent]("maclib.events.cluster.created")
	ClusterUpdated = NewSubject[ClusterChangedEvent]("maclib.events.cluster.updated")
	ClusterDeleted = NewSubject[ClusterChangedEvent]("maclib.events.cluster.deleted")

	// Library events
	LibraryReplaced = NewSubject[LibraryReplacedEvent]("maclib.events.library.replaced")

	// Import events
	ImportCompleted = NewSubject[ImportCompletedEvent]("maclib.events.import.completed")
)
