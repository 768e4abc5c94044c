package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
)

// DefaultClusterName is used when a cluster is created without a name.
const DefaultClusterName = "New Cluster"

// CreateCluster inserts a cluster at the requested order (default 1). The
// clusters at or after that position move down by one. An order past the
// end places the cluster last.
func (c *Controller) CreateCluster(ctx context.Context, in ClusterInput) (library.Cluster, error) {
	if err := checkInput(in); err != nil {
		return library.Cluster{}, err
	}

	var created library.Cluster
	lib, err := c.mutate(ctx, "create_cluster", func(lib *library.Library) error {
		id, err := requiredID("id", in.ID)
		if err != nil {
			return err
		}
		if lib.FindCluster(id) >= 0 {
			return library.Invalid("id", id, "already exists")
		}

		cl := library.Cluster{ID: id, Name: DefaultClusterName}
		if in.Name != nil {
			cl.Name = *in.Name
		}
		if in.Description != nil {
			cl.Description = *in.Description
		}
		order := 1
		if in.Order != nil {
			order = *in.Order
		}

		created = placeCluster(lib, cl, order)
		return nil
	})
	if err != nil {
		return library.Cluster{}, err
	}

	c.logger.Info("Created cluster", "id", created.ID, "order", created.Order)
	publish(ctx, c, events.ClusterCreated, c.clusterEvent(created, lib))
	return created, nil
}

// UpdateCluster changes a cluster's name, description or order. Moving a
// cluster shifts the clusters between its old and new positions so orders
// stay 1..N.
func (c *Controller) UpdateCluster(ctx context.Context, id string, in ClusterInput) (library.Cluster, error) {
	if err := checkInput(in); err != nil {
		return library.Cluster{}, err
	}

	var updated library.Cluster
	lib, err := c.mutate(ctx, "update_cluster", func(lib *library.Library) error {
		lib.SortClusters()
		i := lib.FindCluster(id)
		if i < 0 {
			return fmt.Errorf("cluster %q: %w", id, library.ErrNotFound)
		}
		if in.ID != nil && *in.ID != id {
			return library.Invalid("id", *in.ID, "cannot be changed")
		}

		cl := lib.Clusters[i]
		if in.Name != nil {
			cl.Name = *in.Name
		}
		if in.Description != nil {
			cl.Description = *in.Description
		}
		order := i + 1
		if in.Order != nil {
			order = *in.Order
		}

		updated = placeCluster(lib, cl, order)
		return nil
	})
	if err != nil {
		return library.Cluster{}, err
	}

	c.logger.Info("Updated cluster", "id", id, "order", updated.Order)
	publish(ctx, c, events.ClusterUpdated, c.clusterEvent(updated, lib))
	return updated, nil
}

// DeleteCluster removes an unused cluster and closes the gap in the order
// sequence. A cluster that standards still reference cannot be deleted.
func (c *Controller) DeleteCluster(ctx context.Context, id string) error {
	lib, err := c.mutate(ctx, "delete_cluster", func(lib *library.Library) error {
		lib.SortClusters()
		i := lib.FindCluster(id)
		if i < 0 {
			return fmt.Errorf("cluster %q: %w", id, library.ErrNotFound)
		}
		if refs := lib.StandardsInCluster(id); len(refs) > 0 {
			return library.Invalid("cluster", id, "is in use by %d standard(s)", len(refs))
		}
		lib.Clusters = slices.Delete(lib.Clusters, i, i+1)
		renumber(lib)
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("Deleted cluster", "id", id)
	publish(ctx, c, events.ClusterDeleted, c.clusterEvent(library.Cluster{ID: id}, lib))
	return nil
}

// placeCluster puts cl at position order (1-based) and renumbers every
// cluster 1..N. cl replaces any existing cluster with the same ID. Orders
// below 1 are rejected by input validation; orders past the end clamp.
func placeCluster(lib *library.Library, cl library.Cluster, order int) library.Cluster {
	lib.SortClusters()
	lib.Clusters = slices.DeleteFunc(lib.Clusters, func(x library.Cluster) bool { return x.ID == cl.ID })

	pos := min(max(order, 1), len(lib.Clusters)+1) - 1
	lib.Clusters = slices.Insert(lib.Clusters, pos, cl)
	renumber(lib)
	return lib.Clusters[pos]
}

// renumber assigns orders 1..N following the current slice order.
func renumber(lib *library.Library) {
	for i := range lib.Clusters {
		lib.Clusters[i].Order = i + 1
	}
}

func (c *Controller) clusterEvent(cl library.Cluster, lib *library.Library) events.ClusterChangedEvent {
	return events.ClusterChangedEvent{
		ID:           cl.ID,
		Order:        cl.Order,
		LastModified: lib.LastModified,
		At:           c.now(),
	}
}
