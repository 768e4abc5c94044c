package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
)

// Defaults for fields a new standard is created without.
const (
	DefaultPrimaryFocus   = library.FocusObjectConcept
	DefaultSecondaryFocus = library.FocusAction
)

// CreateStandard adds a new standard. ID and cluster are required and the
// cluster must exist. Omitted fields take their defaults, including an
// all-zero vector which the validator will later flag. A supplied vector
// must sum to 1.0.
func (c *Controller) CreateStandard(ctx context.Context, in StandardInput) (library.Standard, error) {
	if err := checkInput(in); err != nil {
		return library.Standard{}, err
	}

	var created library.Standard
	lib, err := c.mutate(ctx, "create_standard", func(lib *library.Library) error {
		id, err := requiredID("id", in.ID)
		if err != nil {
			return err
		}
		if lib.FindStandard(id) >= 0 {
			return library.Invalid("id", id, "already exists")
		}
		clusterID, err := requiredID("cluster", in.Cluster)
		if err != nil {
			return err
		}
		if lib.FindCluster(clusterID) < 0 {
			return library.Invalid("cluster", clusterID, "does not exist")
		}

		today := c.today()
		std := library.Standard{
			ID:               id,
			Cluster:          clusterID,
			ImportanceWeight: library.DefaultImportanceWeight,
			PrimaryFocus:     DefaultPrimaryFocus,
			SecondaryFocus:   DefaultSecondaryFocus,
			Emotions:         []library.Emotion{},
			DateCreated:      today,
			DateModified:     today,
		}
		if err := applyStandardInput(&std, in); err != nil {
			return err
		}

		lib.Standards = append(lib.Standards, std)
		created = std.Clone()
		return nil
	})
	if err != nil {
		return library.Standard{}, err
	}

	c.logger.Info("Created standard", "id", created.ID, "cluster", created.Cluster)
	publish(ctx, c, events.StandardCreated, c.standardEvent(created, lib))
	return created, nil
}

// UpdateStandard overwrites the supplied fields of an existing standard and
// re-stamps its modification date. Everything is validated before the
// record changes. The ID cannot be changed.
func (c *Controller) UpdateStandard(ctx context.Context, id string, in StandardInput) (library.Standard, error) {
	if err := checkInput(in); err != nil {
		return library.Standard{}, err
	}

	var updated library.Standard
	lib, err := c.mutate(ctx, "update_standard", func(lib *library.Library) error {
		i := lib.FindStandard(id)
		if i < 0 {
			return fmt.Errorf("standard %q: %w", id, library.ErrNotFound)
		}
		if in.ID != nil && strings.TrimSpace(*in.ID) != id {
			return library.Invalid("id", *in.ID, "cannot be changed")
		}
		if in.Cluster != nil {
			clusterID, err := requiredID("cluster", in.Cluster)
			if err != nil {
				return err
			}
			if lib.FindCluster(clusterID) < 0 {
				return library.Invalid("cluster", clusterID, "does not exist")
			}
			in.Cluster = &clusterID
		}

		std := lib.Standards[i].Clone()
		if err := applyStandardInput(&std, in); err != nil {
			return err
		}
		std.DateModified = c.today()

		lib.Standards[i] = std
		updated = std.Clone()
		return nil
	})
	if err != nil {
		return library.Standard{}, err
	}

	c.logger.Info("Updated standard", "id", id)
	publish(ctx, c, events.StandardUpdated, c.standardEvent(updated, lib))
	return updated, nil
}

// DeleteStandard removes a standard. Nothing references standards so there
// is no cascade.
func (c *Controller) DeleteStandard(ctx context.Context, id string) error {
	var removed library.Standard
	lib, err := c.mutate(ctx, "delete_standard", func(lib *library.Library) error {
		i := lib.FindStandard(id)
		if i < 0 {
			return fmt.Errorf("standard %q: %w", id, library.ErrNotFound)
		}
		removed = lib.Standards[i]
		lib.Standards = append(lib.Standards[:i], lib.Standards[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("Deleted standard", "id", id)
	publish(ctx, c, events.StandardDeleted, c.standardEvent(removed, lib))
	return nil
}

// applyStandardInput copies the supplied fields into std. Cluster existence
// is checked by the caller.
func applyStandardInput(std *library.Standard, in StandardInput) error {
	if in.Vector != nil {
		if err := in.Vector.Check(); err != nil {
			return err
		}
	}
	primary, secondary := std.PrimaryFocus, std.SecondaryFocus
	var err error
	if in.PrimaryFocus != nil {
		if primary, err = library.ParseFocus("primary_focus", *in.PrimaryFocus); err != nil {
			return err
		}
	}
	if in.SecondaryFocus != nil {
		if secondary, err = library.ParseFocus("secondary_focus", *in.SecondaryFocus); err != nil {
			return err
		}
	}
	emotions := std.Emotions
	if in.Emotions != nil {
		if emotions, err = library.ParseEmotions("impacted_emotions", *in.Emotions); err != nil {
			return err
		}
	}

	if in.Name != nil {
		std.Name = *in.Name
	}
	if in.Cluster != nil {
		std.Cluster = strings.TrimSpace(*in.Cluster)
	}
	if in.Description != nil {
		std.Description = *in.Description
	}
	if in.ImportanceWeight != nil {
		std.ImportanceWeight = *in.ImportanceWeight
	}
	if in.Vector != nil {
		std.Vector = *in.Vector
	}
	if in.Rationale != nil {
		std.Rationale = *in.Rationale
	}
	std.PrimaryFocus, std.SecondaryFocus = primary, secondary
	std.Emotions = emotions
	return nil
}

func (c *Controller) standardEvent(s library.Standard, lib *library.Library) events.StandardChangedEvent {
	return events.StandardChangedEvent{
		ID:           s.ID,
		Cluster:      s.Cluster,
		LastModified: lib.LastModified,
		At:           c.now(),
	}
}
