// Package library defines the standards library record model: standards,
// clusters, MAC weight vectors and rationales, plus the document codec used
// by the persistence layer.
package library

import (
	"cmp"
	"slices"
	"time"
)

// DateLayout is the format of Standard creation and modification stamps.
const DateLayout = "2006-01-02"

// Rationale holds the free-text justification for each MAC dimension plus
// an overall summary.
type Rationale struct {
	Family      string `json:"family_rationale"`
	Group       string `json:"group_rationale"`
	Reciprocity string `json:"reciprocity_rationale"`
	Heroism     string `json:"heroism_rationale"`
	Deference   string `json:"deference_rationale"`
	Fairness    string `json:"fairness_rationale"`
	Property    string `json:"property_rationale"`
	Overall     string `json:"overall_rationale"`
}

// ForDimension returns the rationale text paired with a vector dimension.
func (r Rationale) ForDimension(name string) string {
	switch name {
	case DimFamily:
		return r.Family
	case DimGroup:
		return r.Group
	case DimReciprocity:
		return r.Reciprocity
	case DimHeroism:
		return r.Heroism
	case DimDeference:
		return r.Deference
	case DimFairness:
		return r.Fairness
	case DimProperty:
		return r.Property
	}
	return ""
}

// Standard is a single classification record.
type Standard struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Cluster          string       `json:"cluster"`
	Description      string       `json:"description"`
	ImportanceWeight float64      `json:"importance_weight"`
	Vector           WeightVector `json:"mac_vector"`
	PrimaryFocus     Focus        `json:"primary_focus"`
	SecondaryFocus   Focus        `json:"secondary_focus"`
	Emotions         []Emotion    `json:"impacted_emotions"`
	Rationale        Rationale    `json:"rationale"`
	DateCreated      string       `json:"date_created"`
	DateModified     string       `json:"date_modified"`
}

// Clone returns a deep copy of s.
func (s Standard) Clone() Standard {
	s.Emotions = slices.Clone(s.Emotions)
	if s.Emotions == nil {
		s.Emotions = []Emotion{}
	}
	return s
}

// Cluster is a named, ordered category of standards.
type Cluster struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// Library is the aggregate root: every cluster and standard of a deployment.
type Library struct {
	Version      string     `json:"version"`
	LastModified string     `json:"last_modified"`
	Clusters     []Cluster  `json:"clusters"`
	Standards    []Standard `json:"standards"`
}

// Clone returns a deep copy of l.
func (l *Library) Clone() *Library {
	out := &Library{
		Version:      l.Version,
		LastModified: l.LastModified,
		Clusters:     slices.Clone(l.Clusters),
		Standards:    make([]Standard, len(l.Standards)),
	}
	if out.Clusters == nil {
		out.Clusters = []Cluster{}
	}
	for i, s := range l.Standards {
		out.Standards[i] = s.Clone()
	}
	return out
}

// Touch stamps LastModified with t.
func (l *Library) Touch(t time.Time) {
	l.LastModified = t.Format(time.RFC3339Nano)
}

// FindStandard returns the index of the standard with id, or -1.
func (l *Library) FindStandard(id string) int {
	return slices.IndexFunc(l.Standards, func(s Standard) bool { return s.ID == id })
}

// FindCluster returns the index of the cluster with id, or -1.
func (l *Library) FindCluster(id string) int {
	return slices.IndexFunc(l.Clusters, func(c Cluster) bool { return c.ID == id })
}

// StandardsInCluster returns the IDs of standards referencing clusterID.
func (l *Library) StandardsInCluster(clusterID string) []string {
	var ids []string
	for _, s := range l.Standards {
		if s.Cluster == clusterID {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// SortClusters orders clusters by Order, breaking ties by ID.
func (l *Library) SortClusters() {
	slices.SortStableFunc(l.Clusters, func(a, b Cluster) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// OrdersContiguous reports whether the cluster orders are exactly {1..N}.
func (l *Library) OrdersContiguous() bool {
	seen := make([]bool, len(l.Clusters)+1)
	for _, c := range l.Clusters {
		if c.Order < 1 || c.Order > len(l.Clusters) || seen[c.Order] {
			return false
		}
		seen[c.Order] = true
	}
	return true
}
