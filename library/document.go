package library

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultVersion is the version tag of a freshly created library.
const DefaultVersion = "2.7"

// DefaultImportanceWeight is assigned when a document omits importance_weight.
const DefaultImportanceWeight = 0.5

type rawLibrary struct {
	Version      *string            `json:"version"`
	LastModified string             `json:"last_modified"`
	Clusters     *[]json.RawMessage `json:"clusters"`
	Standards    *[]json.RawMessage `json:"standards"`
}

type rawCluster struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Description string  `json:"description"`
	Order       int     `json:"order"`
}

type rawStandard struct {
	ID               *string       `json:"id"`
	Name             *string       `json:"name"`
	Cluster          *string       `json:"cluster"`
	Description      string        `json:"description"`
	ImportanceWeight *float64      `json:"importance_weight"`
	Vector           *WeightVector `json:"mac_vector"`
	PrimaryFocus     Focus         `json:"primary_focus"`
	SecondaryFocus   Focus         `json:"secondary_focus"`
	Emotions         []Emotion     `json:"impacted_emotions"`
	Rationale        *Rationale    `json:"rationale"`
	DateCreated      string        `json:"date_created"`
	DateModified     string        `json:"date_modified"`
}

// Decode parses a serialized library document. The top level must be an
// object carrying version, clusters and standards. Optional record fields
// take the defaults a new record would get; a record missing a required
// field makes the whole document invalid.
func Decode(data []byte) (*Library, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Err: errors.New("library document must be a JSON object")}
	}
	var raw rawLibrary
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &DecodeError{Err: err}
	}
	switch {
	case raw.Version == nil:
		return nil, &DecodeError{Err: errors.New(`missing required field "version"`)}
	case raw.Clusters == nil:
		return nil, &DecodeError{Err: errors.New(`missing required field "clusters"`)}
	case raw.Standards == nil:
		return nil, &DecodeError{Err: errors.New(`missing required field "standards"`)}
	}

	lib := &Library{
		Version:      *raw.Version,
		LastModified: raw.LastModified,
		Clusters:     make([]Cluster, 0, len(*raw.Clusters)),
		Standards:    make([]Standard, 0, len(*raw.Standards)),
	}

	for i, msg := range *raw.Clusters {
		path := fmt.Sprintf("clusters[%d]", i)
		var rc rawCluster
		if err := json.Unmarshal(msg, &rc); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		if err := requireFields(path, map[string]*string{"id": rc.ID, "name": rc.Name}); err != nil {
			return nil, err
		}
		lib.Clusters = append(lib.Clusters, Cluster{
			ID:          *rc.ID,
			Name:        *rc.Name,
			Description: rc.Description,
			Order:       rc.Order,
		})
	}

	for i, msg := range *raw.Standards {
		path := fmt.Sprintf("standards[%d]", i)
		var rs rawStandard
		if err := json.Unmarshal(msg, &rs); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		required := map[string]*string{"id": rs.ID, "name": rs.Name, "cluster": rs.Cluster}
		if err := requireFields(path, required); err != nil {
			return nil, err
		}
		std := Standard{
			ID:               *rs.ID,
			Name:             *rs.Name,
			Cluster:          *rs.Cluster,
			Description:      rs.Description,
			ImportanceWeight: DefaultImportanceWeight,
			PrimaryFocus:     rs.PrimaryFocus,
			SecondaryFocus:   rs.SecondaryFocus,
			Emotions:         rs.Emotions,
			DateCreated:      rs.DateCreated,
			DateModified:     rs.DateModified,
		}
		if rs.ImportanceWeight != nil {
			std.ImportanceWeight = *rs.ImportanceWeight
		}
		if rs.Vector != nil {
			std.Vector = *rs.Vector
		}
		if rs.Rationale != nil {
			std.Rationale = *rs.Rationale
		}
		if std.Emotions == nil {
			std.Emotions = []Emotion{}
		}
		lib.Standards = append(lib.Standards, std)
	}

	return lib, nil
}

func requireFields(path string, fields map[string]*string) error {
	// deterministic order for error messages
	for _, name := range []string{"id", "name", "cluster"} {
		v, ok := fields[name]
		if ok && v == nil {
			return &DecodeError{
				Path: path,
				Err:  fmt.Errorf("missing required field %q", name),
			}
		}
	}
	return nil
}

// Encode serializes lib as indented JSON. Slices are always emitted as
// arrays, never null.
func Encode(lib *Library) ([]byte, error) {
	if lib == nil {
		return nil, errors.New("encode library: nil library")
	}
	return MarshalDocument(lib.Clone())
}

// MarshalDocument writes v as two-space indented JSON without HTML escaping.
func MarshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportedStandard is a Standard as it appears in an export document.
// Rationale is nil when rationales are excluded and is then omitted.
type ExportedStandard struct {
	Standard
	Rationale *Rationale `json:"rationale,omitempty"`
}

// ExportDocument is a filtered snapshot of a library for downstream use.
type ExportDocument struct {
	Version   string             `json:"version"`
	Exported  string             `json:"exported"`
	Clusters  []Cluster          `json:"clusters"`
	Standards []ExportedStandard `json:"standards"`
}

// ExportFilter selects standards for export. Empty lists select everything;
// when both are set a standard must match both.
type ExportFilter struct {
	ClusterIDs        []string `json:"cluster_ids,omitempty"`
	StandardIDs       []string `json:"standard_ids,omitempty"`
	IncludeRationales bool     `json:"include_rationales"`
}

// Export builds an ExportDocument from lib. All clusters are included.
func Export(lib *Library, filter ExportFilter, now time.Time) *ExportDocument {
	clusterSet := toSet(filter.ClusterIDs)
	standardSet := toSet(filter.StandardIDs)

	doc := &ExportDocument{
		Version:   lib.Version,
		Exported:  now.Format(time.RFC3339Nano),
		Clusters:  make([]Cluster, len(lib.Clusters)),
		Standards: []ExportedStandard{},
	}
	copy(doc.Clusters, lib.Clusters)

	for _, s := range lib.Standards {
		if len(clusterSet) > 0 && !clusterSet[s.Cluster] {
			continue
		}
		if len(standardSet) > 0 && !standardSet[s.ID] {
			continue
		}
		es := ExportedStandard{Standard: s.Clone()}
		if filter.IncludeRationales {
			r := s.Rationale
			es.Rationale = &r
		}
		doc.Standards = append(doc.Standards, es)
	}
	return doc
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
