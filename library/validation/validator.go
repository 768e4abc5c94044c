// Package validation audits a loaded library for invariant violations
// (errors) and data-quality issues (warnings). It never modifies the library.
package validation

import (
	"fmt"
	"strings"

	"github.com/c360studio/maclib/library"
)

// Severity grades a finding.
type Severity string

const (
	// SeverityError marks a broken invariant.
	SeverityError Severity = "error"
	// SeverityWarning marks a data-quality issue.
	SeverityWarning Severity = "warning"
)

// Finding codes.
const (
	CodeVectorSum         = "vector_sum"
	CodeUnknownCluster    = "unknown_cluster"
	CodeDuplicateStandard = "duplicate_standard"
	CodeDuplicateCluster  = "duplicate_cluster"
	CodeMissingID         = "missing_id"
	CodeMissingName       = "missing_name"
	CodeMissingCluster    = "missing_cluster"
	CodeWeightRange       = "weight_range"
	CodeClusterOrder      = "cluster_order"
	CodeMissingRationale  = "missing_rationale"
	CodeUnknownFocus      = "unknown_focus"
	CodeUnknownEmotion    = "unknown_emotion"
)

// RationaleThreshold is the dimension weight above which a rationale is expected.
const RationaleThreshold = 0.1

// Finding is a single validation result.
type Finding struct {
	Severity Severity `json:"severity"`
	// Subject is the standard ID, or "CLUSTER:<id>" for cluster findings.
	Subject string `json:"subject"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// String renders the finding for terminal output.
func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(f.Severity)), f.Subject, f.Message)
}

// Report is the ordered list of findings for one library.
type Report struct {
	Findings []Finding `json:"findings"`
}

// HasErrors reports whether any finding has SeverityError.
func (r *Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error findings.
func (r *Report) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the warning findings.
func (r *Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Finding {
	out := []Finding{}
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) add(sev Severity, subject, code, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Severity: sev,
		Subject:  subject,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Validate runs every check against lib.
func Validate(lib *library.Library) *Report {
	r := &Report{Findings: []Finding{}}
	if lib == nil {
		return r
	}

	checkVectors(r, lib)
	checkClusterReferences(r, lib)
	checkDuplicates(r, lib)
	checkRequiredFields(r, lib)
	checkClusterOrder(r, lib)
	checkRationales(r, lib)
	checkVocabulary(r, lib)

	return r
}

func clusterSubject(id string) string {
	return "CLUSTER:" + id
}

func standardSubject(id string) string {
	if id == "" {
		return "???"
	}
	return id
}

func checkVectors(r *Report, lib *library.Library) {
	for _, s := range lib.Standards {
		if !s.Vector.IsValid() {
			r.add(SeverityError, standardSubject(s.ID), CodeVectorSum, "%s", library.SumMessage(s.Vector.Sum()))
		}
	}
}

func checkClusterReferences(r *Report, lib *library.Library) {
	ids := make(map[string]bool, len(lib.Clusters))
	for _, c := range lib.Clusters {
		ids[c.ID] = true
	}
	for _, s := range lib.Standards {
		if s.Cluster != "" && !ids[s.Cluster] {
			r.add(SeverityError, standardSubject(s.ID), CodeUnknownCluster,
				"References non-existent cluster '%s'", s.Cluster)
		}
	}
}

func checkDuplicates(r *Report, lib *library.Library) {
	seen := make(map[string]bool, len(lib.Standards))
	for _, s := range lib.Standards {
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			r.add(SeverityError, s.ID, CodeDuplicateStandard, "Duplicate standard ID")
		}
		seen[s.ID] = true
	}

	seenClusters := make(map[string]bool, len(lib.Clusters))
	for _, c := range lib.Clusters {
		if seenClusters[c.ID] {
			r.add(SeverityError, clusterSubject(c.ID), CodeDuplicateCluster, "Duplicate cluster ID")
		}
		seenClusters[c.ID] = true
	}
}

func checkRequiredFields(r *Report, lib *library.Library) {
	for _, s := range lib.Standards {
		subject := standardSubject(s.ID)
		if s.ID == "" {
			r.add(SeverityError, subject, CodeMissingID, "Missing ID")
		}
		if s.Name == "" {
			r.add(SeverityError, subject, CodeMissingName, "Missing name")
		}
		if s.Cluster == "" {
			r.add(SeverityError, subject, CodeMissingCluster, "Missing cluster")
		}
		if s.ImportanceWeight < 0 || s.ImportanceWeight > 1 {
			r.add(SeverityError, subject, CodeWeightRange,
				"Importance weight %v not in [0,1]", s.ImportanceWeight)
		}
	}
}

func checkClusterOrder(r *Report, lib *library.Library) {
	if lib.OrdersContiguous() {
		return
	}
	n := len(lib.Clusters)
	seen := make(map[int]string, n)
	for _, c := range lib.Clusters {
		switch {
		case c.Order < 1 || c.Order > n:
			r.add(SeverityError, clusterSubject(c.ID), CodeClusterOrder,
				"Order %d outside 1..%d", c.Order, n)
		case seen[c.Order] != "":
			r.add(SeverityError, clusterSubject(c.ID), CodeClusterOrder,
				"Order %d already used by cluster '%s'", c.Order, seen[c.Order])
		default:
			seen[c.Order] = c.ID
		}
	}
}

func checkRationales(r *Report, lib *library.Library) {
	for _, s := range lib.Standards {
		for _, d := range s.Vector.Dimensions() {
			if d.Value > RationaleThreshold && strings.TrimSpace(s.Rationale.ForDimension(d.Name)) == "" {
				r.add(SeverityWarning, standardSubject(s.ID), CodeMissingRationale,
					"Missing %s_rationale (MAC value > %v)", d.Name, RationaleThreshold)
			}
		}
	}
}

func checkVocabulary(r *Report, lib *library.Library) {
	for _, s := range lib.Standards {
		subject := standardSubject(s.ID)
		if s.PrimaryFocus != "" && !s.PrimaryFocus.IsValid() {
			r.add(SeverityWarning, subject, CodeUnknownFocus, "Unknown primary focus '%s'", s.PrimaryFocus)
		}
		if s.SecondaryFocus != "" && !s.SecondaryFocus.IsValid() {
			r.add(SeverityWarning, subject, CodeUnknownFocus, "Unknown secondary focus '%s'", s.SecondaryFocus)
		}
		if _, unknown := library.NormalizeEmotions(s.Emotions); len(unknown) > 0 {
			r.add(SeverityWarning, subject, CodeUnknownEmotion, "Unknown impacted emotions %v", unknown)
		}
	}
}
