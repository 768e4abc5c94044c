package library

import "slices"

// Focus classifies what a standard is primarily about.
type Focus string

// Focus values. The set is closed.
const (
	FocusAction        Focus = "Action"
	FocusStateEvent    Focus = "State/Event"
	FocusObjectConcept Focus = "Object/Concept"
	FocusNA            Focus = "N/A"
)

// FocusOptions lists the valid Focus values in display order.
var FocusOptions = []Focus{FocusAction, FocusStateEvent, FocusObjectConcept, FocusNA}

// IsValid reports whether f is one of FocusOptions.
func (f Focus) IsValid() bool {
	return slices.Contains(FocusOptions, f)
}

// ParseFocus validates a focus string. The empty string normalizes to N/A.
func ParseFocus(field, s string) (Focus, error) {
	if s == "" {
		return FocusNA, nil
	}
	f := Focus(s)
	if !f.IsValid() {
		return "", Invalid(field, s, "must be one of %v", FocusOptions)
	}
	return f, nil
}

// Emotion is an appraisal dimension a standard impacts.
type Emotion string

// EmotionOptions is the closed 12-term vocabulary of impacted emotions,
// in display order.
var EmotionOptions = []Emotion{
	"Praiseworthiness", "Valence", "Arousal", "Dominance",
	"Belonging", "Goal Relevance", "Social Impact", "Prospect",
	"Agency", "Intentionality", "Expectation", "Familiarity",
}

// emotionAliases maps legacy spellings found in older library files.
var emotionAliases = map[Emotion]Emotion{
	"Praiseworthy": "Praiseworthiness",
}

// IsValid reports whether e is in EmotionOptions.
func (e Emotion) IsValid() bool {
	return slices.Contains(EmotionOptions, e)
}

// NormalizeEmotions maps aliases, collapses duplicates and orders the result
// by vocabulary position. Terms outside the vocabulary are returned
// separately, in input order.
func NormalizeEmotions(in []Emotion) (valid, unknown []Emotion) {
	seen := make(map[Emotion]bool, len(in))
	for _, e := range in {
		if alias, ok := emotionAliases[e]; ok {
			e = alias
		}
		if !e.IsValid() {
			unknown = append(unknown, e)
			continue
		}
		seen[e] = true
	}

	valid = make([]Emotion, 0, len(seen))
	for _, e := range EmotionOptions {
		if seen[e] {
			valid = append(valid, e)
		}
	}
	return valid, unknown
}

// ParseEmotions normalizes in and rejects any term outside the vocabulary.
func ParseEmotions(field string, in []Emotion) ([]Emotion, error) {
	valid, unknown := NormalizeEmotions(in)
	if len(unknown) > 0 {
		return nil, Invalid(field, unknown, "not in the emotion vocabulary")
	}
	return valid, nil
}
