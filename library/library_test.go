package library

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVector() WeightVector {
	return WeightVector{Family: 0.3, Group: 0.2, Reciprocity: 0.1, Heroism: 0.1, Deference: 0.1, Fairness: 0.1, Property: 0.1}
}

func TestWeightVector_IsValid(t *testing.T) {
	tests := []struct {
		name string
		v    WeightVector
		want bool
	}{
		{"normalized", validVector(), true},
		{"zero", WeightVector{}, false},
		{"within tolerance", WeightVector{Family: 0.99995}, true},
		{"outside tolerance", WeightVector{Family: 0.9998}, false},
		{"over", WeightVector{Family: 0.6, Group: 0.6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v (sum %v)", got, tt.want, tt.v.Sum())
			}
		})
	}
}

func TestWeightVector_Check(t *testing.T) {
	require.NoError(t, validVector().Check())

	err := WeightVector{Family: 0.5, Group: 0.37}.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "MAC vector sums to 0.8700, must be 1.0")
}

func TestRationale_ForDimension(t *testing.T) {
	r := Rationale{Family: "f", Property: "p", Overall: "o"}
	assert.Equal(t, "f", r.ForDimension(DimFamily))
	assert.Equal(t, "p", r.ForDimension(DimProperty))
	assert.Equal(t, "", r.ForDimension("overall"))
}

func TestParseFocus(t *testing.T) {
	f, err := ParseFocus("primary_focus", "")
	require.NoError(t, err)
	assert.Equal(t, FocusNA, f)

	f, err = ParseFocus("primary_focus", "State/Event")
	require.NoError(t, err)
	assert.Equal(t, FocusStateEvent, f)

	_, err = ParseFocus("primary_focus", "Person/Group")
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "primary_focus", ve.Field)
}

func TestNormalizeEmotions(t *testing.T) {
	valid, unknown := NormalizeEmotions([]Emotion{"Valence", "Praiseworthy", "Valence", "Consequence", "Agency"})
	assert.Equal(t, []Emotion{"Praiseworthiness", "Valence", "Agency"}, valid)
	assert.Equal(t, []Emotion{"Consequence"}, unknown)

	_, err := ParseEmotions("impacted_emotions", []Emotion{"Consequence"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestDecode_Defaults(t *testing.T) {
	doc := `{
		"version": "2.6",
		"clusters": [{"id": "ENH", "name": "Empathy", "order": 1}],
		"standards": [{"id": "ENH-1", "name": "Do no harm", "cluster": "ENH"}]
	}`

	lib, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "2.6", lib.Version)
	require.Len(t, lib.Standards, 1)

	std := lib.Standards[0]
	assert.Equal(t, DefaultImportanceWeight, std.ImportanceWeight)
	assert.True(t, std.Vector.IsZero())
	assert.NotNil(t, std.Emotions)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"not json", `{`, ""},
		{"null", `null`, ""},
		{"array", `[]`, ""},
		{"empty object", `{}`, ""},
		{"unexpected field only", `{"unexpected": 1}`, ""},
		{"missing version", `{"clusters":[],"standards":[]}`, ""},
		{"null version", `{"version":null,"clusters":[],"standards":[]}`, ""},
		{"missing clusters", `{"version":"1","standards":[]}`, ""},
		{"null standards", `{"version":"1","clusters":[],"standards":null}`, ""},
		{"cluster without id", `{"version":"1","clusters":[{"name":"x"}],"standards":[]}`, "clusters[0]"},
		{"standard without cluster", `{"version":"1","clusters":[],"standards":[{"id":"A","name":"a"}]}`, "standards[0]"},
		{"wrong type", `{"version":"1","clusters":[],"standards":[{"id":"A","name":"a","cluster":"C","importance_weight":"high"}]}`, "standards[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat))

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.path, de.Path)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	lib := NewDefaultLibrary()
	lib.Touch(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	lib.Standards = append(lib.Standards, Standard{
		ID:               "ENH-1",
		Name:             "Avoid causing harm",
		Cluster:          "ENH",
		Description:      "Harm & <suffering>",
		ImportanceWeight: 0.9,
		Vector:           validVector(),
		PrimaryFocus:     FocusAction,
		SecondaryFocus:   FocusObjectConcept,
		Emotions:         []Emotion{"Valence", "Agency"},
		Rationale:        Rationale{Family: "kin", Overall: "core"},
		DateCreated:      "2025-03-01",
		DateModified:     "2025-03-01",
	})

	data, err := Encode(lib)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Harm & <suffering>")

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestEncode_EmptySlicesAreArrays(t *testing.T) {
	data, err := Encode(&Library{Version: "1"})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "[]", string(raw["clusters"]))
	assert.Equal(t, "[]", string(raw["standards"]))
}

func TestExport_FiltersAndRationales(t *testing.T) {
	lib := NewDefaultLibrary()
	lib.Standards = []Standard{
		{ID: "ENH-1", Name: "a", Cluster: "ENH", Rationale: Rationale{Overall: "x"}},
		{ID: "ENH-2", Name: "b", Cluster: "ENH"},
		{ID: "JE-1", Name: "c", Cluster: "JE"},
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	doc := Export(lib, ExportFilter{ClusterIDs: []string{"ENH"}, StandardIDs: []string{"ENH-1", "JE-1"}}, now)
	require.Len(t, doc.Standards, 1)
	assert.Equal(t, "ENH-1", doc.Standards[0].ID)
	assert.Nil(t, doc.Standards[0].Rationale)
	assert.Len(t, doc.Clusters, 15)

	data, err := MarshalDocument(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rationale")

	doc = Export(lib, ExportFilter{IncludeRationales: true}, now)
	require.Len(t, doc.Standards, 3)
	require.NotNil(t, doc.Standards[0].Rationale)
	assert.Equal(t, "x", doc.Standards[0].Rationale.Overall)
}

func TestLibrary_OrdersContiguous(t *testing.T) {
	lib := &Library{Clusters: []Cluster{{ID: "B", Order: 7}, {ID: "A", Order: 7}, {ID: "C", Order: 2}}}
	assert.False(t, lib.OrdersContiguous())

	lib.Clusters = []Cluster{{ID: "B", Order: 2}, {ID: "C", Order: 1}}
	assert.True(t, lib.OrdersContiguous())
}

func TestLibrary_CloneIsDeep(t *testing.T) {
	lib := NewDefaultLibrary()
	lib.Standards = []Standard{{ID: "ENH-1", Emotions: []Emotion{"Valence"}}}

	c := lib.Clone()
	c.Clusters[0].Name = "changed"
	c.Standards[0].Emotions[0] = "Agency"

	assert.Equal(t, "Empathy & Non-Harm", lib.Clusters[0].Name)
	assert.Equal(t, Emotion("Valence"), lib.Standards[0].Emotions[0])
}
