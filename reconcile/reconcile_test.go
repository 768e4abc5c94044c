package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/storage"
)

// fakeTarget records calls and keeps just enough state to route records.
type fakeTarget struct {
	clusters  map[string]bool
	standards map[string]bool
	calls     []string
	failOn    map[string]error
}

func newFakeTarget(clusters ...string) *fakeTarget {
	f := &fakeTarget{clusters: map[string]bool{}, standards: map[string]bool{}, failOn: map[string]error{}}
	for _, id := range clusters {
		f.clusters[id] = true
	}
	return f
}

func (f *fakeTarget) HasCluster(id string) bool  { return f.clusters[id] }
func (f *fakeTarget) HasStandard(id string) bool { return f.standards[id] }

func (f *fakeTarget) CreateCluster(_ context.Context, in catalog.ClusterInput) (library.Cluster, error) {
	f.calls = append(f.calls, "create_cluster:"+*in.ID)
	if err := f.failOn[*in.ID]; err != nil {
		return library.Cluster{}, err
	}
	f.clusters[*in.ID] = true
	return library.Cluster{ID: *in.ID}, nil
}

func (f *fakeTarget) UpdateCluster(_ context.Context, id string, _ catalog.ClusterInput) (library.Cluster, error) {
	f.calls = append(f.calls, "update_cluster:"+id)
	return library.Cluster{ID: id}, f.failOn[id]
}

func (f *fakeTarget) CreateStandard(_ context.Context, in catalog.StandardInput) (library.Standard, error) {
	f.calls = append(f.calls, "create_standard:"+*in.ID)
	if err := f.failOn[*in.ID]; err != nil {
		return library.Standard{}, err
	}
	f.standards[*in.ID] = true
	return library.Standard{ID: *in.ID}, nil
}

func (f *fakeTarget) UpdateStandard(_ context.Context, id string, _ catalog.StandardInput) (library.Standard, error) {
	f.calls = append(f.calls, "update_standard:"+id)
	return library.Standard{ID: id}, f.failOn[id]
}

type capturePublisher struct {
	subjects []string
}

func (c *capturePublisher) Publish(_ context.Context, subject string, _ []byte) error {
	c.subjects = append(c.subjects, subject)
	return nil
}

func TestImport_RejectsMalformedDocument(t *testing.T) {
	for _, doc := range []string{"", "not json", "[]", `"string"`, "null", `{"clusters": 5}`, `{"clusters": [] } trailing`} {
		target := newFakeTarget()
		_, err := New(target).Import(context.Background(), strings.NewReader(doc))
		assert.ErrorIs(t, err, library.ErrInvalidFormat, "doc %q", doc)
		assert.Empty(t, target.calls, "doc %q must not mutate", doc)
	}
}

func TestImport_ClustersBeforeStandards(t *testing.T) {
	target := newFakeTarget("ENH")
	target.standards["ENH-1"] = true

	doc := `{
		"standards": [
			{"id": "NEW-1", "cluster": "NEW", "name": "uses new cluster"},
			{"id": "ENH-1", "cluster": "ENH"}
		],
		"clusters": [
			{"id": "ENH", "name": "Enhancement"},
			{"id": "NEW", "name": "Brand new", "order": 2}
		]
	}`

	report, err := New(target).Import(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"update_cluster:ENH",
		"create_cluster:NEW",
		"create_standard:NEW-1",
		"update_standard:ENH-1",
	}, target.calls)
	assert.Equal(t, 1, report.ClustersAdded)
	assert.Equal(t, 1, report.ClustersUpdated)
	assert.Equal(t, 1, report.StandardsAdded)
	assert.Equal(t, 1, report.StandardsUpdated)
	assert.Zero(t, report.StandardsSkipped)
	assert.NotEmpty(t, report.RunID)
}

func TestImport_SkipsBadRecords(t *testing.T) {
	target := newFakeTarget("ENH")
	target.failOn["ENH-BAD"] = library.Invalid("mac_vector", nil, "sums to 0.5000")
	target.failOn["ENH-IO"] = fmt.Errorf("save library: %w", library.ErrIO)
	target.failOn["CLX"] = library.Invalid("order", 0, "must be >= 1")

	doc := `{
		"clusters": [
			{"name": "no id"},
			{"id": 7},
			{"id": "CLX"}
		],
		"standards": [
			{"name": "no id", "cluster": "ENH"},
			{"id": "NO-CLUSTER"},
			{"id": "GHOST-1", "cluster": "GHOST"},
			{"id": "ENH-W", "cluster": "ENH", "importance_weight": "heavy"},
			{"id": "ENH-BAD", "cluster": "ENH"},
			{"id": "ENH-IO", "cluster": "ENH"},
			{"id": "ENH-OK", "cluster": "ENH"}
		]
	}`

	report, err := New(target).Import(context.Background(), strings.NewReader(doc))
	require.NoError(t, err, "bad records never abort the run")

	assert.Equal(t, 1, report.StandardsAdded)
	assert.Equal(t, 4, report.StandardsSkipped)

	codes := map[string]string{}
	for _, s := range report.Skips {
		codes[s.Kind+":"+s.ID] = s.Code
	}
	assert.Equal(t, map[string]string{
		"cluster:":         CodeMalformedRecord,
		"cluster:CLX":      CodeClusterRejected,
		"standard:GHOST-1": CodeUnknownCluster,
		"standard:ENH-W":   CodeMalformedRecord,
		"standard:ENH-BAD": CodeValidationFailed,
		"standard:ENH-IO":  CodeWriteFailed,
	}, codes)
	assert.Len(t, report.SkippedReasons, len(report.Skips))
	assert.Contains(t, report.SkippedReasons, "Standard 'GHOST-1' skipped: Cluster 'GHOST' does not exist.")
}

func TestImport_PublishesCompletion(t *testing.T) {
	pub := &capturePublisher{}
	_, err := New(newFakeTarget(), WithPublisher(pub)).Import(context.Background(), strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []string{events.ImportCompleted.Pattern}, pub.subjects)
}

func TestImport_StopsOnCancel(t *testing.T) {
	target := newFakeTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(target).Import(ctx, strings.NewReader(`{"clusters":[{"id":"A"}]}`))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.calls)
}

func TestImport_ReadFailure(t *testing.T) {
	_, err := New(newFakeTarget()).Import(context.Background(), errReader{})
	assert.ErrorIs(t, err, library.ErrIO)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

const importDoc = `{
	"version": "2.7",
	"clusters": [
		{"id": "X", "name": "Imported X", "order": 1},
		{"id": "Y", "name": "Imported Y", "order": 3}
	],
	"standards": [
		{
			"id": "X-1", "name": "First", "cluster": "X",
			"importance_weight": 0.9,
			"mac_vector": {"family": 0.5, "group": 0.5, "reciprocity": 0, "heroism": 0, "deference": 0, "fairness": 0, "property": 0},
			"primary_focus": "Action", "secondary_focus": "N/A",
			"impacted_emotions": ["Valence", "Praiseworthy"],
			"rationale": {"family_rationale": "kin", "group_rationale": "tribe"}
		},
		{"id": "Y-1", "name": "Second", "cluster": "Y"},
		{"id": "Z-1", "name": "Orphan", "cluster": "Z"}
	]
}`

func TestImport_AgainstControllerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(storage.Options{BaseDir: t.TempDir()})
	seed := &library.Library{
		Version: library.DefaultVersion,
		Clusters: []library.Cluster{
			{ID: "A", Name: "A", Order: 1},
			{ID: "B", Name: "B", Order: 2},
		},
		Standards: []library.Standard{},
	}
	require.NoError(t, store.Save(ctx, seed))

	ctrl, err := catalog.New(ctx, store)
	require.NoError(t, err)
	rec := New(ctrl)

	first, err := rec.Import(ctx, strings.NewReader(importDoc))
	require.NoError(t, err)
	assert.Equal(t, 2, first.ClustersAdded)
	assert.Equal(t, 2, first.StandardsAdded)
	assert.Equal(t, 1, first.StandardsSkipped)

	afterFirst := ctrl.Library()
	var order []string
	for _, c := range afterFirst.Clusters {
		order = append(order, c.ID)
	}
	assert.Equal(t, []string{"X", "A", "Y", "B"}, order)
	assert.True(t, afterFirst.OrdersContiguous())

	std, err := ctrl.Standard("X-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, std.ImportanceWeight)
	assert.Equal(t, []library.Emotion{"Praiseworthiness", "Valence"}, std.Emotions)

	second, err := rec.Import(ctx, strings.NewReader(importDoc))
	require.NoError(t, err)
	assert.Zero(t, second.ClustersAdded)
	assert.Zero(t, second.StandardsAdded)
	assert.Equal(t, 2, second.ClustersUpdated)
	assert.Equal(t, 2, second.StandardsUpdated)
	assert.NotEqual(t, first.RunID, second.RunID)

	afterSecond := ctrl.Library()
	afterFirst.LastModified, afterSecond.LastModified = "", ""
	assert.Equal(t, afterFirst, afterSecond)
}
