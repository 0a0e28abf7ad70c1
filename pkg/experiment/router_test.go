package experiment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoArmExperiment(id string) *Experiment {
	return &Experiment{
		ID:             id,
		Status:         StatusActive,
		TargetCommands: []string{"/ask"},
		Arms: []Arm{
			{ID: "A", Name: "control", Weight: 0.5, Enabled: true},
			{ID: "B", Name: "treatment", Weight: 0.5, Enabled: true,
				Config: map[string]any{"primary_model": "claude-sonnet-4"}},
		},
	}
}

func TestRegisterWeightSumBoundaries(t *testing.T) {
	for _, tc := range []struct {
		sum  float64
		pass bool
	}{
		{0.99, true},
		{1.01, true},
		{0.98, false},
		{1.02, false},
	} {
		t.Run(fmt.Sprintf("sum=%v", tc.sum), func(t *testing.T) {
			r := NewRouter()
			err := r.Register(&Experiment{
				ID:     "E",
				Status: StatusActive,
				Arms: []Arm{
					{ID: "A", Weight: tc.sum / 2, Enabled: true},
					{ID: "B", Weight: tc.sum / 2, Enabled: true},
				},
			})
			if tc.pass {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegisterRejectsDuplicateArmIDs(t *testing.T) {
	r := NewRouter()
	err := r.Register(&Experiment{
		ID: "E",
		Arms: []Arm{
			{ID: "A", Weight: 0.5, Enabled: true},
			{ID: "A", Weight: 0.5, Enabled: true},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate arm id")
}

func TestArmForRequestDeterministic(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(twoArmExperiment("E")))

	first, err := r.ArmForRequest("/ask", "alice", "E")
	require.NoError(t, err)
	require.NotNil(t, first)

	for i := 0; i < 20; i++ {
		again, err := r.ArmForRequest("/ask", "alice", "E")
		require.NoError(t, err)
		assert.Equal(t, first.ArmID, again.ArmID)
	}
}

func TestArmForRequestDistribution(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(twoArmExperiment("E")))

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		a, err := r.ArmForRequest("/ask", fmt.Sprintf("user-%d", i), "E")
		require.NoError(t, err)
		counts[a.ArmID]++
	}
	assert.GreaterOrEqual(t, counts["A"], 4500)
	assert.LessOrEqual(t, counts["A"], 5500)
}

func TestArmForRequestByCommandPrefix(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(twoArmExperiment("E")))

	a, err := r.ArmForRequest("/ask", "alice", "")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "E", a.ExperimentID)

	none, err := r.ArmForRequest("/events", "alice", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestArmForRequestNamedMustBeActive(t *testing.T) {
	r := NewRouter()
	exp := twoArmExperiment("E")
	exp.Status = StatusPaused
	require.NoError(t, r.Register(exp))

	_, err := r.ArmForRequest("/ask", "alice", "E")
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = r.ArmForRequest("/ask", "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivateDeactivate(t *testing.T) {
	r := NewRouter()
	exp := twoArmExperiment("E")
	exp.Status = StatusDraft
	require.NoError(t, r.Register(exp))

	_, err := r.ArmForRequest("/ask", "alice", "E")
	require.Error(t, err)

	require.NoError(t, r.Activate("E"))
	_, err = r.ArmForRequest("/ask", "alice", "E")
	require.NoError(t, err)

	require.NoError(t, r.Deactivate("E"))
	_, err = r.ArmForRequest("/ask", "alice", "E")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestDisabledArmsExcluded(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(&Experiment{
		ID:     "E",
		Status: StatusActive,
		Arms: []Arm{
			{ID: "A", Weight: 1.0, Enabled: true},
			{ID: "B", Weight: 0.9, Enabled: false},
		},
	}))

	for i := 0; i < 50; i++ {
		a, err := r.ArmForRequest("/ask", fmt.Sprintf("u%d", i), "E")
		require.NoError(t, err)
		assert.Equal(t, "A", a.ArmID)
	}
}

func TestArmConfigOverride(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(&Experiment{
		ID:             "E",
		Status:         StatusActive,
		TargetCommands: []string{"/ask"},
		Arms: []Arm{
			{ID: "B", Name: "treatment", Weight: 1.0, Enabled: true,
				Config: map[string]any{"depth": 3, "primary_model": "claude-sonnet-4"}},
		},
	}))

	base := map[string]any{"depth": 2, "lang": "en"}
	merged, assignment, err := r.ArmConfigOverride("/ask", base, "alice", "E")
	require.NoError(t, err)
	require.NotNil(t, assignment)

	assert.Equal(t, 3, merged["depth"])
	assert.Equal(t, "en", merged["lang"])
	assert.Equal(t, "claude-sonnet-4", merged["primary_model"])

	ann, ok := merged["_experiment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "E", ann["experiment_id"])
	assert.Equal(t, "B", ann["arm_id"])
	assert.Equal(t, "treatment", ann["arm_name"])

	// Base config untouched when nothing applies.
	same, none, err := r.ArmConfigOverride("/events", base, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, 2, same["depth"])
	_, annotated := same["_experiment"]
	assert.False(t, annotated)
}

func TestRecordAndSummary(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register(twoArmExperiment("E")))

	require.NoError(t, r.Record("E", "A", "latency_ms", 100.0, nil))
	require.NoError(t, r.Record("E", "A", "latency_ms", 300.0, nil))
	require.NoError(t, r.Record("E", "A", "outcome", "accepted", nil))
	require.NoError(t, r.Record("E", "B", "latency_ms", 50, map[string]any{"region": "eu"}))

	require.Error(t, r.Record("E", "missing-arm", "latency_ms", 1.0, nil))
	require.Error(t, r.Record("missing", "A", "latency_ms", 1.0, nil))

	summary, err := r.Summary("E")
	require.NoError(t, err)

	a := summary["A"]
	assert.Equal(t, 3, a.SampleSize)
	stats := a.Metrics["latency_ms"]
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 200.0, stats.Mean, 1e-9)
	assert.Equal(t, 100.0, stats.Min)
	assert.Equal(t, 300.0, stats.Max)
	_, hasCategorical := a.Metrics["outcome"]
	assert.False(t, hasCategorical)

	b := summary["B"]
	assert.Equal(t, 1, b.SampleSize)
	assert.Equal(t, 50.0, b.Metrics["latency_ms"].Mean)
}

func TestAssignmentPointStable(t *testing.T) {
	p1 := assignmentPoint("alice", "E")
	p2 := assignmentPoint("alice", "E")
	assert.Equal(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 0.0)
	assert.Less(t, p1, 1.0)
}
