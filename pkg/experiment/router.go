package experiment

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
)

// Router holds the process-wide experiment registry and per-arm metric
// records. Reads dominate; all access goes through a single RWMutex.
type Router struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	metrics     map[string]map[string][]MetricRecord // experiment id -> arm id -> records
	now         func() time.Time
}

// NewRouter creates an empty experiment router.
func NewRouter() *Router {
	return &Router{
		experiments: make(map[string]*Experiment),
		metrics:     make(map[string]map[string][]MetricRecord),
		now:         time.Now,
	}
}

// Register validates and stores an experiment. Registering an id twice
// replaces the definition but keeps accumulated metrics.
func (r *Router) Register(e *Experiment) error {
	if err := e.Validate(); err != nil {
		return err
	}
	cp := *e
	cp.Arms = append([]Arm(nil), e.Arms...)
	if cp.Status == "" {
		cp.Status = StatusDraft
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[cp.ID] = &cp
	if _, ok := r.metrics[cp.ID]; !ok {
		r.metrics[cp.ID] = make(map[string][]MetricRecord)
	}
	slog.Info("Experiment registered",
		"experiment", cp.ID, "status", cp.Status, "arms", len(cp.Arms))
	return nil
}

// Get returns a copy of a registered experiment.
func (r *Router) Get(id string) (*Experiment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experiments[id]
	if !ok {
		return nil, false
	}
	cp := *e
	cp.Arms = append([]Arm(nil), e.Arms...)
	return &cp, true
}

// Activate sets the experiment status to active.
func (r *Router) Activate(id string) error { return r.setStatus(id, StatusActive) }

// Deactivate sets the experiment status to paused.
func (r *Router) Deactivate(id string) error { return r.setStatus(id, StatusPaused) }

func (r *Router) setStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Status = status
	return nil
}

// ArmForRequest resolves the arm serving one request. With an empty
// experimentID the first active experiment targeting the command is used;
// none matching returns (nil, nil). A named experiment must exist and be
// active. With a userID assignment is deterministic via a stable hash;
// without one an arm is sampled by weight.
func (r *Router) ArmForRequest(command, userID, experimentID string) (*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exp *Experiment
	if experimentID == "" {
		exp = r.firstActiveForLocked(command)
		if exp == nil {
			return nil, nil
		}
	} else {
		e, ok := r.experiments[experimentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, experimentID)
		}
		if e.Status != StatusActive {
			return nil, fmt.Errorf("%w: %s (status %s)", ErrNotActive, experimentID, e.Status)
		}
		exp = e
	}

	arms := exp.enabledArms()
	if len(arms) == 0 {
		return nil, nil
	}

	var point float64
	if userID != "" {
		point = assignmentPoint(userID, exp.ID)
	} else {
		point = rand.Float64()
	}

	arm := armAt(arms, point)
	return &Assignment{
		ExperimentID: exp.ID,
		ArmID:        arm.ID,
		ArmName:      arm.Name,
		Config:       arm.Config,
	}, nil
}

// firstActiveForLocked returns the first active experiment whose target
// commands prefix-match the command. Caller holds at least a read lock.
// Iteration order over registration is made deterministic by scanning ids
// in sorted order.
func (r *Router) firstActiveForLocked(command string) *Experiment {
	ids := make([]string, 0, len(r.experiments))
	for id := range r.experiments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		e := r.experiments[id]
		if e.Status != StatusActive {
			continue
		}
		for _, target := range e.TargetCommands {
			if strings.HasPrefix(command, target) {
				return e
			}
		}
	}
	return nil
}

// assignmentPoint maps (userID, experimentID) to a stable point in [0, 1).
// MD5 keeps assignments identical across process restarts.
func assignmentPoint(userID, experimentID string) float64 {
	sum := md5.Sum([]byte(userID + ":" + experimentID))
	h := binary.BigEndian.Uint64(sum[:8])
	return float64(h%10000) / 10000
}

// armAt selects the arm whose cumulative-weight window contains the point.
// Points past the cumulative total (weights summing below 1) land on the
// last arm.
func armAt(arms []Arm, point float64) *Arm {
	var cum float64
	for i := range arms {
		cum += arms[i].Weight
		if point < cum {
			return &arms[i]
		}
	}
	return &arms[len(arms)-1]
}

// ArmConfigOverride overlays the chosen arm's config onto baseConfig and
// annotates the result with the assignment under "_experiment". With no
// applicable arm the base config is returned unchanged.
func (r *Router) ArmConfigOverride(command string, baseConfig map[string]any, userID, experimentID string) (map[string]any, *Assignment, error) {
	assignment, err := r.ArmForRequest(command, userID, experimentID)
	if err != nil {
		return nil, nil, err
	}
	if assignment == nil {
		return baseConfig, nil, nil
	}

	merged := make(map[string]any, len(baseConfig)+len(assignment.Config)+1)
	for k, v := range baseConfig {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, assignment.Config, mergo.WithOverride); err != nil {
		return nil, nil, fmt.Errorf("merging arm config: %w", err)
	}
	merged["_experiment"] = map[string]any{
		"experiment_id": assignment.ExperimentID,
		"arm_id":        assignment.ArmID,
		"arm_name":      assignment.ArmName,
	}
	return merged, assignment, nil
}

// Record appends one metric observation for an experiment arm.
func (r *Router) Record(experimentID, armID, name string, value any, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.experiments[experimentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, experimentID)
	}
	found := false
	for _, arm := range e.Arms {
		if arm.ID == armID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("experiment %s has no arm %q", experimentID, armID)
	}

	r.metrics[experimentID][armID] = append(r.metrics[experimentID][armID], MetricRecord{
		Name:      name,
		Value:     value,
		Timestamp: r.now(),
		Metadata:  metadata,
	})
	return nil
}

// Summary aggregates metrics per arm: sample size plus mean/min/max/count
// per numeric metric name. Categorical values count toward sample size only.
func (r *Router) Summary(experimentID string) (map[string]ArmSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.experiments[experimentID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, experimentID)
	}

	out := make(map[string]ArmSummary)
	for armID, records := range r.metrics[experimentID] {
		summary := ArmSummary{
			SampleSize: len(records),
			Metrics:    make(map[string]MetricStats),
		}
		sums := make(map[string]float64)
		for _, rec := range records {
			val, ok := numericValue(rec.Value)
			if !ok {
				continue
			}
			stats := summary.Metrics[rec.Name]
			if stats.Count == 0 || val < stats.Min {
				stats.Min = val
			}
			if stats.Count == 0 || val > stats.Max {
				stats.Max = val
			}
			stats.Count++
			sums[rec.Name] += val
			summary.Metrics[rec.Name] = stats
		}
		for name, stats := range summary.Metrics {
			stats.Mean = sums[name] / float64(stats.Count)
			summary.Metrics[name] = stats
		}
		out[armID] = summary
	}
	return out, nil
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
