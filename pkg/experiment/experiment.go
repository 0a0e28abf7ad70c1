// Package experiment implements A/B experiment registration, deterministic
// arm assignment, per-arm config overlay, and metric collection.
package experiment

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Weight-sum tolerance for enabled arms.
const (
	minWeightSum = 0.99
	maxWeightSum = 1.01
)

var (
	ErrNotFound  = errors.New("experiment not found")
	ErrNotActive = errors.New("experiment is not active")
)

// Arm is one traffic split of an experiment with its config overrides.
type Arm struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Weight  float64        `json:"weight" yaml:"weight"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
}

// Experiment is one registered A/B experiment. MinSampleSize and
// MaxDurationDays are advisory: the router records them but never
// auto-completes an experiment.
type Experiment struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name,omitempty" yaml:"name,omitempty"`
	Status          Status   `json:"status" yaml:"status"`
	Arms            []Arm    `json:"arms" yaml:"arms"`
	TargetCommands  []string `json:"target_commands" yaml:"target_commands"`
	MinSampleSize   int      `json:"min_sample_size,omitempty" yaml:"min_sample_size,omitempty"`
	MaxDurationDays int      `json:"max_duration_days,omitempty" yaml:"max_duration_days,omitempty"`
}

// Validate checks the registration invariants: non-empty id, at least one
// arm, unique arm ids, and enabled arm weights summing to 1 within tolerance.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return errors.New("experiment id is required")
	}
	if len(e.Arms) == 0 {
		return fmt.Errorf("experiment %s has no arms", e.ID)
	}

	seen := make(map[string]bool, len(e.Arms))
	var sum float64
	for _, arm := range e.Arms {
		if arm.ID == "" {
			return fmt.Errorf("experiment %s has an arm with empty id", e.ID)
		}
		if seen[arm.ID] {
			return fmt.Errorf("experiment %s has duplicate arm id %q", e.ID, arm.ID)
		}
		seen[arm.ID] = true
		if arm.Weight < 0 || arm.Weight > 1 {
			return fmt.Errorf("experiment %s arm %s weight %v outside [0, 1]", e.ID, arm.ID, arm.Weight)
		}
		if arm.Enabled {
			sum += arm.Weight
		}
	}
	if sum < minWeightSum || sum > maxWeightSum {
		return fmt.Errorf("experiment %s enabled arm weights sum to %v, want [%v, %v]",
			e.ID, sum, minWeightSum, maxWeightSum)
	}
	return nil
}

// enabledArms returns the arms participating in assignment, in declared order.
func (e *Experiment) enabledArms() []Arm {
	arms := make([]Arm, 0, len(e.Arms))
	for _, arm := range e.Arms {
		if arm.Enabled {
			arms = append(arms, arm)
		}
	}
	return arms
}

// MetricRecord is one observation for an experiment arm. Value is numeric or
// categorical; only numeric values participate in summaries.
type MetricRecord struct {
	Name      string         `json:"name"`
	Value     any            `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MetricStats aggregates one numeric metric name within an arm.
type MetricStats struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ArmSummary is the per-arm slice of an experiment summary.
type ArmSummary struct {
	SampleSize int                    `json:"sample_size"`
	Metrics    map[string]MetricStats `json:"metrics"`
}

// Assignment names the experiment and arm chosen for one request.
type Assignment struct {
	ExperimentID string         `json:"experiment_id"`
	ArmID        string         `json:"arm_id"`
	ArmName      string         `json:"arm_name"`
	Config       map[string]any `json:"config,omitempty"`
}
