package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newslens/newslens/pkg/experiment"
)

// SaveExperiment upserts an experiment definition.
func (c *Client) SaveExperiment(ctx context.Context, e *experiment.Experiment) error {
	definition, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling experiment %s: %w", e.ID, err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO experiments (id, status, definition, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status, definition = EXCLUDED.definition, updated_at = now()`,
		e.ID, string(e.Status), definition)
	if err != nil {
		return fmt.Errorf("saving experiment %s: %w", e.ID, err)
	}
	return nil
}

// LoadExperiments returns every persisted experiment, for seeding the
// in-memory router at startup.
func (c *Client) LoadExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT definition FROM experiments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading experiments: %w", err)
	}
	defer rows.Close()

	var out []*experiment.Experiment
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning experiment row: %w", err)
		}
		var e experiment.Experiment
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decoding experiment definition: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// AppendMetric persists one metric observation for an experiment arm.
func (c *Client) AppendMetric(ctx context.Context, experimentID, armID string, rec experiment.MetricRecord) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("marshaling metric value: %w", err)
	}
	var metadata []byte
	if rec.Metadata != nil {
		if metadata, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("marshaling metric metadata: %w", err)
		}
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO metric_records (experiment_id, arm_id, name, value, metadata, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		experimentID, armID, rec.Name, value, metadata, ts)
	if err != nil {
		return fmt.Errorf("appending metric for %s/%s: %w", experimentID, armID, err)
	}
	return nil
}

// MetricsForArm returns the time-ordered metric records of one arm.
func (c *Client) MetricsForArm(ctx context.Context, experimentID, armID string) ([]experiment.MetricRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, value, metadata, recorded_at
		 FROM metric_records
		 WHERE experiment_id = $1 AND arm_id = $2
		 ORDER BY recorded_at, id`,
		experimentID, armID)
	if err != nil {
		return nil, fmt.Errorf("loading metrics for %s/%s: %w", experimentID, armID, err)
	}
	defer rows.Close()

	var out []experiment.MetricRecord
	for rows.Next() {
		var (
			rec      experiment.MetricRecord
			rawValue []byte
			rawMeta  []byte
		)
		if err := rows.Scan(&rec.Name, &rawValue, &rawMeta, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		if err := json.Unmarshal(rawValue, &rec.Value); err != nil {
			return nil, fmt.Errorf("decoding metric value: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metric metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
