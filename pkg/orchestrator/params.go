package orchestrator

import (
	"github.com/newslens/newslens/pkg/budget"
	"github.com/newslens/newslens/pkg/schema"
)

// Default graph caps before degradation.
const (
	defaultDepth    = 2
	defaultHopLimit = 3
	defaultMaxNodes = 200
	defaultMaxEdges = 600
)

// modelSettings is the per-request model selection after experiment overlay.
type modelSettings struct {
	primary     string
	fallbacks   []string
	temperature float64
}

// baseConfig is the string-keyed view of the request parameters that
// experiment arms override. Keys mirror the arm-config YAML vocabulary.
func (o *Orchestrator) baseConfig(req Request) map[string]any {
	depth := req.Depth
	if depth < 1 {
		depth = defaultDepth
	}
	return map[string]any{
		"depth":            depth,
		"k_final":          o.cfg.Retrieval.KFinal,
		"hop_limit":        defaultHopLimit,
		"max_nodes":        defaultMaxNodes,
		"max_edges":        defaultMaxEdges,
		"self_check":       true,
		"rerank":           o.cfg.Retrieval.EnableRerank,
		"alternatives":     true,
		"memory_operation": string(req.MemoryOperation),
		"primary_model":    o.cfg.Models.Primary,
		"fallback_models":  o.cfg.Models.Fallbacks,
		"temperature":      o.cfg.Models.Temperature,
	}
}

// resolveParams converts the merged config map back into typed parameters.
// Values an arm did not override keep their base entries, so every key is
// present; coercion still defends against YAML's int/float looseness.
func resolveParams(merged map[string]any) (budget.Params, modelSettings) {
	p := budget.Params{
		Depth:           intFrom(merged, "depth", defaultDepth),
		KFinal:          intFrom(merged, "k_final", 10),
		HopLimit:        intFrom(merged, "hop_limit", defaultHopLimit),
		MaxNodes:        intFrom(merged, "max_nodes", defaultMaxNodes),
		MaxEdges:        intFrom(merged, "max_edges", defaultMaxEdges),
		SelfCheck:       boolFrom(merged, "self_check", true),
		Rerank:          boolFrom(merged, "rerank", true),
		Alternatives:    boolFrom(merged, "alternatives", true),
		MemoryOperation: schema.MemoryOperation(stringFrom(merged, "memory_operation", "")),
	}
	m := modelSettings{
		primary:     stringFrom(merged, "primary_model", ""),
		fallbacks:   stringsFrom(merged, "fallback_models"),
		temperature: floatFrom(merged, "temperature", 0),
	}
	return p, m
}

func intFrom(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func floatFrom(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return def
	}
}

func boolFrom(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func stringFrom(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func stringsFrom(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
