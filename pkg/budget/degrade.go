package budget

import (
	"fmt"

	"github.com/newslens/newslens/pkg/schema"
)

// Params are the command parameters the degradation table mutates. Callers
// populate only the fields their command uses.
type Params struct {
	Depth           int
	KFinal          int
	HopLimit        int
	MaxNodes        int
	MaxEdges        int
	SelfCheck       bool
	Rerank          bool
	Alternatives    bool
	MemoryOperation schema.MemoryOperation
}

// Degrade applies the degradation table for the command at the current
// remaining-budget level and returns the adjusted parameters. Command-specific
// rules fire first (all thresholds that apply, in order), then the global
// <20% rule. Each change appends a warning to the ledger.
//
// Degrade is meant to be re-consulted as spend accumulates: agents call it
// again mid-run, and each threshold fires at most once per ledger, so
// repeated calls at the same budget level are no-ops with no duplicate
// warnings.
func (m *Manager) Degrade(command schema.Command, p Params) Params {
	minPct := m.RemainingPct().Min()

	switch command {
	case schema.CommandAsk:
		if m.crossed(50, minPct) {
			if p.Depth > 2 {
				p.Depth = 2
			}
			p.SelfCheck = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: capped depth at %d and disabled self-check", minPct, p.Depth))
		}
		if m.crossed(30, minPct) {
			p.Depth = 1
			p.SelfCheck = false
			p.Rerank = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: forced single iteration without rerank", minPct))
		}
	case schema.CommandGraph:
		if m.crossed(50, minPct) {
			p.HopLimit = 2
			p.MaxNodes = 120
			p.MaxEdges = 360
			m.Warn(fmt.Sprintf("budget at %.0f%%: shrunk graph to 2 hops / 120 nodes / 360 edges", minPct))
		}
		if m.crossed(30, minPct) {
			p.HopLimit = 1
			p.MaxNodes = 60
			p.MaxEdges = 180
			p.Rerank = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: shrunk graph to 1 hop / 60 nodes / 180 edges without rerank", minPct))
		}
	case schema.CommandEvents:
		if m.crossed(50, minPct) {
			p.Alternatives = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: disabled alternative interpretations", minPct))
		}
		if m.crossed(30, minPct) {
			if p.KFinal > 5 {
				p.KFinal = 5
			}
			p.Alternatives = false
			p.Rerank = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: capped retrieval at %d docs without rerank", minPct, p.KFinal))
		}
	case schema.CommandMemory:
		if m.crossed(30, minPct) {
			p.MemoryOperation = schema.MemoryRecall
			m.Warn(fmt.Sprintf("budget at %.0f%%: forced memory operation to recall", minPct))
		}
	case schema.CommandSynthesize:
		if m.crossed(30, minPct) {
			if p.KFinal > 5 {
				p.KFinal = 5
			}
			p.Rerank = false
			m.Warn(fmt.Sprintf("budget at %.0f%%: capped synthesis inputs at %d docs without rerank", minPct, p.KFinal))
		}
	}

	// Global rule, evaluated after command-specific rules. min(3, k_final) is
	// idempotent at the floor, so double reduction cannot under-run it.
	if m.crossed(20, minPct) && p.KFinal > 3 {
		p.KFinal = 3
		m.Warn(fmt.Sprintf("budget at %.0f%%: globally capped retrieval at 3 docs", minPct))
	}

	return p
}

// crossed reports whether the remaining budget newly dropped below threshold
// since the table last fired for it, and records the crossing.
func (m *Manager) crossed(threshold, minPct float64) bool {
	if minPct >= threshold {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.degradeTier <= threshold {
		return false
	}
	m.degradeTier = threshold
	return true
}
