// Package budget tracks per-request resource spend (tokens, cost, wall-clock
// time) against caps and derives parameter degradation when the remaining
// budget runs low. One Manager is created per request and owned by it; the
// mutex only covers the window where parallel agents record usage
// concurrently.
package budget

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExceeded signals that a counter strictly exceeded its cap.
var ErrExceeded = errors.New("budget exceeded")

// Caps is the three-dimensional resource envelope for a single request.
type Caps struct {
	MaxTokens  int
	MaxCents   float64
	MaxSeconds float64
}

// Remaining is the percentage of each budget dimension still available.
type Remaining struct {
	TokensPct float64
	CostPct   float64
	TimePct   float64
}

// Min returns the smallest remaining percentage across the three dimensions.
func (r Remaining) Min() float64 {
	m := r.TokensPct
	if r.CostPct < m {
		m = r.CostPct
	}
	if r.TimePct < m {
		m = r.TimePct
	}
	return m
}

// Manager is the per-request budget ledger.
type Manager struct {
	mu           sync.Mutex
	caps         Caps
	spentTokens  int
	spentCents   float64
	spentSeconds float64
	warnings     []string
	degradeTier  float64
}

// NewManager creates a ledger with zero spend against the given caps.
func NewManager(caps Caps) *Manager {
	return &Manager{caps: caps, degradeTier: 100}
}

// Caps returns the configured caps.
func (m *Manager) Caps() Caps { return m.caps }

// CanAfford reports whether all three estimated increments fit under the caps.
func (m *Manager) CanAfford(estTokens int, estCents, estSeconds float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spentTokens+estTokens <= m.caps.MaxTokens &&
		m.spentCents+estCents <= m.caps.MaxCents &&
		m.spentSeconds+estSeconds <= m.caps.MaxSeconds
}

// RecordUsage adds actual spend to the ledger. Increments are monotonic;
// negative values are ignored.
func (m *Manager) RecordUsage(tokens int, cents, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tokens > 0 {
		m.spentTokens += tokens
	}
	if cents > 0 {
		m.spentCents += cents
	}
	if seconds > 0 {
		m.spentSeconds += seconds
	}
}

// Spent returns the current counters.
func (m *Manager) Spent() (tokens int, cents, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spentTokens, m.spentCents, m.spentSeconds
}

// RemainingPct returns (cap − spent) / cap · 100 per dimension. A zero cap
// counts as fully spent.
func (m *Manager) RemainingPct() Remaining {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Remaining{
		TokensPct: pct(float64(m.caps.MaxTokens)-float64(m.spentTokens), float64(m.caps.MaxTokens)),
		CostPct:   pct(m.caps.MaxCents-m.spentCents, m.caps.MaxCents),
		TimePct:   pct(m.caps.MaxSeconds-m.spentSeconds, m.caps.MaxSeconds),
	}
}

func pct(remaining, cap float64) float64 {
	if cap <= 0 {
		return 0
	}
	if remaining < 0 {
		return 0
	}
	return remaining / cap * 100
}

// ShouldDegrade reports whether any dimension dropped below 30% remaining.
func (m *Manager) ShouldDegrade() bool {
	return m.RemainingPct().Min() < 30
}

// CheckExceeded fails when any counter strictly exceeds its cap.
func (m *Manager) CheckExceeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.spentTokens > m.caps.MaxTokens:
		return fmt.Errorf("%w: tokens %d > %d", ErrExceeded, m.spentTokens, m.caps.MaxTokens)
	case m.spentCents > m.caps.MaxCents:
		return fmt.Errorf("%w: cost %.2f¢ > %.2f¢", ErrExceeded, m.spentCents, m.caps.MaxCents)
	case m.spentSeconds > m.caps.MaxSeconds:
		return fmt.Errorf("%w: elapsed %.1fs > %.1fs", ErrExceeded, m.spentSeconds, m.caps.MaxSeconds)
	}
	return nil
}

// Warn appends a degradation warning to the ledger.
func (m *Manager) Warn(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}

// Warnings returns a copy of the accumulated warnings, in append order.
func (m *Manager) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// Reset zeroes counters and warnings, restoring the initial state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spentTokens = 0
	m.spentCents = 0
	m.spentSeconds = 0
	m.warnings = nil
	m.degradeTier = 100
}
