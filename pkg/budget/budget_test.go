package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newslens/newslens/pkg/schema"
)

func testCaps() Caps {
	return Caps{MaxTokens: 1000, MaxCents: 50, MaxSeconds: 30}
}

func TestCanAffordAllThreeDimensions(t *testing.T) {
	m := NewManager(testCaps())

	assert.True(t, m.CanAfford(1000, 50, 30), "exactly at cap is affordable")
	assert.False(t, m.CanAfford(1001, 0, 0))
	assert.False(t, m.CanAfford(0, 50.1, 0))
	assert.False(t, m.CanAfford(0, 0, 30.5))

	m.RecordUsage(600, 20, 10)
	assert.True(t, m.CanAfford(400, 30, 20))
	assert.False(t, m.CanAfford(401, 0, 0))
}

func TestRecordUsageSumsIncrements(t *testing.T) {
	m := NewManager(testCaps())
	m.RecordUsage(100, 1.5, 2)
	m.RecordUsage(250, 0.5, 1)
	m.RecordUsage(-10, -1, -1) // ignored

	tokens, cents, seconds := m.Spent()
	assert.Equal(t, 350, tokens)
	assert.InDelta(t, 2.0, cents, 1e-9)
	assert.InDelta(t, 3.0, seconds, 1e-9)
}

func TestRecordUsageConcurrent(t *testing.T) {
	m := NewManager(Caps{MaxTokens: 1 << 20, MaxCents: 1e6, MaxSeconds: 1e6})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordUsage(1, 0.01, 0.001)
			}
		}()
	}
	wg.Wait()
	tokens, _, _ := m.Spent()
	assert.Equal(t, 5000, tokens)
}

func TestRemainingPct(t *testing.T) {
	m := NewManager(testCaps())
	m.RecordUsage(500, 25, 3)

	r := m.RemainingPct()
	assert.InDelta(t, 50, r.TokensPct, 1e-9)
	assert.InDelta(t, 50, r.CostPct, 1e-9)
	assert.InDelta(t, 90, r.TimePct, 1e-9)
	assert.InDelta(t, 50, r.Min(), 1e-9)
}

func TestRemainingPctZeroCap(t *testing.T) {
	m := NewManager(Caps{})
	r := m.RemainingPct()
	assert.Zero(t, r.TokensPct)
	assert.Zero(t, r.Min())
}

func TestShouldDegrade(t *testing.T) {
	m := NewManager(testCaps())
	assert.False(t, m.ShouldDegrade())

	m.RecordUsage(701, 0, 0) // tokens at 29.9% remaining
	assert.True(t, m.ShouldDegrade())
}

func TestCheckExceeded(t *testing.T) {
	m := NewManager(testCaps())
	m.RecordUsage(1000, 50, 30)
	require.NoError(t, m.CheckExceeded(), "exactly at cap is not exceeded")

	m.RecordUsage(1, 0, 0)
	err := m.CheckExceeded()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExceeded)
}

func TestResetRestoresFreshState(t *testing.T) {
	m := NewManager(testCaps())
	m.RecordUsage(999, 49, 29)
	m.Warn("something degraded")
	m.Reset()

	tokens, cents, seconds := m.Spent()
	assert.Zero(t, tokens)
	assert.Zero(t, cents)
	assert.Zero(t, seconds)
	assert.Empty(t, m.Warnings())
	assert.True(t, m.CanAfford(1000, 50, 30))
}

// drainTo sets spend so the minimum remaining percentage equals pctRemaining.
func drainTo(m *Manager, pctRemaining float64) {
	caps := m.Caps()
	m.Reset()
	m.RecordUsage(int(float64(caps.MaxTokens)*(100-pctRemaining)/100), 0, 0)
}

func TestDegradeIterativeQA(t *testing.T) {
	m := NewManager(testCaps())
	base := Params{Depth: 4, KFinal: 10, SelfCheck: true, Rerank: true}

	drainTo(m, 60)
	p := m.Degrade(schema.CommandAsk, base)
	assert.Equal(t, base, p, "no degradation above 50%")
	assert.Empty(t, m.Warnings())

	drainTo(m, 40)
	p = m.Degrade(schema.CommandAsk, base)
	assert.Equal(t, 2, p.Depth)
	assert.False(t, p.SelfCheck)
	assert.True(t, p.Rerank)
	assert.Len(t, m.Warnings(), 1)

	drainTo(m, 25)
	p = m.Degrade(schema.CommandAsk, base)
	assert.Equal(t, 1, p.Depth)
	assert.False(t, p.SelfCheck)
	assert.False(t, p.Rerank)
}

func TestDegradeGraph(t *testing.T) {
	m := NewManager(testCaps())
	base := Params{HopLimit: 3, MaxNodes: 500, MaxEdges: 1500, KFinal: 10, Rerank: true}

	drainTo(m, 45)
	p := m.Degrade(schema.CommandGraph, base)
	assert.Equal(t, 2, p.HopLimit)
	assert.Equal(t, 120, p.MaxNodes)
	assert.Equal(t, 360, p.MaxEdges)

	drainTo(m, 22)
	p = m.Degrade(schema.CommandGraph, base)
	assert.Equal(t, 1, p.HopLimit)
	assert.Equal(t, 60, p.MaxNodes)
	assert.Equal(t, 180, p.MaxEdges)
	assert.False(t, p.Rerank)
}

func TestDegradeEvents(t *testing.T) {
	m := NewManager(testCaps())
	base := Params{KFinal: 10, Alternatives: true, Rerank: true}

	drainTo(m, 45)
	p := m.Degrade(schema.CommandEvents, base)
	assert.False(t, p.Alternatives)
	assert.Equal(t, 10, p.KFinal)

	drainTo(m, 25)
	p = m.Degrade(schema.CommandEvents, base)
	assert.Equal(t, 5, p.KFinal)
	assert.False(t, p.Rerank)
}

func TestDegradeMemoryForcesRecall(t *testing.T) {
	m := NewManager(testCaps())
	drainTo(m, 25)
	p := m.Degrade(schema.CommandMemory, Params{MemoryOperation: schema.MemoryStore})
	assert.Equal(t, schema.MemoryRecall, p.MemoryOperation)
}

func TestDegradeReconsultAfterSpend(t *testing.T) {
	m := NewManager(testCaps())
	base := Params{Depth: 4, KFinal: 10, SelfCheck: true, Rerank: true}

	// Fresh ledger: the table is silent.
	p := m.Degrade(schema.CommandAsk, base)
	assert.Equal(t, base, p)
	assert.False(t, m.ShouldDegrade())
	assert.Empty(t, m.Warnings())

	// After spend lands, re-consulting the same ledger fires the table.
	m.RecordUsage(850, 0, 0)
	p = m.Degrade(schema.CommandAsk, p)
	assert.Equal(t, 1, p.Depth)
	assert.False(t, p.SelfCheck)
	assert.False(t, p.Rerank)
	assert.Equal(t, 3, p.KFinal)
	assert.True(t, m.ShouldDegrade())
	require.NotEmpty(t, m.Warnings())

	// Same budget level again: values stable, no duplicate warnings.
	n := len(m.Warnings())
	p2 := m.Degrade(schema.CommandAsk, p)
	assert.Equal(t, p, p2)
	assert.Len(t, m.Warnings(), n)
}

func TestDegradeGlobalRuleAfterCommandRules(t *testing.T) {
	m := NewManager(testCaps())
	base := Params{KFinal: 10, Rerank: true}

	// Below 20%: synthesis rule caps at 5 first, then global caps at 3.
	drainTo(m, 15)
	p := m.Degrade(schema.CommandSynthesize, base)
	assert.Equal(t, 3, p.KFinal)

	// Command with no specific rules still gets the global cap.
	drainTo(m, 15)
	p = m.Degrade(schema.CommandPredict, base)
	assert.Equal(t, 3, p.KFinal)

	// Above 20%, global rule stays silent for rule-less commands.
	drainTo(m, 25)
	p = m.Degrade(schema.CommandPredict, base)
	assert.Equal(t, 10, p.KFinal)
}
