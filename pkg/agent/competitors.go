package agent

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// CompetitorAgent serves /competitors: which publisher domains cover the
// topic, how their coverage overlaps, and how they position against each
// other. Purely deterministic over the document set, no model calls.
type CompetitorAgent struct{}

// NewCompetitorAgent builds the /competitors agent.
func NewCompetitorAgent() *CompetitorAgent {
	return &CompetitorAgent{}
}

func (a *CompetitorAgent) Run(_ context.Context, in Input) (*Output, error) {
	byDomain := docsByDomain(in.Docs)
	domains := rankedDomains(byDomain)

	result := &schema.CompetitorsResult{
		Overlap:     overlapEntries(byDomain, domains),
		Positioning: positioningEntries(domains, byDomain),
		TopDomains:  domains,
	}

	summary := fmt.Sprintf("%d publisher domains cover the topic", len(domains))
	if len(domains) > 0 {
		summary = fmt.Sprintf("%s, led by %s", summary, domains[0])
	}

	return &Output{
		Result:     result,
		Insights:   competitorInsights(result, in.Docs),
		Summary:    summary,
		Confidence: clamp01(0.5 + 0.1*float64(len(domains))),
		Model:      in.Primary,
	}, nil
}

func docsByDomain(docs []retrieval.Document) map[string][]retrieval.Document {
	out := make(map[string][]retrieval.Document)
	for _, doc := range docs {
		u, err := url.Parse(doc.URL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		out[host] = append(out[host], doc)
	}
	return out
}

// rankedDomains orders domains by document count, ties alphabetical.
func rankedDomains(byDomain map[string][]retrieval.Document) []string {
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		if len(byDomain[domains[i]]) != len(byDomain[domains[j]]) {
			return len(byDomain[domains[i]]) > len(byDomain[domains[j]])
		}
		return domains[i] < domains[j]
	})
	return domains
}

func overlapEntries(byDomain map[string][]retrieval.Document, domains []string) []schema.OverlapEntry {
	out := make([]schema.OverlapEntry, 0, len(domains))
	for _, domain := range domains {
		docs := byDomain[domain]
		topics := make([]string, 0, 3)
		seen := make(map[string]bool)
		for _, doc := range docs {
			for _, kw := range topKeywords(doc.Title, 1) {
				if !seen[kw] {
					seen[kw] = true
					topics = append(topics, kw)
				}
			}
		}
		out = append(out, schema.OverlapEntry{
			Domain:       domain,
			SharedTopics: topics,
			Count:        len(docs),
		})
	}
	return out
}

// positioningEntries grades domains by coverage volume: the leader first,
// one fast follower, niche for the rest.
func positioningEntries(domains []string, byDomain map[string][]retrieval.Document) []schema.PositioningEntry {
	out := make([]schema.PositioningEntry, 0, len(domains))
	for i, domain := range domains {
		stance := schema.StanceNiche
		switch i {
		case 0:
			stance = schema.StanceLeader
		case 1:
			stance = schema.StanceFastFollower
		}
		out = append(out, schema.PositioningEntry{
			Domain: domain,
			Stance: stance,
			Notes:  fmt.Sprintf("%d articles in window", len(byDomain[domain])),
		})
	}
	return out
}

func competitorInsights(result *schema.CompetitorsResult, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	text := "No publisher domains identified in the document set."
	if len(result.TopDomains) > 0 {
		text = fmt.Sprintf("%s leads coverage among %d competing domains.",
			result.TopDomains[0], len(result.TopDomains))
	}
	return []schema.Insight{{
		Kind: schema.InsightFact,
		Text: schema.Truncate(text, schema.MaxInsightTextLen),
		Refs: refs,
	}}
}
