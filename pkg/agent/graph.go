package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// GraphAgent builds a labelled knowledge subgraph over the documents: a
// topic node for the query, article nodes, and entity nodes mined from
// titles, joined by relates_to edges weighted by document score.
type GraphAgent struct {
	router *llm.Router
}

// NewGraphAgent builds the /graph agent.
func NewGraphAgent(router *llm.Router) *GraphAgent {
	return &GraphAgent{router: router}
}

func (a *GraphAgent) Run(ctx context.Context, in Input) (*Output, error) {
	call := newCaller(a.router, &in)
	var warnings []string

	full := buildGraph(in.Query, in.Docs)
	sub := full.subgraph(in.Params.HopLimit, in.Params.MaxNodes, in.Params.MaxEdges)
	paths := sub.topPaths(3)

	var answer string
	if in.Budget.ShouldDegrade() {
		warnings = append(warnings, "budget low, using structural summary")
	} else if generated, err := call.call(ctx, answerPrompt(in.Query, in.Lang), capDocs(in.Docs, 10)); err != nil {
		warnings = append(warnings, "graph answer generation failed, using structural summary")
	} else {
		answer = generated
	}
	if answer == "" {
		answer = fmt.Sprintf("The topic connects %d articles and %d entities.",
			sub.count(schema.NodeArticle), sub.count(schema.NodeEntity))
	}
	answer = schema.Truncate(answer, schema.MaxAnswerLen)

	result := &schema.GraphResult{
		Nodes:  sub.nodes,
		Edges:  sub.edges,
		Paths:  paths,
		Answer: answer,
	}

	return &Output{
		Result:     result,
		Insights:   graphInsights(sub, in.Docs),
		Summary:    answer,
		Confidence: clamp01(0.5 + 0.02*float64(len(sub.nodes))),
		Model:      call.model,
		Warnings:   warnings,
	}, nil
}

// graph is the intermediate multigraph before caps are applied.
type graph struct {
	nodes     []schema.GraphNode
	edges     []schema.GraphEdge
	adjacency map[string][]int // node id -> edge indices
	index     map[string]int   // node id -> node index
}

func buildGraph(query string, docs []retrieval.Document) *graph {
	g := &graph{
		adjacency: make(map[string][]int),
		index:     make(map[string]int),
	}
	topicID := "topic:" + strings.ToLower(strings.Join(strings.Fields(query), "-"))
	g.addNode(schema.GraphNode{ID: topicID, Label: query, Type: schema.NodeTopic})

	for i, doc := range docs {
		articleID := doc.ArticleID
		if articleID == "" {
			articleID = fmt.Sprintf("doc-%d", i+1)
		}
		weight := clamp01(doc.Score)
		g.addNode(schema.GraphNode{ID: articleID, Label: doc.Title, Type: schema.NodeArticle})
		g.addEdge(topicID, articleID, weight)

		for _, entity := range titleEntities(doc.Title, 3) {
			entityID := "entity:" + strings.ToLower(entity)
			g.addNode(schema.GraphNode{ID: entityID, Label: entity, Type: schema.NodeEntity})
			g.addEdge(articleID, entityID, weight)
		}
	}
	return g
}

func (g *graph) addNode(n schema.GraphNode) {
	if _, ok := g.index[n.ID]; ok {
		return
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func (g *graph) addEdge(source, target string, weight float64) {
	idx := len(g.edges)
	g.edges = append(g.edges, schema.GraphEdge{
		Source: source,
		Target: target,
		Type:   schema.EdgeRelatesTo,
		Weight: weight,
	})
	g.adjacency[source] = append(g.adjacency[source], idx)
	g.adjacency[target] = append(g.adjacency[target], idx)
}

// subgraph walks breadth-first from the topic node under the hop, node, and
// edge caps. Zero caps mean unlimited.
func (g *graph) subgraph(hopLimit, maxNodes, maxEdges int) *graph {
	if len(g.nodes) == 0 {
		return g
	}
	if hopLimit <= 0 {
		hopLimit = len(g.nodes)
	}

	sub := &graph{
		adjacency: make(map[string][]int),
		index:     make(map[string]int),
	}
	type queued struct {
		id   string
		hops int
	}
	start := g.nodes[0]
	visited := map[string]bool{start.ID: true}
	queue := []queued{{start.ID, 0}}
	sub.addNode(start)

	edgeTaken := make(map[int]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= hopLimit {
			continue
		}
		for _, edgeIdx := range g.adjacency[cur.id] {
			if maxEdges > 0 && len(sub.edges) >= maxEdges {
				return sub
			}
			edge := g.edges[edgeIdx]
			next := edge.Target
			if next == cur.id {
				next = edge.Source
			}
			if !visited[next] {
				if maxNodes > 0 && len(sub.nodes) >= maxNodes {
					continue
				}
				visited[next] = true
				sub.addNode(g.nodes[g.index[next]])
				queue = append(queue, queued{next, cur.hops + 1})
			}
			if visited[next] && !edgeTaken[edgeIdx] {
				edgeTaken[edgeIdx] = true
				sub.addEdge(edge.Source, edge.Target, edge.Weight)
			}
		}
	}
	return sub
}

// topPaths returns the best-scored topic-to-entity paths of the subgraph.
func (g *graph) topPaths(max int) []schema.GraphPath {
	if len(g.nodes) == 0 {
		return nil
	}
	topic := g.nodes[0].ID

	var paths []schema.GraphPath
	for _, first := range g.adjacency[topic] {
		e1 := g.edges[first]
		if e1.Source != topic {
			continue
		}
		article := e1.Target
		extended := false
		for _, second := range g.adjacency[article] {
			e2 := g.edges[second]
			if e2.Source != article || e2.Target == topic {
				continue
			}
			extended = true
			paths = append(paths, schema.GraphPath{
				Nodes: []string{topic, article, e2.Target},
				Hops:  2,
				Score: (e1.Weight + e2.Weight) / 2,
			})
		}
		if !extended {
			paths = append(paths, schema.GraphPath{
				Nodes: []string{topic, article},
				Hops:  1,
				Score: e1.Weight,
			})
		}
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Score > paths[j].Score })
	if len(paths) > max {
		paths = paths[:max]
	}
	return paths
}

func (g *graph) count(t schema.NodeType) int {
	n := 0
	for _, node := range g.nodes {
		if node.Type == t {
			n++
		}
	}
	return n
}

// titleEntities mines capitalized multi-letter words from a title as a cheap
// entity heuristic.
func titleEntities(title string, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for i, word := range strings.Fields(title) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if i == 0 || len(word) < 3 {
			continue
		}
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) >= max {
			break
		}
	}
	return out
}

func graphInsights(g *graph, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	return []schema.Insight{{
		Kind: schema.InsightFact,
		Text: schema.Truncate(fmt.Sprintf("Subgraph covers %d nodes and %d relations around the topic.",
			len(g.nodes), len(g.edges)), schema.MaxInsightTextLen),
		Refs: refs,
	}}
}
