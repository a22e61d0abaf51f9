package core

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
)

// minMentionSources is how many distinct sources must mention an entity or
// topic before it earns its own node.
const minMentionSources = 2

var sourceTypeColors = map[SourceType]string{
	SourceTypeAcademic:   "#6f42c1",
	SourceTypeGovernment: "#2ca02c",
	SourceTypeNews:       "#1f77b4",
	SourceTypeCommercial: "#ff7f0e",
	SourceTypeBlog:       "#e377c2",
	SourceTypeSocial:     "#17becf",
	SourceTypeUnknown:    "#7f7f7f",
}

const (
	conceptColor = "#f4a261"
	entityColor  = "#e76f51"
	factColor    = "#a8dadc"
)

// GraphBuilder turns sources, their extractions and detected contradictions
// into a typed node/edge graph with connected-component clusters. Output
// order is a function of input order only.
type GraphBuilder struct {
	cfg Config
}

// NewGraphBuilder creates a GraphBuilder.
func NewGraphBuilder(cfg Config) *GraphBuilder {
	return &GraphBuilder{cfg: cfg}
}

type graphState struct {
	nodes    []GraphNode
	nodeIdx  map[string]int
	edges    []GraphEdge
	edgeSeen map[string]struct{}
}

func (g *graphState) addNode(node GraphNode) {
	if _, ok := g.nodeIdx[node.ID]; ok {
		return
	}
	g.nodeIdx[node.ID] = len(g.nodes)
	g.nodes = append(g.nodes, node)
}

func (g *graphState) addEdge(src, dst string, kind EdgeType, weight float64, label string) {
	if _, ok := g.nodeIdx[src]; !ok {
		return
	}
	if _, ok := g.nodeIdx[dst]; !ok {
		return
	}
	key := src + "\x00" + dst + "\x00" + string(kind)
	if _, dup := g.edgeSeen[key]; dup {
		return
	}
	g.edgeSeen[key] = struct{}{}
	g.edges = append(g.edges, GraphEdge{
		ID:     fmt.Sprintf("edge_%d", len(g.edges)+1),
		Source: src,
		Target: dst,
		Type:   kind,
		Weight: weight,
		Label:  label,
	})
}

// Build assembles the knowledge graph. Contradiction records come from the
// synthesis stage; every pair of sources implicated in the same record is
// linked with a contradicts edge.
func (b *GraphBuilder) Build(sources []Source, extractions []Extraction, contradictions []Controversy) *KnowledgeGraph {
	g := &graphState{
		nodeIdx:  make(map[string]int),
		edgeSeen: make(map[string]struct{}),
	}

	for _, src := range sources {
		g.addNode(GraphNode{
			ID:    sourceNodeID(src.ID),
			Type:  NodeSource,
			Label: sourceLabel(src),
			Size:  10 + src.CredibilityScore*20,
			Color: sourceTypeColors[src.SourceType],
			Data: map[string]string{
				"url":         src.URL,
				"source_type": string(src.SourceType),
				"credibility": strconv.FormatFloat(src.CredibilityScore, 'f', 2, 64),
			},
		})
	}

	topics := mentionCounts(extractions, func(ex Extraction) []string { return ex.MainTopics })
	entities := mentionCounts(extractions, func(ex Extraction) []string { return ex.NamedEntities })

	for _, topic := range orderedMentions(extractions, func(ex Extraction) []string { return ex.MainTopics }) {
		if topics[topic] < minMentionSources {
			continue
		}
		g.addNode(GraphNode{
			ID:    "concept_" + slugify(topic),
			Type:  NodeConcept,
			Label: topic,
			Size:  8 + float64(topics[topic])*2,
			Color: conceptColor,
			Data:  map[string]string{"mentions": strconv.Itoa(topics[topic])},
		})
	}
	for _, entity := range orderedMentions(extractions, func(ex Extraction) []string { return ex.NamedEntities }) {
		if entities[entity] < minMentionSources {
			continue
		}
		g.addNode(GraphNode{
			ID:    "entity_" + slugify(entity),
			Type:  NodeEntity,
			Label: entity,
			Size:  8 + float64(entities[entity])*2,
			Color: entityColor,
			Data:  map[string]string{"mentions": strconv.Itoa(entities[entity])},
		})
	}

	for _, src := range sources {
		for i, fact := range src.KeyFacts {
			factID := fmt.Sprintf("fact_%s_%d", src.ID, i)
			g.addNode(GraphNode{
				ID:    factID,
				Type:  NodeFact,
				Label: helpers.Snippet(fact.Claim, 60),
				Size:  5 + fact.Confidence*10,
				Color: factColor,
				Data: map[string]string{
					"category":   string(fact.Category),
					"confidence": strconv.FormatFloat(fact.Confidence, 'f', 2, 64),
				},
			})
			g.addEdge(sourceNodeID(src.ID), factID, EdgeContains, 1.0, "")
			for _, entity := range fact.Entities {
				g.addEdge(factID, "entity_"+slugify(entity), EdgeRelatesTo, 0.8, "")
			}
		}
	}

	for _, ex := range extractions {
		for _, topic := range ex.MainTopics {
			g.addEdge(sourceNodeID(ex.SourceID), "concept_"+slugify(topic), EdgeDiscusses, 0.6, "")
		}
	}

	for _, record := range contradictions {
		for i := 0; i < len(record.Positions); i++ {
			for j := i + 1; j < len(record.Positions); j++ {
				g.addEdge(
					sourceNodeID(record.Positions[i].SourceID),
					sourceNodeID(record.Positions[j].SourceID),
					EdgeContradicts, 1.0, record.Topic,
				)
			}
		}
	}

	return &KnowledgeGraph{
		Nodes:    g.nodes,
		Edges:    g.edges,
		Clusters: b.clusters(g),
	}
}

// clusters finds connected components over the undirected adjacency and
// drops singletons. A cluster is labeled after its first concept node, else
// its first source node, in node insertion order.
func (b *GraphBuilder) clusters(g *graphState) []Cluster {
	adjacency := make(map[string][]string, len(g.nodes))
	for _, edge := range g.edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		adjacency[edge.Target] = append(adjacency[edge.Target], edge.Source)
	}

	visited := make(map[string]struct{}, len(g.nodes))
	clusters := make([]Cluster, 0)

	for _, root := range g.nodes {
		if _, done := visited[root.ID]; done {
			continue
		}

		var component []string
		stack := []string{root.ID}
		visited[root.ID] = struct{}{}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, id)
			for _, next := range adjacency[id] {
				if _, done := visited[next]; done {
					continue
				}
				visited[next] = struct{}{}
				stack = append(stack, next)
			}
		}

		if len(component) < 2 {
			continue
		}
		sort.Slice(component, func(i, j int) bool {
			return g.nodeIdx[component[i]] < g.nodeIdx[component[j]]
		})
		clusters = append(clusters, Cluster{
			ID:      fmt.Sprintf("cluster_%d", len(clusters)+1),
			Label:   clusterLabel(component, g),
			NodeIDs: component,
		})
	}
	return clusters
}

func clusterLabel(component []string, g *graphState) string {
	for _, id := range component {
		if node := g.nodes[g.nodeIdx[id]]; node.Type == NodeConcept {
			return node.Label
		}
	}
	for _, id := range component {
		if node := g.nodes[g.nodeIdx[id]]; node.Type == NodeSource {
			return node.Label
		}
	}
	return "Cluster"
}

func sourceNodeID(id string) string {
	return "source_" + id
}

func sourceLabel(src Source) string {
	switch {
	case src.Title != "":
		return src.Title
	case src.URL != "":
		return src.URL
	default:
		return src.ID
	}
}

// mentionCounts tallies how many distinct sources mention each string.
func mentionCounts(extractions []Extraction, pick func(Extraction) []string) map[string]int {
	counts := make(map[string]int)
	for _, ex := range extractions {
		seen := make(map[string]struct{})
		for _, item := range pick(ex) {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			counts[item]++
		}
	}
	return counts
}

// orderedMentions returns every distinct mentioned string in first-seen
// order across extractions.
func orderedMentions(extractions []Extraction, pick func(Extraction) []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, ex := range extractions {
		for _, item := range pick(ex) {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
