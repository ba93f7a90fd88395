// Package builder derives a course topic graph from labelled chunks.
package builder

import (
	"sort"
	"strings"
)

// LabelledChunk is the part of an ingested chunk the graph needs.
type LabelledChunk struct {
	MediaLocator string
	Topic        string
}

type Topic struct {
	Name   string
	Chunks int
}

// Edge links two topics that appear in the same media item. From sorts
// before To.
type Edge struct {
	From   string
	To     string
	Weight int
}

type Graph struct {
	Topics []Topic
	Edges  []Edge
}

// Build counts chunks per topic and links every pair of distinct topics
// taught in the same media item. The edge weight is the number of media
// items they share. Empty and "General" labels carry no meaning and are
// skipped.
func Build(chunks []LabelledChunk) Graph {
	counts := make(map[string]int)
	perMedia := make(map[string]map[string]struct{})

	for _, ch := range chunks {
		topic := strings.TrimSpace(ch.Topic)
		if topic == "" || topic == DefaultTopic {
			continue
		}
		counts[topic]++

		set, ok := perMedia[ch.MediaLocator]
		if !ok {
			set = make(map[string]struct{})
			perMedia[ch.MediaLocator] = set
		}
		set[topic] = struct{}{}
	}

	var g Graph
	for name, n := range counts {
		g.Topics = append(g.Topics, Topic{Name: name, Chunks: n})
	}
	sort.Slice(g.Topics, func(i, j int) bool {
		if g.Topics[i].Chunks != g.Topics[j].Chunks {
			return g.Topics[i].Chunks > g.Topics[j].Chunks
		}
		return g.Topics[i].Name < g.Topics[j].Name
	})

	weights := make(map[[2]string]int)
	for _, set := range perMedia {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				weights[[2]string{names[i], names[j]}]++
			}
		}
	}

	for pair, w := range weights {
		g.Edges = append(g.Edges, Edge{From: pair[0], To: pair[1], Weight: w})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})

	return g
}

// DefaultTopic labels chunks with no recognisable subject.
const DefaultTopic = "General"
