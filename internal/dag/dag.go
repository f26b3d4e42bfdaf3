// Package dag models the dependency graph between snapshots. Edges come
// from ref() expressions: a snapshot that selects from another's history
// table must run after it.
package dag

import (
	"fmt"
	"sort"
)

// Node is one snapshot in the graph.
type Node struct {
	// ID is the snapshot name.
	ID string
	// Data holds the node's payload, typically a *loader.Definition.
	Data any
}

// Graph is a directed acyclic graph of snapshot dependencies.
type Graph struct {
	nodes    map[string]*Node
	children map[string][]string // parent -> dependents
	parents  map[string][]string // child -> dependencies
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	g := &Graph{}
	g.Clear()
	return g
}

// Clear removes all nodes and edges.
func (g *Graph) Clear() {
	g.nodes = make(map[string]*Node)
	g.children = make(map[string][]string)
	g.parents = make(map[string][]string)
}

// AddNode adds a node, or updates its payload if it already exists.
func (g *Graph) AddNode(id string, data any) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.children[id] = nil
	g.parents[id] = nil
}

// AddEdge records that child depends on parent. Both nodes must exist.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, ok := g.nodes[parentID]; !ok {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.children[parentID], childID) {
		g.children[parentID] = append(g.children[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// GetParents returns the dependencies of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the dependents of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.children[id]
}

// GetAllNodes returns every node, sorted by ID for deterministic output.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, c := range g.children {
		count += len(c)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle, along with the
// cycle path for error reporting.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, child := range g.children[id] {
			if !visited[child] {
				cameFrom[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cyclePath = []string{child}
				for cur := id; cur != child; cur = cameFrom[cur] {
					cyclePath = append([]string{cur}, cyclePath...)
				}
				cyclePath = append([]string{child}, cyclePath...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with every dependency before its
// dependents. Fails when the graph has a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	visited := make(map[string]bool)
	var result []*Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parent := range g.parents[id] {
			visit(parent)
		}
		result = append(result, g.nodes[id])
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}
	return result, nil
}

// GetExecutionLevels groups nodes by depth: level 0 has no dependencies,
// and every node's dependencies live in strictly earlier levels. Nodes
// within a level can run in parallel.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	depth := make(map[string]int)

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, parent := range g.parents[id] {
			if pd := levelOf(parent) + 1; pd > d {
				d = pd
			}
		}
		depth[id] = d
		return d
	}

	maxDepth := 0
	for id := range g.nodes {
		if d := levelOf(id); d > maxDepth {
			maxDepth = d
		}
	}
	if len(g.nodes) == 0 {
		return nil, nil
	}

	levels := make([][]string, maxDepth+1)
	for id, d := range depth {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// GetAffectedNodes returns the changed nodes plus everything downstream of
// them, sorted.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, child := range g.children[id] {
			mark(child)
		}
	}

	for _, id := range changedIDs {
		if _, ok := g.nodes[id]; ok {
			mark(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Subgraph returns a new graph restricted to the given nodes and the edges
// between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	sub := NewGraph()
	keep := make(map[string]bool, len(nodeIDs))

	for _, id := range nodeIDs {
		keep[id] = true
		if n, ok := g.nodes[id]; ok {
			sub.AddNode(id, n.Data)
		}
	}
	for _, id := range nodeIDs {
		for _, child := range g.children[id] {
			if keep[child] {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
