// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package lifecycle tracks the dependency graph of long-lived pipeline
// resources (loggers, instances, devices, swapchains, renderers, decoders,
// overlays, caches).
//
// Every resource owns a Node. A Node is created with the nodes it depends on
// and may only be released once nothing depends on it any more. Releasing a
// node that still has live dependents panics with an *OrderError: a resource
// graph torn down out of order cannot be recovered safely.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDependencyDestroyed is returned when a resource is created against, or
// attached to, a dependency that has already been released.
var ErrDependencyDestroyed = errors.New("lifecycle: dependency already destroyed")

// OrderError describes a release that would leave dangling dependents.
type OrderError struct {
	Resource   string
	Dependents []string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("lifecycle: destroy %s while %s still live",
		e.Resource, strings.Join(e.Dependents, ", "))
}

// Graph is the set of live nodes. The zero value is not usable; use NewGraph.
//
// Graph is safe for concurrent use.
type Graph struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{live: make(map[uint64]*Node)}
}

// Node is one resource in a Graph.
type Node struct {
	g          *Graph
	id         uint64
	kind       string
	deps       []*Node
	dependents map[uint64]*Node
	released   bool
}

// Add registers a new live node of the given kind. Nil dependencies are
// skipped so optional collaborators can be passed through unchanged.
func (g *Graph) Add(kind string, deps ...*Node) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, d := range deps {
		if d == nil {
			continue
		}
		if d.released || d.g != g {
			return nil, fmt.Errorf("%w: %s needs %s", ErrDependencyDestroyed, kind, d.name())
		}
	}

	g.nextID++
	n := &Node{
		g:          g,
		id:         g.nextID,
		kind:       kind,
		dependents: make(map[uint64]*Node),
	}
	for _, d := range deps {
		if d == nil {
			continue
		}
		n.deps = append(n.deps, d)
		d.dependents[n.id] = n
	}
	g.live[n.id] = n
	return n, nil
}

// Live returns the number of nodes that have not been released.
func (g *Graph) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// LiveKinds returns the live node count per kind.
func (g *Graph) LiveKinds() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]int, len(g.live))
	for _, n := range g.live {
		out[n.kind]++
	}
	return out
}

// TeardownOrder returns the live nodes ordered so that every node comes
// before the nodes it depends on. Ties keep reverse creation order.
func (g *Graph) TeardownOrder() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make([]*Node, 0, len(g.live))
	for _, n := range g.live {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id > nodes[j].id })

	remaining := make(map[uint64]int, len(nodes))
	for _, n := range nodes {
		remaining[n.id] = len(n.dependents)
	}

	order := make([]*Node, 0, len(nodes))
	done := make(map[uint64]bool, len(nodes))
	for len(order) < len(nodes) {
		progressed := false
		for _, n := range nodes {
			if done[n.id] || remaining[n.id] > 0 {
				continue
			}
			done[n.id] = true
			order = append(order, n)
			for _, d := range n.deps {
				remaining[d.id]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Cycles cannot be built through Add/Attach; bail out rather than spin.
			break
		}
	}
	return order
}

// Resource is implemented by every tracked pipeline object.
type Resource interface {
	Node() *Node
}

// GraphOf returns the graph r belongs to, or nil for a nil resource.
func GraphOf(r Resource) *Graph {
	if r == nil {
		return nil
	}
	return r.Node().Graph()
}

// Graph returns the graph the node belongs to.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.g
}

// ID returns the node's unique, never reused identifier.
func (n *Node) ID() uint64 {
	if n == nil {
		return 0
	}
	return n.id
}

// Kind returns the resource kind the node was created with.
func (n *Node) Kind() string {
	if n == nil {
		return ""
	}
	return n.kind
}

// Alive reports whether the node exists and has not been released.
func (n *Node) Alive() bool {
	if n == nil {
		return false
	}
	n.g.mu.Lock()
	defer n.g.mu.Unlock()
	return !n.released
}

// Attach adds a dependency edge after creation (a cache attached to a device).
func (n *Node) Attach(dep *Node) error {
	if n == nil || dep == nil {
		return nil
	}
	n.g.mu.Lock()
	defer n.g.mu.Unlock()

	if n.released || dep.released || dep.g != n.g {
		return fmt.Errorf("%w: attach %s to %s", ErrDependencyDestroyed, n.name(), dep.name())
	}
	for _, d := range n.deps {
		if d == dep {
			return nil
		}
	}
	n.deps = append(n.deps, dep)
	dep.dependents[n.id] = n
	return nil
}

// Detach removes a dependency edge added by Attach or Add.
func (n *Node) Detach(dep *Node) {
	if n == nil || dep == nil {
		return
	}
	n.g.mu.Lock()
	defer n.g.mu.Unlock()

	for i, d := range n.deps {
		if d == dep {
			n.deps = append(n.deps[:i], n.deps[i+1:]...)
			delete(dep.dependents, n.id)
			return
		}
	}
}

// Dependents returns the names of live nodes that depend on n.
func (n *Node) Dependents() []string {
	if n == nil {
		return nil
	}
	n.g.mu.Lock()
	defer n.g.mu.Unlock()
	return n.dependentNames()
}

// Release marks the node destroyed and drops its edges. It returns false when
// the node is nil or already released, so callers can make destroy idempotent.
// Releasing a node with live dependents panics with *OrderError.
func (n *Node) Release() bool {
	if n == nil {
		return false
	}
	n.g.mu.Lock()
	defer n.g.mu.Unlock()

	if n.released {
		return false
	}
	if len(n.dependents) > 0 {
		panic(&OrderError{Resource: n.name(), Dependents: n.dependentNames()})
	}
	n.released = true
	for _, d := range n.deps {
		delete(d.dependents, n.id)
	}
	n.deps = nil
	delete(n.g.live, n.id)
	return true
}

func (n *Node) name() string {
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}

// dependentNames must be called with the graph lock held.
func (n *Node) dependentNames() []string {
	names := make([]string, 0, len(n.dependents))
	for _, d := range n.dependents {
		names = append(names, d.name())
	}
	sort.Strings(names)
	return names
}
