package graph

import (
	"time"

	"github.com/enterprise/fraud-engine/internal/models"
)

// NodeRole is the role an account had when it first appeared
type NodeRole string

const (
	RoleSender   NodeRole = "sender"
	RoleReceiver NodeRole = "receiver"
)

const unknownLabel = "Unknown"

// Node is one account
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeRole `json:"type"`
}

// Edge is one transaction between two accounts
type Edge struct {
	Key       string    `json:"key"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Graph is a directed multigraph of accounts. Nodes and edges keep insertion order,
// and parallel edges between the same pair are stored separately.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []Edge
	out   map[string][]int
	in    map[string][]int
}

// New returns an empty graph
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
	}
}

// Build creates a fresh graph from log records; records without a receiver are skipped
func Build(records []*models.TransactionRecord) *Graph {
	g := New()
	for _, rec := range records {
		if rec.SenderAccountID == "" || rec.ReceiverAccountID == "" {
			continue
		}
		g.AddNode(rec.SenderAccountID, rec.SenderUserName, RoleSender)
		g.AddNode(rec.ReceiverAccountID, rec.ReceiverUserName, RoleReceiver)
		g.AddEdge(Edge{
			Key:       rec.TransactionID,
			Source:    rec.SenderAccountID,
			Target:    rec.ReceiverAccountID,
			Amount:    rec.AmountValue,
			Timestamp: rec.TransactionTimestamp,
		})
	}
	return g
}

// AddNode adds an account unless it is already present. It reports whether the node was new.
func (g *Graph) AddNode(id, label string, role NodeRole) bool {
	if _, ok := g.index[id]; ok {
		return false
	}
	if label == "" {
		label = unknownLabel
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, Node{ID: id, Label: label, Type: role})
	return true
}

// AddEdge appends an edge, adding unseen endpoints with an unknown label
func (g *Graph) AddEdge(e Edge) {
	g.AddNode(e.Source, "", RoleSender)
	g.AddNode(e.Target, "", RoleReceiver)

	i := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.Source] = append(g.out[e.Source], i)
	g.in[e.Target] = append(g.in[e.Target], i)
}

// HasNode reports whether id is in the graph
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Order is the number of nodes
func (g *Graph) Order() int { return len(g.nodes) }

// Size is the number of edges
func (g *Graph) Size() int { return len(g.edges) }

// Nodes returns the nodes in insertion order
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in insertion order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// OutDegree counts outgoing edges, parallel edges included
func (g *Graph) OutDegree(id string) int { return len(g.out[id]) }

// InDegree counts incoming edges, parallel edges included
func (g *Graph) InDegree(id string) int { return len(g.in[id]) }

// OutNeighbors lists distinct targets in the order their first edge was added
func (g *Graph) OutNeighbors(id string) []string {
	return g.distinct(g.out[id], func(e Edge) string { return e.Target })
}

// InNeighbors lists distinct sources in the order their first edge was added
func (g *Graph) InNeighbors(id string) []string {
	return g.distinct(g.in[id], func(e Edge) string { return e.Source })
}

func (g *Graph) distinct(edgeIdx []int, end func(Edge) string) []string {
	seen := make(map[string]struct{}, len(edgeIdx))
	out := make([]string, 0, len(edgeIdx))
	for _, i := range edgeIdx {
		id := end(g.edges[i])
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
