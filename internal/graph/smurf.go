package graph

import "fmt"

// SmurfType classifies a structuring pattern
type SmurfType string

const (
	FanOut SmurfType = "FAN_OUT"
	FanIn  SmurfType = "FAN_IN"
)

// SmurfFinding is one account whose degree reached the threshold
type SmurfFinding struct {
	Node      string    `json:"node"`
	Type      SmurfType `json:"type"`
	Degree    int       `json:"degree"`
	Reason    string    `json:"reason"`
	Neighbors []string  `json:"neighbors"`
}

// DetectSmurfing flags accounts with out-degree or in-degree at or above threshold.
// An account can be reported for both directions.
func DetectSmurfing(g *Graph, threshold int) []SmurfFinding {
	findings := []SmurfFinding{}
	for _, n := range g.nodes {
		if out := g.OutDegree(n.ID); out >= threshold {
			findings = append(findings, SmurfFinding{
				Node:      n.ID,
				Type:      FanOut,
				Degree:    out,
				Reason:    fmt.Sprintf("High Fan-Out: Sent money to %d different accounts", out),
				Neighbors: g.OutNeighbors(n.ID),
			})
		}
		if in := g.InDegree(n.ID); in >= threshold {
			findings = append(findings, SmurfFinding{
				Node:      n.ID,
				Type:      FanIn,
				Degree:    in,
				Reason:    fmt.Sprintf("High Fan-In: Received money from %d different accounts", in),
				Neighbors: g.InNeighbors(n.ID),
			})
		}
	}
	return findings
}
