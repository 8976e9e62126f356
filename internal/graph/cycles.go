package graph

// DetectCycles walks the graph depth first from every unvisited node and returns
// each loop found as the account path closed back onto its first node.
// A loop reachable from several roots may be reported more than once.
func DetectCycles(g *Graph) [][]string {
	d := &cycleSearch{
		g:       g,
		visited: make(map[string]bool, g.Order()),
		onStack: make(map[string]bool),
		cycles:  [][]string{},
	}
	for _, n := range g.nodes {
		if !d.visited[n.ID] {
			d.visit(n.ID)
		}
	}
	return d.cycles
}

type cycleSearch struct {
	g       *Graph
	visited map[string]bool
	onStack map[string]bool
	path    []string
	cycles  [][]string
}

func (d *cycleSearch) visit(id string) {
	if d.onStack[id] {
		for i, p := range d.path {
			if p == id {
				cycle := make([]string, 0, len(d.path)-i+1)
				cycle = append(cycle, d.path[i:]...)
				d.cycles = append(d.cycles, append(cycle, id))
				break
			}
		}
		return
	}
	if d.visited[id] {
		return
	}

	d.visited[id] = true
	d.onStack[id] = true
	d.path = append(d.path, id)

	for _, next := range d.g.OutNeighbors(id) {
		d.visit(next)
	}

	delete(d.onStack, id)
	d.path = d.path[:len(d.path)-1]
}
