package graph

// adjacency maps a node ID to the IDs reachable in one step. An edge exists
// for every child listed on a node and for every parent listed on a node
// (parent -> node), so an edge declared on either side is honored.
type adjacency map[string][]string

func (a adjacency) add(n Node) {
	a[n.ID] = append(a[n.ID], n.Children...)
	for _, p := range n.Parents {
		a[p] = append(a[p], n.ID)
	}
}

// checkInsert reports whether adding n to an acyclic graph keeps it acyclic.
// The new edges are p -> n for each parent and n -> c for each child, so a
// cycle appears exactly when some child can already reach n or one of its
// parents.
func (a adjacency) checkInsert(n Node) error {
	targets := make(map[string]struct{}, len(n.Parents)+1)
	targets[n.ID] = struct{}{}
	for _, p := range n.Parents {
		if p == n.ID {
			return &CycleError{NodeID: n.ID, Via: p}
		}
		targets[p] = struct{}{}
	}
	for _, c := range n.Children {
		if c == n.ID {
			return &CycleError{NodeID: n.ID, Via: c}
		}
	}
	if via, ok := a.reach(n.Children, targets); ok {
		return &CycleError{NodeID: n.ID, Via: via}
	}
	return nil
}

// checkEdge reports whether adding from -> to keeps the graph acyclic.
func (a adjacency) checkEdge(from, to string) error {
	if from == to {
		return &CycleError{NodeID: from, Via: to}
	}
	if via, ok := a.reach([]string{to}, map[string]struct{}{from: {}}); ok {
		return &CycleError{NodeID: from, Via: via}
	}
	return nil
}

// reach walks forward from starts with an explicit worklist and returns the
// first target hit.
func (a adjacency) reach(starts []string, targets map[string]struct{}) (string, bool) {
	stack := append([]string{}, starts...)
	visited := make(map[string]struct{})
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := targets[cur]; ok {
			return cur, true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		stack = append(stack, a[cur]...)
	}
	return "", false
}
