package narrative

import "fmt"

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.NodeID, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants playback relies on: every
// referenced node exists and every graph node names a root. Unresolved
// constraints are reported as warnings because they only exclude candidates.
func Validate(g *Graph) []Issue {
	var issues []Issue
	errorf := func(id, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, NodeID: id, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(id, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, NodeID: id, Message: fmt.Sprintf(format, args...)})
	}

	if g.Root == "" {
		errorf("", "graph has no root")
	} else if _, ok := g.Node(g.Root); !ok {
		errorf("", "root node not found: %s", g.Root)
	}

	refs := func(n *Node, what string, ids []string) {
		for _, id := range ids {
			if _, ok := g.Node(id); !ok {
				errorf(n.ID, "%s candidate not found: %s", what, id)
			}
		}
	}

	for _, n := range g.nodes {
		refs(n, "output", n.Output.Candidates)
		checkConstraints(n, "output", n.Output, warnf)
		for i, c := range n.Constraints {
			if !c.Resolved() {
				warnf(n.ID, "self-constraint %d is unresolved and always fails", i)
			}
		}

		switch n.Kind {
		case KindGroup:
			refs(n, "group", n.Group.Candidates)
			if len(n.Group.Candidates) == 0 {
				warnf(n.ID, "group has no candidates")
			}
		case KindGraph:
			if n.GraphRoot == "" {
				errorf(n.ID, "graph node has no root")
			} else if n.GraphRoot == n.ID {
				errorf(n.ID, "graph node cannot be its own root")
			} else if _, ok := g.Node(n.GraphRoot); !ok {
				errorf(n.ID, "graph root not found: %s", n.GraphRoot)
			}
		case KindLayer:
			refs(n, "layer", n.Layer.Candidates)
			if n.Layer.Primary == "" {
				warnf(n.ID, "layer has no primary; content completes on triggers only")
			} else if !contains(n.Layer.Candidates, n.Layer.Primary) {
				warnf(n.ID, "layer primary %s is not a candidate", n.Layer.Primary)
			}
		}
	}
	return issues
}

func checkConstraints(n *Node, what string, d DecisionSpec, warnf func(string, string, ...any)) {
	for i, c := range d.Constraints {
		if !c.Resolved() {
			warnf(n.ID, "%s constraint %d is unresolved and always fails", what, i)
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
