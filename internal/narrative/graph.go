// Package narrative holds the authored narrative graph: nodes addressed by
// stable id, their decision point specs, end-trigger specs and media bindings.
// The graph is read-only during playback.
package narrative

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/NarrativeEngine/internal/constraint"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// NodeKind is the node variant tag.
type NodeKind string

const (
	KindAtomic NodeKind = "atomic"
	KindGroup  NodeKind = "group"
	KindGraph  NodeKind = "graph"
	KindLayer  NodeKind = "layer"
)

// UnloadPolicy decides when an atomic node releases its media controller.
type UnloadPolicy string

const (
	UnloadNever                UnloadPolicy = "never"
	UnloadOnTriggerComplete    UnloadPolicy = "on_trigger_complete"
	UnloadOnProcessingComplete UnloadPolicy = "on_processing_complete"
)

// TriggerKind identifies an end-trigger variant.
type TriggerKind string

const (
	TriggerEndOfContent TriggerKind = "end_of_content"
	TriggerTimed        TriggerKind = "timed"
	TriggerVariable     TriggerKind = "variable"
)

// guidSpace namespaces guids derived from node ids.
var guidSpace = uuid.MustParse("6f1c2a64-3b57-4d1e-9a0f-0d5a2c7e8b41")

// DecisionSpec is the authored form of a single-selection decision point.
type DecisionSpec struct {
	Candidates  []string
	Constraints []constraint.Constraint
	Algorithm   string
}

// GroupSpec is the authored form of a group decision point.
type GroupSpec struct {
	Candidates  []string
	Constraints []constraint.Constraint
	Selection   string
	Termination string
}

// LayerSpec is the authored form of a layer decision point.
type LayerSpec struct {
	Candidates  []string
	Constraints []constraint.Constraint
	Primary     string
}

// MediaSpec binds an atomic node to a media controller by name.
type MediaSpec struct {
	Controller string
	Unload     UnloadPolicy
	Params     map[string]string
}

// TriggerSpec is the authored form of an end-trigger.
type TriggerSpec struct {
	Kind       TriggerKind
	Duration   time.Duration
	Variable   string
	Value      string
	MatchValue bool
}

// Node is a narrative node. Only the block matching Kind is meaningful.
type Node struct {
	ID   string
	GUID uuid.UUID
	Name string
	Kind NodeKind

	Output         DecisionSpec
	Constraints    []constraint.Constraint
	ConstraintMode constraint.Mode
	Triggers       []TriggerSpec
	Locals         *variables.MemoryStore

	Media     MediaSpec
	Group     GroupSpec
	GraphRoot string
	Layer     LayerSpec
}

// Label returns the name when set, otherwise the id.
func (n *Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// LocalVariables returns the node's local store as a Reader, or nil.
func (n *Node) LocalVariables() variables.Reader {
	if n.Locals == nil {
		return nil
	}
	return n.Locals
}

// VariableSpec declares a space-wide variable and its default.
type VariableSpec struct {
	Name    string
	Kind    variables.Kind
	Default string
}

// Graph is an arena of nodes indexed by id.
type Graph struct {
	Version   int
	Root      string
	Variables []VariableSpec

	nodes []*Node
	index map[string]int
}

// NewGraph indexes nodes. Nodes without a guid get one derived from their id.
func NewGraph(root string, nodes ...*Node) (*Graph, error) {
	g := &Graph{
		Version: 1,
		Root:    root,
		index:   make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		if err := g.add(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) add(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	if _, dup := g.index[n.ID]; dup {
		return fmt.Errorf("duplicate node id: %s", n.ID)
	}
	if n.GUID == uuid.Nil {
		n.GUID = GUIDFor(n.ID)
	}
	if n.ConstraintMode == "" {
		n.ConstraintMode = constraint.ValidIfAll
	}
	if n.Kind == KindAtomic && n.Media.Unload == "" {
		n.Media.Unload = UnloadOnProcessingComplete
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// GUIDFor derives the stable guid of a node id.
func GUIDFor(id string) uuid.UUID {
	return uuid.NewSHA1(guidSpace, []byte(id))
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Nodes returns nodes in authoring order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// NewGlobals builds a fresh space-wide store from the declared variables.
func (g *Graph) NewGlobals() (*variables.MemoryStore, error) {
	s := variables.NewMemoryStore()
	for _, v := range g.Variables {
		if err := s.Define(v.Name, v.Kind, v.Default); err != nil {
			return nil, err
		}
	}
	return s, nil
}
