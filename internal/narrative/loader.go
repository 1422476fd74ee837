package narrative

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/NarrativeEngine/internal/constraint"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// Format is a graph document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// LoadError reports why a graph document could not be turned into a Graph.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Document is the on-disk form of a graph.
type Document struct {
	Version   int           `json:"version" yaml:"version"`
	Root      string        `json:"root" yaml:"root"`
	Variables []VariableDoc `json:"variables,omitempty" yaml:"variables,omitempty"`
	Nodes     []NodeDoc     `json:"nodes" yaml:"nodes"`
}

type VariableDoc struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

type ConstraintDoc struct {
	Scope    string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Variable string `json:"variable" yaml:"variable"`
	Type     string `json:"type" yaml:"type"`
	Op       string `json:"op" yaml:"op"`
	Value    string `json:"value" yaml:"value"`
}

type DecisionDoc struct {
	Algorithm   string          `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Candidates  []string        `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Constraints []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

type TriggerDoc struct {
	Type     string  `json:"type" yaml:"type"`
	Duration string  `json:"duration,omitempty" yaml:"duration,omitempty"`
	Variable string  `json:"variable,omitempty" yaml:"variable,omitempty"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
}

type MediaDoc struct {
	Controller string            `json:"controller" yaml:"controller"`
	Unload     string            `json:"unload,omitempty" yaml:"unload,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

type GroupDoc struct {
	Selection   string          `json:"selection" yaml:"selection"`
	Termination string          `json:"termination" yaml:"termination"`
	Candidates  []string        `json:"candidates" yaml:"candidates"`
	Constraints []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

type GraphDoc struct {
	Root string `json:"root" yaml:"root"`
}

type LayerDoc struct {
	Primary     string          `json:"primary" yaml:"primary"`
	Candidates  []string        `json:"candidates" yaml:"candidates"`
	Constraints []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

type NodeDoc struct {
	ID             string          `json:"id" yaml:"id"`
	GUID           string          `json:"guid,omitempty" yaml:"guid,omitempty"`
	Name           string          `json:"name,omitempty" yaml:"name,omitempty"`
	Type           string          `json:"type" yaml:"type"`
	Output         DecisionDoc     `json:"output,omitempty" yaml:"output,omitempty"`
	Constraints    []ConstraintDoc `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	ConstraintMode string          `json:"constraint_mode,omitempty" yaml:"constraint_mode,omitempty"`
	Triggers       []TriggerDoc    `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Locals         []VariableDoc   `json:"locals,omitempty" yaml:"locals,omitempty"`
	Media          *MediaDoc       `json:"media,omitempty" yaml:"media,omitempty"`
	Group          *GroupDoc       `json:"group,omitempty" yaml:"group,omitempty"`
	Graph          *GraphDoc       `json:"graph,omitempty" yaml:"graph,omitempty"`
	Layer          *LayerDoc       `json:"layer,omitempty" yaml:"layer,omitempty"`
}

// Load reads a graph document from disk. The format follows the extension.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "failed to read graph file", Err: err}
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	g, err := Decode(data, format)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Reason: "failed to decode graph", Err: err}
	}
	return g, nil
}

// Decode parses a graph document.
func Decode(data []byte, format Format) (*Graph, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Reason: "failed to parse graph YAML", Err: err}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Reason: "failed to parse graph JSON", Err: err}
		}
	}
	return doc.Build()
}

// Build converts a document into a Graph.
func (d *Document) Build() (*Graph, error) {
	if d.Version != 1 {
		return nil, &LoadError{Reason: fmt.Sprintf("unsupported graph version: %d", d.Version)}
	}

	g, err := NewGraph(d.Root)
	if err != nil {
		return nil, &LoadError{Reason: "invalid graph", Err: err}
	}
	for _, v := range d.Variables {
		kind, err := variables.ParseKind(v.Type)
		if err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("variable %s", v.Name), Err: err}
		}
		g.Variables = append(g.Variables, VariableSpec{Name: v.Name, Kind: kind, Default: v.Default})
	}

	for _, nd := range d.Nodes {
		n, err := nd.build()
		if err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("node %s", nd.ID), Err: err}
		}
		if err := g.add(n); err != nil {
			return nil, &LoadError{Reason: "invalid graph", Err: err}
		}
	}
	return g, nil
}

func (nd *NodeDoc) build() (*Node, error) {
	n := &Node{
		ID:             nd.ID,
		Name:           nd.Name,
		Kind:           NodeKind(strings.ToLower(nd.Type)),
		ConstraintMode: constraint.ParseMode(nd.ConstraintMode),
		Output: DecisionSpec{
			Algorithm:   nd.Output.Algorithm,
			Candidates:  nd.Output.Candidates,
			Constraints: buildConstraints(nd.Output.Constraints),
		},
		Constraints: buildConstraints(nd.Constraints),
	}
	if n.Output.Algorithm == "" {
		n.Output.Algorithm = "First"
	}

	if nd.GUID != "" {
		id, err := uuid.Parse(nd.GUID)
		if err != nil {
			return nil, fmt.Errorf("invalid guid: %w", err)
		}
		n.GUID = id
	}

	for _, td := range nd.Triggers {
		ts, err := td.build()
		if err != nil {
			return nil, err
		}
		n.Triggers = append(n.Triggers, ts)
	}

	if len(nd.Locals) > 0 {
		n.Locals = variables.NewMemoryStore()
		for _, v := range nd.Locals {
			kind, err := variables.ParseKind(v.Type)
			if err != nil {
				return nil, fmt.Errorf("local %s: %w", v.Name, err)
			}
			if err := n.Locals.Define(v.Name, kind, v.Default); err != nil {
				return nil, err
			}
		}
	}

	switch n.Kind {
	case KindAtomic:
		if nd.Media != nil {
			n.Media = MediaSpec{
				Controller: nd.Media.Controller,
				Unload:     UnloadPolicy(strings.ToLower(nd.Media.Unload)),
				Params:     nd.Media.Params,
			}
			switch n.Media.Unload {
			case "", UnloadNever, UnloadOnTriggerComplete, UnloadOnProcessingComplete:
			default:
				return nil, fmt.Errorf("unknown unload policy: %q", nd.Media.Unload)
			}
		}
	case KindGroup:
		if nd.Group == nil {
			return nil, fmt.Errorf("group node requires a group block")
		}
		n.Group = GroupSpec{
			Selection:   nd.Group.Selection,
			Termination: nd.Group.Termination,
			Candidates:  nd.Group.Candidates,
			Constraints: buildConstraints(nd.Group.Constraints),
		}
	case KindGraph:
		if nd.Graph != nil {
			n.GraphRoot = nd.Graph.Root
		}
	case KindLayer:
		if nd.Layer == nil {
			return nil, fmt.Errorf("layer node requires a layer block")
		}
		n.Layer = LayerSpec{
			Primary:     nd.Layer.Primary,
			Candidates:  nd.Layer.Candidates,
			Constraints: buildConstraints(nd.Layer.Constraints),
		}
	default:
		return nil, fmt.Errorf("unknown node type: %q", nd.Type)
	}
	return n, nil
}

func (td *TriggerDoc) build() (TriggerSpec, error) {
	ts := TriggerSpec{Kind: TriggerKind(strings.ToLower(td.Type)), Variable: td.Variable}
	switch ts.Kind {
	case TriggerEndOfContent:
	case TriggerTimed:
		d, err := parseDuration(td.Duration)
		if err != nil {
			return ts, err
		}
		ts.Duration = d
	case TriggerVariable:
		if td.Variable == "" {
			return ts, fmt.Errorf("variable trigger requires a variable name")
		}
		if td.Value != nil {
			ts.Value = *td.Value
			ts.MatchValue = true
		}
	default:
		return ts, fmt.Errorf("unknown trigger type: %q", td.Type)
	}
	return ts, nil
}

// parseDuration accepts Go durations and bare numbers of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func buildConstraints(docs []ConstraintDoc) []constraint.Constraint {
	if len(docs) == 0 {
		return nil
	}
	out := make([]constraint.Constraint, 0, len(docs))
	for _, cd := range docs {
		scope := constraint.ScopeGlobal
		if strings.EqualFold(cd.Scope, string(constraint.ScopeLocal)) {
			scope = constraint.ScopeLocal
		}
		kind, err := variables.ParseKind(cd.Type)
		if err != nil {
			// Unknown literal type: keep the constraint so it excludes candidates.
			out = append(out, constraint.Constraint{Scope: scope, Variable: cd.Variable})
			continue
		}
		out = append(out, constraint.Build(scope, cd.Variable, kind, cd.Op, cd.Value))
	}
	return out
}
