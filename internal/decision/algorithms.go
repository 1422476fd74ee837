package decision

import (
	"strings"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// SingleAlgorithm picks at most one winner from filtered candidates.
type SingleAlgorithm func(r *Rand, candidates []*narrative.Node) (*narrative.Node, bool)

// MultiAlgorithm emits any number of winners from filtered candidates.
type MultiAlgorithm func(r *Rand, candidates []*narrative.Node, emit func(*narrative.Node))

// TerminationAlgorithm decides whether a group loop stops after an iteration.
type TerminationAlgorithm func(s GroupState) bool

// Built-in algorithm names.
const (
	AlgorithmFirst            = "First"
	AlgorithmRandom           = "Random"
	AlgorithmAllRandom        = "AllRandom"
	AlgorithmHasMadeSelection = "HasMadeSelection"
	AlgorithmNever            = "Never"
)

var outputAlgorithms = map[string]SingleAlgorithm{
	"first":  first,
	"random": random,
}

var groupSelections = map[string]MultiAlgorithm{
	"first":     emitOne(first),
	"random":    emitOne(random),
	"allrandom": allRandom,
}

var groupTerminations = map[string]TerminationAlgorithm{
	"hasmadeselection": hasMadeSelection,
	"never":            never,
}

// Inert variants bound to unresolved names.
var (
	inertSingle      SingleAlgorithm      = func(*Rand, []*narrative.Node) (*narrative.Node, bool) { return nil, false }
	inertMulti       MultiAlgorithm       = func(*Rand, []*narrative.Node, func(*narrative.Node)) {}
	inertTermination TerminationAlgorithm = func(GroupState) bool { return true }
)

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// OutputAlgorithm resolves a single-selection algorithm for output decision
// points. Unknown names resolve to an inert algorithm and false.
func OutputAlgorithm(name string) (SingleAlgorithm, bool) {
	if fn, ok := outputAlgorithms[key(name)]; ok {
		return fn, true
	}
	return inertSingle, false
}

// GroupSelection resolves a group selection algorithm.
func GroupSelection(name string) (MultiAlgorithm, bool) {
	if fn, ok := groupSelections[key(name)]; ok {
		return fn, true
	}
	return inertMulti, false
}

// GroupTermination resolves a group termination algorithm.
func GroupTermination(name string) (TerminationAlgorithm, bool) {
	if fn, ok := groupTerminations[key(name)]; ok {
		return fn, true
	}
	return inertTermination, false
}

func first(_ *Rand, candidates []*narrative.Node) (*narrative.Node, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[0], true
}

func random(r *Rand, candidates []*narrative.Node) (*narrative.Node, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[r.IntN(len(candidates))], true
}

func emitOne(pick SingleAlgorithm) MultiAlgorithm {
	return func(r *Rand, candidates []*narrative.Node, emit func(*narrative.Node)) {
		if n, ok := pick(r, candidates); ok {
			emit(n)
		}
	}
}

func allRandom(r *Rand, candidates []*narrative.Node, emit func(*narrative.Node)) {
	for _, i := range r.Perm(len(candidates)) {
		emit(candidates[i])
	}
}

func hasMadeSelection(s GroupState) bool {
	return s.Total > 0
}

// never stops only through the empty-iteration guard.
func never(GroupState) bool {
	return false
}
