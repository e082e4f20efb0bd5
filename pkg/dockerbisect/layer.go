package dockerbisect

import (
	"cmp"
	"fmt"
	"slices"
)

// A Layer is one step of an image's history, addressable by an identifier which materializes the filesystem up to and including it
type Layer struct {
	Height  int    // The position of this layer in the image history, where 0 is the base layer
	ID      string // The identifier passed to the prober. Empty for history entries without a concrete identifier
	Command string // The command which created this layer
}

func (l Layer) String() string {
	return fmt.Sprintf("%s | %q", l.ID, l.Command)
}

// A ProbeResult is the output of running the command on a container made of a layer
type ProbeResult struct {
	Layer  Layer
	Output string
}

func (r ProbeResult) String() string {
	return fmt.Sprintf("%s | %s", r.Layer, r.Output)
}

// A Transition is a boundary between two probed layers with differing outputs, with no further difference detected in between.
// A transition with a nil Before means that no layer changed the output and After is simply the last layer.
type Transition struct {
	Before *ProbeResult
	After  ProbeResult
}

func (t Transition) String() string {
	if t.Before == nil {
		return fmt.Sprintf("-> %s", t.After)
	}
	return fmt.Sprintf("(%s -> %s)", *t.Before, t.After)
}

// SortTransitions sorts the passed transitions by the height of their After layer
func SortTransitions(transitions []Transition) {
	slices.SortStableFunc(transitions, func(a, b Transition) int {
		return cmp.Compare(a.After.Layer.Height, b.After.Layer.Height)
	})
}

// A SkippedLayer is a history entry which has no concrete identifier and can therefore not be probed
type SkippedLayer struct {
	Height  int
	Command string
}

// A Result is the outcome of a finished job
type Result struct {
	Transitions []Transition   // The transitions found, in no particular order
	Skipped     []SkippedLayer // The history entries which could not be probed
	History     []Layer        // Every history entry, ordered by height
}
