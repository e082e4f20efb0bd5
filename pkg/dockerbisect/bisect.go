package dockerbisect

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FindTransitions finds all layers at which the output of the prober changes.
//
// The first and last layer are probed concurrently. If their outputs match, a single transition without a Before is returned.
// Otherwise the layers in between are bisected, probing independent ranges concurrently.
// The returned transitions are not sorted across the whole history, use [SortTransitions] for that.
//
// A range whose two ends report the same output is assumed to not contain any transition and is skipped.
// A layer sequence like A, B, A hidden inside such a range is therefore not detected.
func FindTransitions(ctx context.Context, layers []Layer, prober Prober) ([]Transition, error) {
	if len(layers) < 2 {
		return nil, errors.Join(fmt.Errorf("got %d layers", len(layers)), ErrInsufficientLayers)
	}

	first, last := layers[0], layers[len(layers)-1]
	start, end := ProbeResult{Layer: first}, ProbeResult{Layer: last}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return probeInto(gCtx, prober, &start)
	})
	g.Go(func() error {
		return probeInto(gCtx, prober, &end)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if start.Output == end.Output {
		return []Transition{{After: end}}, nil
	}

	return bisect(ctx, layers[1:len(layers)-1], start, end, prober)
}

// bisect returns the transitions between start and end, where history holds the layers strictly between the two.
// The outputs of start and end are expected to differ.
func bisect(ctx context.Context, history []Layer, start, end ProbeResult, prober Prober) (_ []Transition, err error) {
	defer recoverBranch(&err)

	if len(history) == 0 {
		if start.Output == end.Output {
			return nil, errors.Join(fmt.Errorf("layers %d and %d both reported %q", start.Layer.Height, end.Layer.Height, start.Output), ErrInconsistentProbe)
		}
		return []Transition{{Before: &start, After: end}}, nil
	}

	half := len(history) / 2
	mid := ProbeResult{Layer: history[half]}
	if err := probeInto(ctx, prober, &mid); err != nil {
		return nil, err
	}

	if len(history) == 1 {
		var transitions []Transition
		if start.Output != mid.Output {
			transitions = append(transitions, Transition{Before: &start, After: mid})
		}
		if mid.Output != end.Output {
			transitions = append(transitions, Transition{Before: &mid, After: end})
		}
		return transitions, nil
	}

	if mid.Output == start.Output {
		prober.Skip(mid.Layer.Height - start.Layer.Height)
		return bisect(ctx, history[half+1:], mid, end, prober)
	}
	if mid.Output == end.Output {
		prober.Skip(end.Layer.Height - mid.Layer.Height)
		return bisect(ctx, history[:half], start, mid, prober)
	}

	// Both halves contain a transition
	var left, right []Transition
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		left, err = bisect(gCtx, history[:half], start, mid, prober)
		return err
	})
	g.Go(func() (err error) {
		right, err = bisect(gCtx, history[half+1:], mid, end, prober)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return append(left, right...), nil
}

// probeInto probes the layer of the passed result and stores the output in it
func probeInto(ctx context.Context, prober Prober, res *ProbeResult) (err error) {
	defer recoverBranch(&err)
	res.Output, err = prober.Probe(ctx, res.Layer.ID)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to probe layer %d (%s)", res.Layer.Height, res.Layer.ID), err)
	}
	return nil
}

// recoverBranch turns a panic of the current goroutine into an error wrapping ErrProbePanicked
func recoverBranch(err *error) {
	if r := recover(); r != nil {
		*err = errors.Join(fmt.Errorf("recovered from %v", r), ErrProbePanicked)
	}
}
