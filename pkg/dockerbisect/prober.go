package dockerbisect

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// A Prober runs the command under test against the filesystem of a layer.
//
// Probe has to return the same output for the same layer ID for bisection to be correct.
// Failures to run the command should preferably be encoded in the output, since the output is only ever compared for equality.
// A returned error aborts the whole bisection.
//
// Skip gets called with the amount of layers which will not be probed individually, and is meant for progress reporting only.
//
// Both methods get called concurrently.
type Prober interface {
	Probe(ctx context.Context, layerID string) (string, error)
	Skip(count int)
}

// limitProber bounds the amount of concurrent Probe calls to its wrapped prober
type limitProber struct {
	prober Prober
	sem    *semaphore.Weighted
}

// newLimitProber wraps the passed prober s.t. at most max probes run at once. A max of 0 means no limit
func newLimitProber(prober Prober, max uint) *limitProber {
	limit := int64(max)
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &limitProber{
		prober: prober,
		sem:    semaphore.NewWeighted(limit),
	}
}

func (p *limitProber) Probe(ctx context.Context, layerID string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.prober.Probe(ctx, layerID)
}

func (p *limitProber) Skip(count int) {
	p.prober.Skip(count)
}

// trackingProber records every probe and skip of its wrapped prober in a progress counter
type trackingProber struct {
	prober   Prober
	progress *Progress
	log      *logrus.Entry
}

func (p *trackingProber) Probe(ctx context.Context, layerID string) (string, error) {
	out, err := p.prober.Probe(ctx, layerID)
	if err != nil {
		return "", err
	}
	done, total := p.progress.Add(1)
	p.log.WithField("layer", layerID).Infof("Probed layer (%d/%d)", done, total)
	return out, nil
}

func (p *trackingProber) Skip(count int) {
	done, total := p.progress.Add(count)
	p.log.Debugf("Skipping %d layers with known output (%d/%d)", count, done, total)
	p.prober.Skip(count)
}
