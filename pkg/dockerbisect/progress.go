package dockerbisect

import "sync/atomic"

// Progress counts how many layers of a job have been accounted for, either by probing them or by skipping them.
// It is safe for concurrent use.
type Progress struct {
	total int64
	done  atomic.Int64
}

// NewProgress returns a progress counter expecting total layers
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

// Add accounts for n more layers and returns the new snapshot
func (p *Progress) Add(n int) (done, total int) {
	return p.clamp(p.done.Add(int64(n)))
}

// Finish accounts for all remaining layers
func (p *Progress) Finish() {
	p.done.Store(p.total)
}

// Snapshot returns how many of the total layers have been accounted for.
// Skip counts include the probed layer they start from, so done is clamped to total.
func (p *Progress) Snapshot() (done, total int) {
	return p.clamp(p.done.Load())
}

func (p *Progress) clamp(done int64) (int, int) {
	if done > p.total {
		done = p.total
	}
	return int(done), int(p.total)
}
