// Package sequence issues the venue's monotonic order ids. The id
// doubles as the submission sequence number, which is what time
// priority ties break on, so it must be strictly increasing and
// replay-safe.
package sequence

import "sync/atomic"

type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer. Fresh start uses 0; after a journal replay
// the caller resets it to the last replayed id.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset is only used after journal replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
