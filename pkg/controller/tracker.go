package controller

import (
	"context"
	"sync"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
)

// StatusSample is one snapshot of the controller state as reported on the
// wire. Samples are immutable once published; readers always get copies.
type StatusSample struct {
	State protocol.MachineState

	// Position is the work-coordinate position. When a report carries no
	// coordinates the last known position is carried forward.
	Position    axes.Position
	HasPosition bool

	// At is the host arrival time of the report.
	At time.Time

	// Seq increases by one per sample and orders samples totally.
	Seq uint64
}

// tracker is the single owner of the current and prior status sample.
// Only the reader loop writes; everything else reads copies or subscribes.
type tracker struct {
	mu       sync.Mutex
	current  StatusSample
	prior    StatusSample
	hasCur   bool
	hasPrior bool
	changed  chan struct{} // closed and replaced on every apply

	subs    map[int]chan StatusSample
	nextSub int
	bufSize int
}

func newTracker(bufSize int) *tracker {
	return &tracker{
		changed: make(chan struct{}),
		subs:    make(map[int]chan StatusSample),
		bufSize: bufSize,
	}
}

// apply publishes a parsed status report. Called only from the reader
// loop. Subscriber channels that are full drop the sample; the reader
// loop never blocks on a slow consumer.
func (t *tracker) apply(st *protocol.StatusReport, at time.Time) StatusSample {
	t.mu.Lock()
	s := StatusSample{State: st.State, At: at}
	if st.AxisCount > 0 {
		s.Position = st.Work
		s.HasPosition = true
	} else if t.hasCur {
		s.Position = t.current.Position
		s.HasPosition = t.current.HasPosition
	}
	s.Seq = t.current.Seq + 1

	t.prior = t.current
	t.hasPrior = t.hasCur
	t.current = s
	t.hasCur = true

	close(t.changed)
	t.changed = make(chan struct{})

	subs := make([]chan StatusSample, 0, len(t.subs))
	for _, ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
	return s
}

// Current returns the latest sample, if any has arrived yet.
func (t *tracker) Current() (StatusSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.hasCur
}

// Prior returns the sample before the current one.
func (t *tracker) Prior() (StatusSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prior, t.hasPrior
}

// Seq returns the sequence number of the latest sample, zero if none.
func (t *tracker) Seq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Seq
}

// waitAfter blocks until a sample with Seq > after has been published,
// then returns it.
func (t *tracker) waitAfter(ctx context.Context, after uint64) (StatusSample, error) {
	for {
		t.mu.Lock()
		if t.hasCur && t.current.Seq > after {
			s := t.current
			t.mu.Unlock()
			return s, nil
		}
		ch := t.changed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return StatusSample{}, ctx.Err()
		}
	}
}

// subscribe registers a buffered sample channel. The returned id releases
// it via unsubscribe.
func (t *tracker) subscribe() (int, chan StatusSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan StatusSample, t.bufSize)
	t.subs[id] = ch
	return id, ch
}

func (t *tracker) unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}
