// Command dispatch for the controller link
//
// The firmware acknowledges line commands in arrival order and carries no
// request identifiers, so the dispatcher keeps a strict FIFO queue: the
// Nth ok/error line answers the Nth submitted command, no matter how much
// status chatter arrives in between.

package controller

import (
	"context"
	"sync"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/log"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/metrics"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/transport"
)

// pending is one submitted line command awaiting its response.
type pending struct {
	text   string
	sentAt time.Time
	sent   bool
	resp   chan error // buffered 1; nil means ok

	// abandoned marks a command whose caller gave up waiting. The entry
	// stays at its queue position so the eventual response, if one ever
	// arrives, is consumed here instead of answering the next command.
	abandoned bool
}

type dispatcher struct {
	conn    transport.Conn
	writeMu *sync.Mutex
	logger  *log.Logger
	metrics *metrics.Set

	mu     sync.Mutex
	queue  []*pending
	closed bool
}

func newDispatcher(conn transport.Conn, writeMu *sync.Mutex, logger *log.Logger, m *metrics.Set) *dispatcher {
	return &dispatcher{
		conn:    conn,
		writeMu: writeMu,
		logger:  logger,
		metrics: m,
	}
}

// Submit queues a line command, transmits it once it reaches the head of
// the queue, and blocks until the matching ok/error arrives or ctx
// expires. An error:N response becomes a ControllerRejected error;
// expiry becomes a Timeout error. Commands are never retried.
func (d *dispatcher) Submit(ctx context.Context, text string) error {
	p := &pending{text: text, resp: make(chan error, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New(errors.ErrConnection, "controller link is closed")
	}
	d.queue = append(d.queue, p)
	d.mu.Unlock()

	d.pump()

	start := time.Now()
	select {
	case err := <-p.resp:
		return err
	case <-ctx.Done():
		d.mu.Lock()
		p.abandoned = true
		d.mu.Unlock()
		d.metrics.RecordCommand(metrics.ResultTimeout, 0)
		return errors.TimeoutError(text, time.Since(start).Round(time.Millisecond).String())
	}
}

// pump transmits the head of the queue if it has not gone out yet. Runs
// from Submit and from handleResponse after a pop.
func (d *dispatcher) pump() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 || d.queue[0].sent {
			d.mu.Unlock()
			return
		}
		p := d.queue[0]
		if p.abandoned {
			// Abandoned before transmission: nothing went on the wire, so
			// no response needs consuming. Drop it rather than executing
			// a command its caller gave up on.
			d.queue = d.queue[1:]
			d.mu.Unlock()
			continue
		}
		p.sent = true
		p.sentAt = time.Now()
		d.mu.Unlock()

		d.writeMu.Lock()
		_, err := d.conn.Write([]byte(p.text + "\n"))
		d.writeMu.Unlock()
		if err == nil {
			return
		}

		// Write failed: this command will never be answered. Drop it and
		// try the next one so one bad write cannot wedge the queue.
		d.mu.Lock()
		if len(d.queue) > 0 && d.queue[0] == p {
			d.queue = d.queue[1:]
		}
		abandoned := p.abandoned
		d.mu.Unlock()
		if !abandoned {
			p.resp <- errors.ConnectionError(d.conn.Name(), err)
		}
	}
}

// handleResponse matches an ok/error line to the oldest in-flight
// command. Called only from the reader loop.
func (d *dispatcher) handleResponse(msg protocol.Message) {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		d.logger.Warn("response %q with no command in flight, link out of sync?", msg.Raw)
		return
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	abandoned := p.abandoned
	d.mu.Unlock()

	latency := time.Since(p.sentAt).Seconds()
	switch {
	case abandoned:
		d.logger.Warn("late response %q for timed out command %q", msg.Raw, p.text)
	case msg.Kind == protocol.KindCommandOk:
		d.metrics.RecordCommand(metrics.ResultOK, latency)
		p.resp <- nil
	default:
		d.metrics.RecordCommand(metrics.ResultRejected, latency)
		d.logger.Warn("command %q rejected: error:%d %s", p.text, msg.Code, protocol.ErrorMeaning(msg.Code))
		p.resp <- errors.ControllerRejectedError(p.text, msg.Code, protocol.ErrorMeaning(msg.Code))
	}

	d.pump()
}

// abortAll fails every queued command with err and empties the queue.
// Used on alarm, emergency stop and link loss.
func (d *dispatcher) abortAll(err error) {
	d.mu.Lock()
	queue := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, p := range queue {
		if p.abandoned {
			continue
		}
		d.metrics.RecordCommand(metrics.ResultAborted, 0)
		p.resp <- err
	}
}

// close marks the dispatcher closed and aborts outstanding commands.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.abortAll(errors.New(errors.ErrConnection, "controller link is closed"))
}

// depth reports how many commands are queued or in flight.
func (d *dispatcher) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
