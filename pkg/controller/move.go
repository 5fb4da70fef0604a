// Movement completion detection
//
// An acknowledged command only means the firmware accepted the line; the
// axes are still moving. A move counts as complete after the machine has
// reported Idle stably for a configured sample count and minimum
// duration, and the position has verifiably changed (or the move was a
// genuine no-op). The position check exists because some firmware builds
// report Idle before the coordinate fields catch up.

package controller

import (
	"context"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
)

// runMove transmits one motion command and blocks until its completion
// is verified. zeroDistance marks requests already known to command no
// travel; they complete without waiting for a position change.
func (c *Client) runMove(ctx context.Context, cmd string, zeroDistance bool) error {
	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.MoveTimeout)
		defer cancel()
	}

	pre, havePre := c.trk.Current()
	subID, samples := c.trk.subscribe()
	defer c.trk.unsubscribe(subID)
	abortID, abortCh := c.addAbort()
	defer c.removeAbort(abortID)

	submitted := time.Now()
	ackCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	err := c.disp.Submit(ackCtx, cmd)
	cancel()
	if err != nil {
		return err
	}
	c.logger.Debug("move accepted: %s", cmd)

	if err := c.awaitIdle(ctx, cmd, submitted, samples, abortCh); err != nil {
		return err
	}

	if zeroDistance || !havePre || !pre.HasPosition {
		return nil
	}
	return c.verifyMoved(ctx, cmd, pre, abortCh)
}

// awaitIdle blocks until the machine has reported Idle for the
// configured consecutive sample count and the minimum move duration has
// elapsed. Samples that predate the submission do not count. The
// firmware only auto-reports while axes are moving and sends a single
// Idle report on arrival, so a quiet stream is polled with status
// queries until the idle run accumulates.
func (c *Client) awaitIdle(ctx context.Context, cmd string, submitted time.Time,
	samples <-chan StatusSample, abortCh <-chan error) error {

	idleRun := 0
	poll := time.NewTicker(c.opts.VerifyPoll)
	defer poll.Stop()
	for {
		if idleRun >= c.opts.IdleStableCount {
			rem := c.opts.MinMoveDuration - time.Since(submitted)
			if rem <= 0 {
				return nil
			}
			select {
			case s := <-samples:
				idleRun = countIdle(idleRun, s, submitted)
			case <-time.After(rem):
			case err := <-abortCh:
				return err
			case <-ctx.Done():
				return errors.TimeoutError(cmd, "waiting for motion to settle")
			}
			continue
		}

		select {
		case s := <-samples:
			idleRun = countIdle(idleRun, s, submitted)
			poll.Reset(c.opts.VerifyPoll)
		case <-poll.C:
			if err := c.sendImmediate(protocol.ByteStatusQuery, "idle_query"); err != nil {
				return err
			}
		case err := <-abortCh:
			return err
		case <-ctx.Done():
			return errors.TimeoutError(cmd, "waiting for motion to settle")
		}
	}
}

func countIdle(run int, s StatusSample, submitted time.Time) int {
	if s.At.Before(submitted) {
		return run
	}
	if s.State == protocol.StateIdle {
		return run + 1
	}
	return 0
}

// verifyMoved confirms the position actually changed from the pre-move
// snapshot. The firmware stops auto-reporting once idle, so each poll
// interval sends a status query. A full window with no change completes
// the move as a true no-op rather than failing it.
func (c *Client) verifyMoved(ctx context.Context, cmd string, pre StatusSample, abortCh <-chan error) error {
	deadline := time.Now().Add(c.opts.VerifyWindow)
	ticker := time.NewTicker(c.opts.VerifyPoll)
	defer ticker.Stop()

	for {
		if cur, ok := c.trk.Current(); ok && cur.HasPosition && cur.At.After(pre.At) {
			if !cur.Position.ApproxEqual(pre.Position, c.opts.Tolerance) {
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			c.logger.Debug("no position change after %s, treating as no-op", cmd)
			return nil
		}

		select {
		case <-ticker.C:
			if err := c.sendImmediate(protocol.ByteStatusQuery, "verify_query"); err != nil {
				return err
			}
		case err := <-abortCh:
			return err
		case <-ctx.Done():
			return errors.TimeoutError(cmd, "verifying position change")
		}
	}
}
