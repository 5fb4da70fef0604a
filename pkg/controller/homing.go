// Homing orchestration
//
// $H does not acknowledge until the homing cycle finishes, so the ack
// wait is bounded by the homing ceiling rather than the command timeout.
// Completion additionally requires an observed transition into the
// Homing state: firmware will happily ack a cycle it silently skipped,
// and the homed flag alone has proven unreliable on these boards. After
// motion ends the work coordinates are zeroed and the result verified
// against a fresh status report.

package controller

import (
	"context"
	"math"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/metrics"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
)

// Home runs a homing cycle for the selected axes (all axes when set is
// empty) and blocks until it is verified complete. Unlike moves, homing
// is allowed while the controller is alarmed; a verified cycle clears
// the latched alarm.
func (c *Client) Home(ctx context.Context, set axes.AxisSet) error {
	c.mu.Lock()
	down := c.closed || c.linkDown
	c.mu.Unlock()
	if down {
		return errors.New(errors.ErrConnection, "controller link is down")
	}
	if len(set) == 0 {
		set = axes.NewAxisSet()
	}

	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	start := time.Now()
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HomingCeiling)
		defer cancel()
	}

	subID, samples := c.trk.subscribe()
	defer c.trk.unsubscribe(subID)
	abortID, abortCh := c.addAbort()
	defer c.removeAbort(abortID)

	err := c.runHoming(ctx, set, start, samples, abortCh)
	if err != nil {
		c.metrics.RecordHoming(homingResult(err))
		return err
	}
	c.metrics.RecordHoming(metrics.ResultOK)
	c.clearAlarm()
	c.logger.Info("homing complete for %s in %s", set, time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Client) runHoming(ctx context.Context, set axes.AxisSet, start time.Time,
	samples <-chan StatusSample, abortCh <-chan error) error {

	var homingSeen bool
	var homingAt time.Time
	watch := func(s StatusSample) {
		if s.State == protocol.StateHoming && !homingSeen {
			homingSeen = true
			homingAt = s.At
			c.logger.Debug("homing cycle detected after %s", s.At.Sub(start).Round(time.Millisecond))
		}
	}

	for _, cmd := range protocol.HomeCommands(set) {
		c.logger.Info("homing: %s", cmd)
		ackCh := make(chan error, 1)
		go func(cmd string) { ackCh <- c.disp.Submit(ctx, cmd) }(cmd)

	waitAck:
		for {
			select {
			case err := <-ackCh:
				if err != nil {
					return c.homingError(set, start, err)
				}
				break waitAck
			case s := <-samples:
				watch(s)
			case aerr := <-abortCh:
				return c.homingError(set, start, aerr)
			}
		}
	}

	// Duration floors. Switch bounce and seek retries make very fast
	// cycles suspect, so completion is held back to the configured
	// minimums while the stream is still watched for a late transition.
	floorEnd := start.Add(c.opts.HomingTotalFloor)
	for {
		if homingSeen {
			if e := homingAt.Add(c.opts.HomingDetectFloor); e.After(floorEnd) {
				floorEnd = e
			}
		}
		if !time.Now().Before(floorEnd) {
			break
		}
		select {
		case s := <-samples:
			watch(s)
		case <-time.After(time.Until(floorEnd)):
		case aerr := <-abortCh:
			return c.homingError(set, start, aerr)
		case <-ctx.Done():
			return errors.HomingTimeoutError(set.String(), time.Since(start).Round(time.Second).String())
		}
	}
	if !homingSeen {
		c.logger.Warn("no homing transition observed for %s; controller may already be homed, continuing", set)
	}

	// Zero the work coordinates so position reports start from a known
	// origin.
	ackCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	err := c.disp.Submit(ackCtx, protocol.ClearWorkOffsets(set))
	cancel()
	if err != nil {
		return c.homingError(set, start, err)
	}

	// Verify against a fresh report: machine idle, homed axes at origin.
	after := c.trk.Seq()
	if err := c.sendImmediate(protocol.ByteStatusQuery, "status_query"); err != nil {
		return err
	}
	vctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	s, werr := c.trk.waitAfter(vctx, after)
	cancel()
	if werr != nil {
		return errors.HomingFailedError(set.String(), "no status report after homing")
	}
	if s.State != protocol.StateIdle {
		return errors.HomingFailedError(set.String(), "machine "+s.State.String()+" after homing")
	}
	if s.HasPosition {
		for _, a := range axes.AllAxes {
			if !set.Contains(a) {
				continue
			}
			if v := s.Position.Get(a); math.Abs(v) > c.opts.Tolerance {
				return errors.HomingFailedError(set.String(),
					a.String()+" not at origin after clearing offsets").SetAxis(a.String())
			}
		}
	}
	return nil
}

// homingError folds dispatcher and abort errors into the homing taxonomy.
func (c *Client) homingError(set axes.AxisSet, start time.Time, err error) error {
	switch {
	case errors.Is(err, errors.ErrTimeout):
		return errors.HomingTimeoutError(set.String(), time.Since(start).Round(time.Second).String())
	case errors.Is(err, errors.ErrAlarm):
		return errors.HomingFailedError(set.String(), err.Error())
	default:
		return err
	}
}

func homingResult(err error) string {
	if errors.Is(err, errors.ErrHomingTimeout) || errors.Is(err, errors.ErrTimeout) {
		return metrics.ResultTimeout
	}
	return "failed"
}
