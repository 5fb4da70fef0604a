// Controller protocol client
//
// Client owns the serial link to the motion controller: exactly one
// goroutine reads and classifies inbound lines, and every outbound byte
// goes through one write mutex. Commands, status tracking, movement
// completion and homing are layered on top of that single loop.

package controller

import (
	"context"
	"sync"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/config"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/log"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/metrics"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/protocol"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/serial"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/transport"
)

// Options tunes the client. Zero fields take the defaults below, which
// match a FluidNC build on a 4-axis scanning rig.
type Options struct {
	Limits    axes.Limits
	Tolerance float64 // position comparison tolerance, command units

	CommandTimeout  time.Duration // ack wait per line command
	MoveTimeout     time.Duration // whole-move ceiling
	FreshnessMaxAge time.Duration // cached status max age for Position
	IdleStableCount int           // consecutive Idle samples for completion
	MinMoveDuration time.Duration // floor before Idle samples count
	VerifyPoll      time.Duration // status query interval while settling and verifying
	VerifyWindow    time.Duration // position verification budget

	HomingDetectFloor time.Duration // min detected-to-complete duration
	HomingTotalFloor  time.Duration // min total homing duration
	HomingCeiling     time.Duration // homing hard timeout

	DefaultFeedrate  float64
	SubscriberBuffer int

	Logger  *log.Logger
	Metrics *metrics.Set
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = axes.DefaultTolerance
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}
	if o.MoveTimeout <= 0 {
		o.MoveTimeout = 2 * time.Minute
	}
	if o.FreshnessMaxAge <= 0 {
		o.FreshnessMaxAge = 3 * time.Second
	}
	if o.IdleStableCount <= 0 {
		o.IdleStableCount = 3
	}
	if o.MinMoveDuration <= 0 {
		o.MinMoveDuration = time.Second
	}
	if o.VerifyPoll <= 0 {
		o.VerifyPoll = 200 * time.Millisecond
	}
	if o.VerifyWindow <= 0 {
		o.VerifyWindow = 2 * time.Second
	}
	if o.HomingDetectFloor <= 0 {
		o.HomingDetectFloor = 45 * time.Second
	}
	if o.HomingTotalFloor <= 0 {
		o.HomingTotalFloor = 60 * time.Second
	}
	if o.HomingCeiling <= 0 {
		o.HomingCeiling = 180 * time.Second
	}
	if o.DefaultFeedrate <= 0 {
		o.DefaultFeedrate = 1500
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 16
	}
	if o.Logger == nil {
		o.Logger = log.New("controller")
	}
	return o
}

// OptionsFromConfig builds Options from loaded configuration. Logger and
// Metrics stay nil and fall back to their defaults unless set afterwards.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Limits:            cfg.Limits(),
		Tolerance:         cfg.Timing.PositionTolerance,
		CommandTimeout:    cfg.CommandTimeout(),
		MoveTimeout:       cfg.MoveTimeout(),
		FreshnessMaxAge:   cfg.FreshnessMaxAge(),
		IdleStableCount:   cfg.Timing.IdleStableCount,
		MinMoveDuration:   cfg.MinMoveDuration(),
		VerifyPoll:        cfg.VerifyPoll(),
		VerifyWindow:      cfg.VerifyWindow(),
		HomingDetectFloor: cfg.HomingDetectFloor(),
		HomingTotalFloor:  cfg.HomingTotalFloor(),
		HomingCeiling:     cfg.HomingCeiling(),
		DefaultFeedrate:   cfg.Machine.DefaultFeedrate,
	}
}

// Client is the protocol client facade. All methods are safe for
// concurrent use; motion commands (moves, homing) serialize internally.
type Client struct {
	conn    transport.Conn
	opts    Options
	logger  *log.Logger
	metrics *metrics.Set

	writeMu sync.Mutex // serializes every outbound byte
	disp    *dispatcher
	trk     *tracker

	moveMu sync.Mutex // one motion sequence at a time

	mu        sync.Mutex
	alarmErr  *errors.MotionError // non-nil while the controller is alarmed
	aborts    map[int]chan error  // in-flight motion abort channels
	nextAbort int
	linkDown  bool
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New wraps an open transport connection and starts the reader loop.
func New(conn transport.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		trk:     newTracker(opts.SubscriberBuffer),
		aborts:  make(map[int]chan error),
		done:    make(chan struct{}),
	}
	c.disp = newDispatcher(conn, &c.writeMu, c.logger, c.metrics)

	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Connect dials the transport selected by cfg and wraps it in a Client.
func Connect(cfg *config.Config, opts Options) (*Client, error) {
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	return New(conn, opts), nil
}

// Dial opens the transport selected by cfg.
func Dial(cfg *config.Config) (transport.Conn, error) {
	switch cfg.Transport.Kind {
	case config.TransportSerial:
		scfg := serial.DefaultConfig()
		scfg.Device = cfg.Transport.Device
		scfg.BaudRate = cfg.Transport.Baud
		return transport.OpenSerial(scfg)
	case config.TransportTCP:
		return transport.DialTCP(cfg.Transport.Address, cfg.ConnectTimeout())
	case config.TransportWebSocket:
		return transport.DialWebSocket(cfg.Transport.Address, cfg.ConnectTimeout())
	default:
		return nil, errors.ConfigValidationError("transport.kind", "unknown kind "+cfg.Transport.Kind)
	}
}

// readLoop is the only reader of the connection. Every inbound line is
// classified and routed; malformed lines are counted and dropped so the
// stream keeps flowing.
func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Error("controller link lost: %v", err)
			connErr := errors.ConnectionError(c.conn.Name(), err)
			c.mu.Lock()
			c.linkDown = true
			c.mu.Unlock()
			c.disp.abortAll(connErr)
			c.fireAborts(connErr)
			return
		}
		if line == "" {
			continue
		}
		c.handleLine(line)
	}
}

func (c *Client) handleLine(line string) {
	msg := protocol.Classify(line)
	switch msg.Kind {
	case protocol.KindCommandOk, protocol.KindCommandError:
		c.disp.handleResponse(msg)
	case protocol.KindStatusReport:
		s := c.trk.apply(msg.Status, time.Now())
		c.metrics.RecordStatus(s.State, s.Position, s.HasPosition)
		if s.State == protocol.StateAlarm {
			c.raiseAlarm(0, "machine reports alarm state")
		}
	case protocol.KindAlarm:
		c.metrics.RecordAlarm()
		c.raiseAlarm(msg.Code, protocol.AlarmMeaning(msg.Code))
	case protocol.KindFeedback:
		c.logger.Debug("controller: %s", msg.Text)
	default:
		c.metrics.RecordUnrecognized()
		c.logger.Debug("unrecognized line %q", msg.Raw)
	}
}

// raiseAlarm latches the alarm and aborts all in-flight work once.
// Motion stays refused until Unlock or a successful homing cycle.
func (c *Client) raiseAlarm(code int, meaning string) {
	aerr := errors.AlarmError(code, meaning)
	c.mu.Lock()
	already := c.alarmErr != nil
	c.alarmErr = aerr
	c.mu.Unlock()
	if already {
		return
	}
	c.logger.Error("controller alarm %d: %s", code, meaning)
	c.disp.abortAll(aerr)
	c.fireAborts(aerr)
}

// addAbort registers a channel that receives the abort error when an
// alarm, emergency stop or link loss interrupts in-flight motion.
func (c *Client) addAbort() (int, chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextAbort
	c.nextAbort++
	ch := make(chan error, 1)
	c.aborts[id] = ch
	return id, ch
}

func (c *Client) removeAbort(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.aborts, id)
}

func (c *Client) fireAborts(err error) {
	c.mu.Lock()
	chans := make([]chan error, 0, len(c.aborts))
	for _, ch := range c.aborts {
		chans = append(chans, ch)
	}
	c.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- err:
		default:
		}
	}
}

// checkReady refuses motion while closed, disconnected or alarmed.
func (c *Client) checkReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(errors.ErrConnection, "client is closed")
	}
	if c.linkDown {
		return errors.New(errors.ErrConnection, "controller link is down")
	}
	if c.alarmErr != nil {
		return c.alarmErr
	}
	return nil
}

func (c *Client) alarmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alarmErr != nil
}

func (c *Client) clearAlarm() {
	c.mu.Lock()
	c.alarmErr = nil
	c.mu.Unlock()
}

// sendImmediate writes one real-time byte outside the command queue.
// The shared write mutex keeps it from splitting a line command.
func (c *Client) sendImmediate(b byte, kind string) error {
	c.writeMu.Lock()
	_, err := c.conn.Write([]byte{b})
	c.writeMu.Unlock()
	c.metrics.RecordImmediate(kind)
	if err != nil {
		return errors.ConnectionError(c.conn.Name(), err)
	}
	return nil
}

// MoveTo issues an absolute move and blocks until it verifiably
// completed. Targets are validated against the soft limits before any
// byte is written.
func (c *Client) MoveTo(ctx context.Context, target axes.Position, feedrate float64) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.opts.Limits.Validate(target); err != nil {
		return err
	}
	if feedrate <= 0 {
		feedrate = c.opts.DefaultFeedrate
	}

	zero := false
	if cur, ok := c.trk.Current(); ok && cur.HasPosition {
		zero = cur.Position.ApproxEqual(target, c.opts.Tolerance)
	}
	return c.runMove(ctx, protocol.AbsoluteMove(target, feedrate), zero)
}

// MoveRelative issues a relative move. The resulting absolute target is
// validated when the current position is known.
func (c *Client) MoveRelative(ctx context.Context, delta axes.Position, feedrate float64) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if cur, ok := c.trk.Current(); ok && cur.HasPosition {
		if err := c.opts.Limits.Validate(cur.Position.Add(delta)); err != nil {
			return err
		}
	}
	if feedrate <= 0 {
		feedrate = c.opts.DefaultFeedrate
	}

	zero := delta.MaxDelta(axes.Position{}) <= c.opts.Tolerance
	return c.runMove(ctx, protocol.RelativeMove(delta, feedrate), zero)
}

// Position returns the current work position. A cached status sample no
// older than maxAge (the configured default when maxAge <= 0) is
// returned without touching the wire; otherwise exactly one status query
// goes out and the call waits for the refreshed report. fresh reports
// whether the returned position met the age bound.
func (c *Client) Position(ctx context.Context, maxAge time.Duration) (pos axes.Position, fresh bool, err error) {
	if maxAge <= 0 {
		maxAge = c.opts.FreshnessMaxAge
	}
	cur, ok := c.trk.Current()
	if ok && cur.HasPosition && time.Since(cur.At) <= maxAge {
		return cur.Position, true, nil
	}

	after := c.trk.Seq()
	c.metrics.RecordManualQuery()
	if err := c.sendImmediate(protocol.ByteStatusQuery, "status_query"); err != nil {
		if ok && cur.HasPosition {
			return cur.Position, false, nil
		}
		return axes.Position{}, false, err
	}

	wctx := ctx
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.opts.CommandTimeout)
		defer cancel()
	}
	s, werr := c.trk.waitAfter(wctx, after)
	if werr != nil {
		// Best effort: stale data beats no data.
		if ok && cur.HasPosition {
			return cur.Position, false, nil
		}
		return axes.Position{}, false, errors.TimeoutError("?", "waiting for status report")
	}
	return s.Position, s.HasPosition, nil
}

// State returns the last reported machine state, StateDisconnected when
// no report has arrived or the link is gone.
func (c *Client) State() protocol.MachineState {
	c.mu.Lock()
	down := c.closed || c.linkDown
	c.mu.Unlock()
	if down {
		return protocol.StateDisconnected
	}
	cur, ok := c.trk.Current()
	if !ok {
		return protocol.StateDisconnected
	}
	return cur.State
}

// EmergencyStop sends the soft-reset byte immediately, jumping every
// queue, and aborts all in-flight work. Fire and forget: the caller gets
// the write error only.
func (c *Client) EmergencyStop() error {
	c.metrics.RecordEmergencyStop()
	c.logger.Warn("emergency stop")
	err := c.sendImmediate(protocol.ByteSoftReset, "soft_reset")
	estop := errors.EmergencyStopError()
	c.disp.abortAll(estop)
	c.fireAborts(estop)
	return err
}

// FeedHold pauses motion with the real-time hold byte.
func (c *Client) FeedHold() error {
	return c.sendImmediate(protocol.ByteFeedHold, "feed_hold")
}

// Resume continues motion after a feed hold.
func (c *Client) Resume() error {
	return c.sendImmediate(protocol.ByteCycleResume, "cycle_resume")
}

// Unlock clears a latched alarm with $X. Motion stays refused until this
// succeeds (or a homing cycle completes).
func (c *Client) Unlock(ctx context.Context) error {
	sctx := ctx
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.opts.CommandTimeout)
		defer cancel()
	}
	if err := c.disp.Submit(sctx, protocol.Unlock()); err != nil {
		return err
	}
	c.clearAlarm()
	c.logger.Info("alarm cleared")
	return nil
}

// Subscribe returns a channel of status samples and a release function.
// The channel is buffered; samples are dropped rather than ever blocking
// the reader loop.
func (c *Client) Subscribe() (<-chan StatusSample, func()) {
	id, ch := c.trk.subscribe()
	return ch, func() { c.trk.unsubscribe(id) }
}

// Close shuts the client down and waits for the reader loop to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		err = c.conn.Close()
		c.disp.close()
		c.fireAborts(errors.New(errors.ErrConnection, "client is closed"))
		c.wg.Wait()
	})
	return err
}
