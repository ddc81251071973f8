// Package controller owns the single loop that ticks every component.
//
// All component state lives in a Runtime and is only touched from the
// goroutine running Run. Other goroutines (socket pumps, the broker client)
// hand values in over channels.
package controller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/clock"
	"github.com/sweeney/relay-controller/internal/connectivity"
	"github.com/sweeney/relay-controller/internal/device"
	"github.com/sweeney/relay-controller/internal/discovery"
	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/mqtt"
	"github.com/sweeney/relay-controller/internal/protocol"
	"github.com/sweeney/relay-controller/internal/sensor"
	"github.com/sweeney/relay-controller/internal/status"
)

// QueueSize bounds the commands waiting for the next tick.
const QueueSize = 32

// ErrQueueFull is returned when a command arrives while the queue is full.
var ErrQueueFull = errors.New("command queue full")

// Command is an inbound relay request.
type Command struct {
	Index int
	On    bool
	// All applies On to every output; used by the cloud relay feed.
	All bool
}

// Peer is a connected socket peer.
type Peer interface {
	ID() string
	// Send queues msg for this peer only. It reports false if the message
	// was dropped.
	Send(msg protocol.Message) bool
}

// Components is everything the runtime ticks. Cloud, Discovery, Sensors
// and Tracker may be nil.
type Components struct {
	Clock        clock.Clock
	Indicator    *indicator.Engine
	Connectivity *connectivity.Manager
	Cloud        *mqtt.Mirror
	Discovery    *discovery.Advertiser
	Device       *device.Manager
	Sensors      *sensor.Poller
	Broadcaster  device.Broadcaster
	Tracker      *status.Tracker
}

// Runtime is the explicit context for the loop. Not safe for concurrent use.
type Runtime struct {
	clock   clock.Clock
	ind     *indicator.Engine
	conn    *connectivity.Manager
	cloud   *mqtt.Mirror
	mdns    *discovery.Advertiser
	dev     *device.Manager
	sensors *sensor.Poller
	bc      device.Broadcaster
	tracker *status.Tracker
	logger  *zap.Logger

	queue []Command
}

// New returns a runtime over c.
func New(c Components, logger *zap.Logger) *Runtime {
	return &Runtime{
		clock:   c.Clock,
		ind:     c.Indicator,
		conn:    c.Connectivity,
		cloud:   c.Cloud,
		mdns:    c.Discovery,
		dev:     c.Device,
		sensors: c.Sensors,
		bc:      c.Broadcaster,
		tracker: c.Tracker,
		logger:  logger.With(zap.String("component", "controller")),
		queue:   make([]Command, 0, QueueSize),
	}
}

// Start restores the persisted relay state and, outside setup mode, begins
// association. It is called once before Run.
func (r *Runtime) Start(now time.Time) {
	if err := r.dev.Restore(); err != nil {
		r.logger.Error("restore outputs", zap.Error(err))
	}
	if r.conn.SetupMode() {
		r.updateStatus()
		return
	}
	if r.dev.State(0) {
		r.ind.Start(indicator.Active, now)
	}
	if err := r.conn.Connect(now); err != nil {
		r.logger.Warn("connect", zap.Error(err))
	}
	r.updateStatus()
}

// EnterSetupMode freezes connectivity and shows the setup program until the
// process restarts. Call it before Start.
func (r *Runtime) EnterSetupMode(now time.Time) {
	r.conn.SetSetupMode(true)
	r.ind.Start(indicator.Setup, now)
	r.logger.Info("setup mode")
	r.updateStatus()
}

// Enqueue adds cmd for the next tick.
func (r *Runtime) Enqueue(cmd Command) error {
	if len(r.queue) >= QueueSize {
		metrics.CommandsRejected.Inc()
		return ErrQueueFull
	}
	r.queue = append(r.queue, cmd)
	return nil
}

// Pending returns the number of queued commands.
func (r *Runtime) Pending() int { return len(r.queue) }

// Tick advances every component once, in a fixed order.
func (r *Runtime) Tick(now time.Time) {
	prev := r.ind.Program()
	r.ind.Tick(now)
	// A finished one-shot program falls back to the idle ramp; the primary
	// output takes the steady program back.
	if prev != indicator.Idle && r.ind.Program() == indicator.Idle && r.dev.State(0) {
		r.ind.Start(indicator.Active, now)
	}
	r.tickNetwork(now)
	r.drain(now)
	r.tickSensors(now)
	r.updateStatus()
}

func (r *Runtime) tickNetwork(now time.Time) {
	tr, err := r.conn.Tick(now)
	if err != nil {
		r.logger.Warn("connectivity", zap.Error(err))
	}
	if tr != nil {
		r.linkChanged(now, *tr)
	}
	if r.cloud == nil {
		return
	}
	if err := r.cloud.Tick(now); err != nil {
		r.logger.Warn("cloud", zap.Error(err))
	}
}

// linkChanged withdraws the mDNS announcement when the link drops and, on
// each transition into Connected, announces the device and starts the cloud
// mirror, in that order.
func (r *Runtime) linkChanged(now time.Time, tr connectivity.Transition) {
	if tr.From == connectivity.Connected && r.mdns != nil {
		r.mdns.Stop()
	}
	if tr.To != connectivity.Connected {
		return
	}
	if r.mdns != nil {
		if err := r.mdns.Start(now); err != nil {
			r.logger.Warn("mdns", zap.Error(err))
		}
	}
	if r.cloud != nil {
		if err := r.cloud.Start(now); err != nil {
			r.logger.Warn("cloud start", zap.Error(err))
		}
	}
}

func (r *Runtime) drain(now time.Time) {
	for _, cmd := range r.queue {
		r.apply(now, cmd)
	}
	r.queue = r.queue[:0]
}

func (r *Runtime) apply(now time.Time, cmd Command) {
	before := r.dev.State(0)

	var err error
	if cmd.All {
		err = r.dev.ApplyAll(cmd.On)
	} else {
		_, err = r.dev.Apply(cmd.Index, cmd.On)
	}
	if err != nil {
		r.logger.Warn("apply command",
			zap.Int("index", cmd.Index),
			zap.Bool("all", cmd.All),
			zap.Error(err),
		)
	}

	if after := r.dev.State(0); after != before {
		r.showPrimary(now, after)
	}
}

// showPrimary mirrors output 0 on the indicator: steady while on, back to
// the idle ramp when switched off.
func (r *Runtime) showPrimary(now time.Time, on bool) {
	if on {
		r.ind.Start(indicator.Active, now)
		return
	}
	if r.ind.Program() == indicator.Active {
		r.ind.Start(indicator.Idle, now)
	}
}

func (r *Runtime) tickSensors(now time.Time) {
	if r.sensors == nil {
		return
	}
	for _, reading := range r.sensors.Tick(now) {
		r.bc.Broadcast(reading)
	}
}

// Join sends the full per-channel state to p alone: one relay message per
// output followed by the last sensor readings.
func (r *Runtime) Join(p Peer) {
	sent, dropped := 0, 0
	count := func(ok bool) {
		if ok {
			sent++
		} else {
			dropped++
		}
	}
	for i, on := range r.dev.Snapshot() {
		count(p.Send(protocol.NewRelay(i, on)))
	}
	if r.sensors != nil {
		for _, reading := range r.sensors.Readings() {
			count(p.Send(reading))
		}
	}
	r.logger.Debug("peer joined",
		zap.String("peer", p.ID()),
		zap.Int("sent", sent),
		zap.Int("dropped", dropped),
	)
}

// Run is the loop. It returns when ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, tick <-chan time.Time, commands <-chan Command, joins <-chan Peer) error {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("loop stopped")
			return nil

		case <-tick:
			r.Tick(r.clock.Now())

		case cmd := <-commands:
			if err := r.Enqueue(cmd); err != nil {
				r.logger.Warn("dropping command", zap.Int("index", cmd.Index), zap.Error(err))
			}

		case p := <-joins:
			r.Join(p)
		}
	}
}

func (r *Runtime) updateStatus() {
	if r.tracker == nil {
		return
	}
	cs := r.conn.State()
	st := status.State{
		Outputs:      r.dev.Snapshot(),
		Connectivity: cs.Phase.String(),
		Program:      r.ind.Program().String(),
		SetupMode:    r.conn.SetupMode(),
	}
	if cs.Phase == connectivity.Connecting {
		st.Attempt = cs.Attempt
	}
	if r.cloud != nil {
		ms := r.cloud.State()
		st.Cloud = ms.Phase.String()
		st.CloudBuffered = ms.Buffered
	}
	if r.sensors != nil {
		samples := r.sensors.Samples()
		for i, ch := range r.sensors.Channels() {
			if ch.Kind == sensor.KindNone {
				continue
			}
			s := samples[i]
			st.Sensors = append(st.Sensors, status.SensorInfo{
				Index:       i,
				Kind:        ch.Kind.String(),
				Pin:         ch.Pin,
				Temperature: s.Temperature,
				Humidity:    s.Humidity,
				Light:       s.Light,
				Moisture:    s.Moisture,
			})
		}
	}
	r.tracker.Update(st)
}

// Inbox carries commands and joins from other goroutines to Run. Sends never
// block; a full inbox rejects the value.
type Inbox struct {
	commands chan Command
	joins    chan Peer
}

// NewInbox returns an inbox buffering up to QueueSize commands.
func NewInbox() *Inbox {
	return &Inbox{
		commands: make(chan Command, QueueSize),
		joins:    make(chan Peer, 8),
	}
}

// Submit offers cmd to the loop.
func (b *Inbox) Submit(cmd Command) error {
	select {
	case b.commands <- cmd:
		return nil
	default:
		metrics.CommandsRejected.Inc()
		return ErrQueueFull
	}
}

// Join offers a newly connected peer to the loop.
func (b *Inbox) Join(p Peer) bool {
	select {
	case b.joins <- p:
		return true
	default:
		return false
	}
}

// Commands is the receive side for Run.
func (b *Inbox) Commands() <-chan Command { return b.commands }

// Joins is the receive side for Run.
func (b *Inbox) Joins() <-chan Peer { return b.joins }
