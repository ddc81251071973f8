// Package discovery announces the status server on the local network over
// mDNS so the device can be reached by name once it has joined a network.
package discovery

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/metrics"
)

// Service coordinates.
const (
	ServiceType = "_http._tcp"
	Domain      = "local."
)

// ErrNoName is returned by Start when there is no name to announce.
var ErrNoName = errors.New("no mdns name configured")

// Registrar publishes one service instance on the network.
type Registrar interface {
	// Register announces instance on port, replacing any earlier
	// registration. It must not block on the network.
	Register(instance string, port int) error
	// Shutdown withdraws the current registration, if any.
	Shutdown()
}

// Indicator receives the program that reports the outcome.
type Indicator interface {
	Start(p indicator.Program, now time.Time)
}

// Advertiser announces the HTTP service each time the network comes up.
// Not safe for concurrent use; the controller loop is its only caller.
type Advertiser struct {
	name   string
	port   int
	reg    Registrar
	ind    Indicator
	logger *zap.Logger

	active bool
}

// New returns an advertiser for name on port.
func New(name string, port int, reg Registrar, ind Indicator, logger *zap.Logger) *Advertiser {
	return &Advertiser{
		name:   name,
		port:   port,
		reg:    reg,
		ind:    ind,
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// Start registers the service and shows Success, or Error when the
// registration is refused.
func (a *Advertiser) Start(now time.Time) error {
	if a.name == "" {
		a.ind.Start(indicator.Error, now)
		return ErrNoName
	}
	if err := a.reg.Register(a.name, a.port); err != nil {
		a.active = false
		metrics.MDNSAdvertised.Set(0)
		a.ind.Start(indicator.Error, now)
		a.logger.Warn("advertise", zap.String("name", a.name), zap.Error(err))
		return fmt.Errorf("advertise %s: %w", a.name, err)
	}
	a.active = true
	metrics.MDNSAdvertised.Set(1)
	a.ind.Start(indicator.Success, now)
	a.logger.Info("advertising",
		zap.String("name", a.name),
		zap.String("service", ServiceType),
		zap.Int("port", a.port),
	)
	return nil
}

// Stop withdraws the announcement. It is a no-op when nothing is announced.
func (a *Advertiser) Stop() {
	if !a.active {
		return
	}
	a.reg.Shutdown()
	a.active = false
	metrics.MDNSAdvertised.Set(0)
	a.logger.Info("advertisement withdrawn", zap.String("name", a.name))
}

// Active reports whether the service is currently announced.
func (a *Advertiser) Active() bool { return a.active }

// Name returns the announced instance name.
func (a *Advertiser) Name() string { return a.name }
