// Command relay-controller drives GPIO relays from WebSocket and cloud feed
// commands, samples attached sensors and serves a status page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/relay-controller/internal/clock"
	"github.com/sweeney/relay-controller/internal/connectivity"
	"github.com/sweeney/relay-controller/internal/controller"
	"github.com/sweeney/relay-controller/internal/device"
	"github.com/sweeney/relay-controller/internal/discovery"
	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/indicator"
	"github.com/sweeney/relay-controller/internal/mqtt"
	"github.com/sweeney/relay-controller/internal/sensor"
	"github.com/sweeney/relay-controller/internal/socket"
	"github.com/sweeney/relay-controller/internal/status"
	"github.com/sweeney/relay-controller/internal/store"
	"github.com/sweeney/relay-controller/internal/web"
)

// networkRefresh is how often the status page's address is re-read.
const networkRefresh = 30 * time.Second

type options struct {
	configPath     string
	httpAddr       string
	tick           time.Duration
	chip           string
	ledPin         int
	ledActiveLow   bool
	iface          string
	iioRoot        string
	adcDevice      int
	sensorInterval time.Duration
	setup          bool
	mdns           bool
	printState     bool
	debug          bool
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("relay-controller", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "/var/lib/relay-controller/record.yaml", "Device record file")
	fs.StringVar(&o.httpAddr, "http", ":80", "HTTP status and socket address (empty to disable)")
	fs.DurationVar(&o.tick, "tick", 10*time.Millisecond, "Controller loop tick interval")
	fs.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO chip for relays and the status LED")
	fs.IntVar(&o.ledPin, "led-pin", gpio.DefaultLEDPin, "BCM pin of the status LED (-1 to disable)")
	fs.BoolVar(&o.ledActiveLow, "led-active-low", false, "Status LED is wired active low")
	fs.StringVar(&o.iface, "iface", connectivity.DefaultInterface, "Network interface to supervise")
	fs.StringVar(&o.iioRoot, "iio-root", sensor.DefaultIIORoot, "IIO sysfs root for sensors")
	fs.IntVar(&o.adcDevice, "adc-device", 0, "IIO device number of the analog sensor ADC")
	fs.DurationVar(&o.sensorInterval, "sensor-interval", sensor.DefaultInterval, "Sensor polling interval")
	fs.BoolVar(&o.setup, "setup", false, "Start in setup mode (no association, setup indicator)")
	fs.BoolVar(&o.mdns, "mdns", true, "Announce the HTTP server over mDNS once connected")
	fs.BoolVar(&o.printState, "print-state", false, "Print current output state and exit")
	fs.BoolVar(&o.debug, "debug", false, "Development logging at debug level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.tick <= 0 {
		return options{}, fmt.Errorf("-tick must be > 0, got %v", o.tick)
	}
	if o.sensorInterval <= 0 {
		return options{}, fmt.Errorf("-sensor-interval must be > 0, got %v", o.sensorInterval)
	}
	return o, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(opts.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(opts, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(opts options, logger *zap.Logger) error {
	// Load the device record
	st := store.NewFileStore(opts.configPath)
	rec, err := st.Load()
	if errors.Is(err, store.ErrConfigVersionMismatch) {
		logger.Warn("device record reset to defaults", zap.String("path", st.Path()), zap.Error(err))
	} else if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	// Print state mode: inspect the lines without driving them
	if opts.printState {
		relays, err := gpio.InspectRelays(opts.chip, rec.Outputs.Pins, rec.Outputs.ActiveLow)
		if err != nil {
			return fmt.Errorf("inspect relays: %w", err)
		}
		defer relays.Close()
		live, err := relays.Read()
		if err != nil {
			return fmt.Errorf("read relays: %w", err)
		}
		printState(os.Stdout, rec, live)
		return nil
	}

	// Initialize GPIO at the persisted levels
	relays, err := gpio.NewRelays(opts.chip, rec.Outputs.Pins, rec.Outputs.ActiveLow, rec.State)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer relays.Close()

	var led indicator.Output = discardLED{}
	if opts.ledPin >= 0 {
		l, err := gpio.NewLED(opts.chip, opts.ledPin, opts.ledActiveLow)
		if err != nil {
			return fmt.Errorf("init status led: %w", err)
		}
		defer l.Close()
		led = l
	}

	clk := clock.System{}
	ind := indicator.New(led, logger)
	conn := connectivity.New(connectivity.Config{SSID: rec.WiFi.SSID}, connectivity.NewSysfsLink(opts.iface, logger), ind, logger)

	inbox := controller.NewInbox()
	hub := socket.NewHub(inbox, logger)
	defer hub.Close()

	session := mqtt.NewPahoSession(rec.Cloud.Broker, rec.Cloud.Username, rec.Cloud.Key, rec.DeviceName, logger)
	cloud := mqtt.New(mirrorConfig(rec), session, ind, func() string { return interfaceIP(opts.iface) }, logger)
	cloud.OnRelayFeed(func(on bool) {
		if err := inbox.Submit(controller.Command{All: true, On: on}); err != nil {
			logger.Warn("dropping relay feed command", zap.Bool("on", on), zap.Error(err))
		}
	})
	defer cloud.Close()

	dev := device.New(relays, st, hub, logger)
	dev.SetMirror(cloud)

	poller, err := sensor.New(sensor.ChannelsFromRecord(rec.Sensors), sensor.NewIIOSource(opts.iioRoot, opts.adcDevice), opts.sensorInterval, logger)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}

	var mdns *discovery.Advertiser
	if opts.mdns && opts.httpAddr != "" {
		port, err := httpPort(opts.httpAddr)
		if err != nil {
			return fmt.Errorf("mdns port: %w", err)
		}
		registrar := discovery.NewZeroconfRegistrar(opts.iface, []string{"path=/"})
		defer registrar.Shutdown()
		mdns = discovery.New(rec.AdvertisedName(), port, registrar, ind, logger)
	}

	// Initialize status tracker
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceName:       rec.DeviceName,
		Chip:             opts.chip,
		Pins:             rec.Outputs.Pins,
		ActiveLow:        rec.Outputs.ActiveLow,
		TickMs:           opts.tick.Milliseconds(),
		SensorIntervalMs: opts.sensorInterval.Milliseconds(),
		HTTPAddr:         opts.httpAddr,
		Broker:           rec.Cloud.Broker,
		CloudEnabled:     rec.Cloud.Enabled,
	})
	tracker.SetPeerCounter(hub.Len)
	tracker.SetNetwork(readNetworkInfo(opts.iface, rec.WiFi.SSID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, hub, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http server listening", zap.String("addr", opts.httpAddr))
	}

	go refreshNetwork(ctx, tracker, opts.iface, rec.WiFi.SSID)

	rt := controller.New(controller.Components{
		Clock:        clk,
		Indicator:    ind,
		Connectivity: conn,
		Cloud:        cloud,
		Discovery:    mdns,
		Device:       dev,
		Sensors:      poller,
		Broadcaster:  hub,
		Tracker:      tracker,
	}, logger)

	if opts.setup {
		rt.EnterSetupMode(clk.Now())
	}
	rt.Start(clk.Now())

	logger.Info("started",
		zap.String("device", rec.DeviceName),
		zap.Ints("pins", rec.Outputs.Pins),
		zap.Int("sensors", len(rec.Sensors)),
		zap.Duration("tick", opts.tick),
		zap.Bool("cloud", rec.Cloud.Enabled),
		zap.Bool("mdns", mdns != nil),
		zap.Bool("setup", opts.setup),
	)

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()

	err = rt.Run(ctx, ticker.C, inbox.Commands(), inbox.Joins())
	logger.Info("shutting down")
	return err
}

// httpPort returns the TCP port the status server listens on.
func httpPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.Atoi(p); err == nil {
		if n <= 0 || n > 65535 {
			return 0, fmt.Errorf("port %d out of range", n)
		}
		return n, nil
	}
	return net.LookupPort("tcp", p)
}

// mirrorConfig maps the persisted cloud settings onto the mirror.
func mirrorConfig(rec store.Record) mqtt.Config {
	return mqtt.Config{
		Enabled:   rec.Cloud.Enabled,
		Username:  rec.Cloud.Username,
		Key:       rec.Cloud.Key,
		RelayFeed: rec.Cloud.RelayFeed,
		IPFeed:    rec.Cloud.IPFeed,
	}
}

func refreshNetwork(ctx context.Context, tracker *status.Tracker, iface, ssid string) {
	t := time.NewTicker(networkRefresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tracker.SetNetwork(readNetworkInfo(iface, ssid))
		}
	}
}

func readNetworkInfo(iface, ssid string) *status.NetworkInfo {
	return &status.NetworkInfo{
		Interface: iface,
		IP:        interfaceIP(iface),
		SSID:      ssid,
	}
}

// interfaceIP returns the first IPv4 address of iface, or "".
func interfaceIP(iface string) string {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			if v4 := ipn.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

// printState writes one line per output with the live line level and the
// persisted state.
func printState(w io.Writer, rec store.Record, live []bool) {
	for i, pin := range rec.Outputs.Pins {
		saved := i < len(rec.State) && rec.State[i]
		line := "?"
		if i < len(live) {
			line = stateString(live[i])
		}
		fmt.Fprintf(w, "output %d (pin %d): %s (saved %s)\n", i, pin, line, stateString(saved))
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// discardLED stands in when no status LED is fitted.
type discardLED struct{}

func (discardLED) SetBrightness(uint8) error { return nil }
