package connectivity

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultInterface is the wireless interface watched by SysfsLink.
const DefaultInterface = "wlan0"

// SysfsLink watches an interface's operational state. Association itself is
// owned by the OS network stack (wpa_supplicant/NetworkManager), so Begin and
// Disconnect only record intent.
type SysfsLink struct {
	iface  string
	root   string
	logger *zap.Logger
}

// NewSysfsLink returns a link for iface under /sys/class/net.
func NewSysfsLink(iface string, logger *zap.Logger) *SysfsLink {
	return &SysfsLink{
		iface:  iface,
		root:   "/sys/class/net",
		logger: logger.With(zap.String("component", "link"), zap.String("iface", iface)),
	}
}

// Begin notes that association was requested.
func (l *SysfsLink) Begin() error {
	l.logger.Debug("association requested")
	return nil
}

// Connected reports whether operstate is "up".
func (l *SysfsLink) Connected() bool {
	data, err := os.ReadFile(filepath.Join(l.root, l.iface, "operstate"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "up"
}

// Disconnect notes that the association was dropped.
func (l *SysfsLink) Disconnect() {
	l.logger.Debug("association dropped")
}

// FakeLink is a scripted Link for tests.
type FakeLink struct {
	Up          bool
	BeginError  error
	Begins      int
	Disconnects int
}

// Begin records the call.
func (f *FakeLink) Begin() error {
	f.Begins++
	return f.BeginError
}

// Connected returns Up.
func (f *FakeLink) Connected() bool { return f.Up }

// Disconnect records the call.
func (f *FakeLink) Disconnect() { f.Disconnects++ }
