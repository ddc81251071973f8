package discovery

import (
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// ZeroconfRegistrar announces the service with a zeroconf responder.
type ZeroconfRegistrar struct {
	iface  string
	txt    []string
	server *zeroconf.Server
}

// NewZeroconfRegistrar returns a registrar bound to iface, or to every
// interface when iface is empty or missing. txt is published with the
// service.
func NewZeroconfRegistrar(iface string, txt []string) *ZeroconfRegistrar {
	return &ZeroconfRegistrar{iface: iface, txt: txt}
}

// interfaces returns nil, meaning all interfaces, unless iface resolves.
func (z *ZeroconfRegistrar) interfaces() []net.Interface {
	if z.iface == "" {
		return nil
	}
	ifc, err := net.InterfaceByName(z.iface)
	if err != nil {
		return nil
	}
	return []net.Interface{*ifc}
}

// Register replaces any running responder with one for instance.
func (z *ZeroconfRegistrar) Register(instance string, port int) error {
	z.Shutdown()
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, z.txt, z.interfaces())
	if err != nil {
		return fmt.Errorf("register %s: %w", ServiceType, err)
	}
	z.server = server
	return nil
}

// Shutdown stops the responder.
func (z *ZeroconfRegistrar) Shutdown() {
	if z.server != nil {
		z.server.Shutdown()
		z.server = nil
	}
}
