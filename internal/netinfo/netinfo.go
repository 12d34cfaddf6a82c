// Package netinfo discovers the local network bootstrap data the engine
// needs before it can craft frames: interface, local MAC, local IPv4 and
// gateway IPv4. The gateway MAC is resolved separately over the wire by
// the resolv package.
package netinfo

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Fatal discovery errors.
var (
	ErrRouteResolve = errors.New("netinfo: no default route")
	ErrIfaceResolve = errors.New("netinfo: interface resolve failed")
)

// Details is the discovered bootstrap configuration.
type Details struct {
	Iface     string
	LocalMAC  [6]byte
	LocalIP   uint32
	GatewayIP uint32
}

const routeFile = "/proc/net/route"

// Discover finds the default route (restricted to iface when non-empty)
// and the interface's MAC and first IPv4 address.
func Discover(iface string) (*Details, error) {
	name, gw, err := defaultRoute(iface)
	if err != nil {
		return nil, err
	}

	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIfaceResolve, name, err)
	}
	if len(ifi.HardwareAddr) != 6 {
		return nil, fmt.Errorf("%w: %s has no MAC", ErrIfaceResolve, name)
	}

	d := &Details{Iface: name, GatewayIP: gw}
	copy(d.LocalMAC[:], ifi.HardwareAddr)

	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIfaceResolve, name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			d.LocalIP = uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
			break
		}
	}
	if d.LocalIP == 0 {
		return nil, fmt.Errorf("%w: no IPv4 address on %s", ErrIfaceResolve, name)
	}
	return d, nil
}

// defaultRoute parses /proc/net/route for the 0.0.0.0/0 entry. The
// gateway column is hex in little-endian byte order.
func defaultRoute(iface string) (string, uint32, error) {
	data, err := os.ReadFile(routeFile)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrRouteResolve, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		if iface != "" && fields[0] != iface {
			continue
		}
		gwHex, err := hex.DecodeString(fields[2])
		if err != nil || len(gwHex) != 4 {
			continue
		}
		gw := uint32(gwHex[3])<<24 | uint32(gwHex[2])<<16 | uint32(gwHex[1])<<8 | uint32(gwHex[0])
		return fields[0], gw, nil
	}
	return "", 0, ErrRouteResolve
}
