// Package netdev abstracts the raw link-layer device behind one
// capability set so the engine treats AF_PACKET, pcap, and raw-socket
// backends identically.
package netdev

import (
	"errors"
	"fmt"
)

// ErrOpenFailed wraps driver initialisation failures. It is fatal at
// startup.
var ErrOpenFailed = errors.New("netdev: open failed")

// Device is a raw link-layer reader/writer.
//
// GetBuf returns a driver-owned scratch buffer for the next outbound
// frame; its contents are only valid until the next GetBuf or Inject.
// Capture is non-blocking within a ~1ms poll window and returns false
// when no frame was ready; the returned slice is driver-owned and valid
// only until Release. Transient I/O interruptions are retried inside the
// driver.
type Device interface {
	GetBuf() []byte
	Inject(frame []byte) error
	Capture() ([]byte, bool)
	Release()
	SetFilter(filter string) error
	Close() error
}

// Open binds a driver to an interface. Known drivers are "afpacket"
// (linux), "pcap", and "rawsock" (linux); the empty string selects the
// platform default.
func Open(driver, iface string) (Device, error) {
	if driver == "" {
		driver = defaultDriver
	}
	switch driver {
	case "afpacket":
		return openAFPacket(iface)
	case "pcap":
		return openPcap(iface)
	case "rawsock":
		return openRawSock(iface)
	}
	return nil, fmt.Errorf("%w: unknown driver %q", ErrOpenFailed, driver)
}
