//go:build !linux

package netdev

import "fmt"

const defaultDriver = "pcap"

func openAFPacket(iface string) (Device, error) {
	return nil, fmt.Errorf("%w: afpacket is linux-only", ErrOpenFailed)
}

func openRawSock(iface string) (Device, error) {
	return nil, fmt.Errorf("%w: rawsock is linux-only", ErrOpenFailed)
}
