// Package resolv turns the gateway IP into a gateway MAC by asking on
// the wire: one broadcast ARP request, then polling capture for the
// matching reply.
package resolv

import (
	"errors"
	"time"

	"github.com/ghedo/pktizr/internal/netdev"
	"github.com/ghedo/pktizr/internal/pkt"
)

// ErrARPTimeout is returned when no matching ARP reply arrives in time.
// It is fatal at startup.
var ErrARPTimeout = errors.New("resolv: arp timeout")

const arpTimeout = 5 * time.Second

// GatewayMAC broadcasts a who-has for gatewayIP and waits up to five
// seconds for a reply addressed to localIP. Non-ARP traffic captured in
// the meantime is discarded.
func GatewayMAC(dev netdev.Device, localMAC [6]byte, localIP, gatewayIP uint32) ([6]byte, error) {
	var none [6]byte

	req := pkt.NewARP(pkt.ARPOpRequest)
	req.HwSrc = localMAC
	req.ProtoSrc = localIP
	req.ProtoDst = gatewayIP

	chain := pkt.NewChain(&pkt.Eth{Src: localMAC, Dst: pkt.Broadcast}, req)

	buf := dev.GetBuf()
	n, err := pkt.Pack(buf, chain)
	if err != nil {
		return none, err
	}
	if err := dev.Inject(buf[:n]); err != nil {
		return none, err
	}

	deadline := time.Now().Add(arpTimeout)
	for time.Now().Before(deadline) {
		frame, ok := dev.Capture()
		if !ok {
			continue
		}

		reply, err := pkt.Unpack(frame)
		dev.Release()
		if err != nil {
			continue
		}

		arp := reply.ARP()
		if arp == nil || arp.Op != pkt.ARPOpReply {
			continue
		}
		if arp.ProtoSrc != gatewayIP || arp.ProtoDst != localIP {
			continue
		}
		return arp.HwSrc, nil
	}
	return none, ErrARPTimeout
}
