package resolv

import (
	"testing"

	"github.com/ghedo/pktizr/internal/netdev"
	"github.com/ghedo/pktizr/internal/pkt"
)

var (
	localMAC = [6]byte{0x02, 0, 0, 0, 0, 0x01}
	gwMAC    = [6]byte{0x02, 0, 0, 0, 0, 0xfe}
)

const (
	localIP = 0xc0a80105 // 192.168.1.5
	gwIP    = 0xc0a80101 // 192.168.1.1
)

// answerARP plays the gateway on the far end of the loopback: it waits
// for a who-has and answers with the given source protocol address.
func answerARP(t *testing.T, peer netdev.Device, fromIP uint32) {
	t.Helper()
	for i := 0; i < 5000; i++ {
		frame, ok := peer.Capture()
		if !ok {
			continue
		}
		c, err := pkt.Unpack(frame)
		peer.Release()
		if err != nil {
			continue
		}
		req := c.ARP()
		if req == nil || req.Op != pkt.ARPOpRequest {
			continue
		}

		rep := pkt.NewARP(pkt.ARPOpReply)
		rep.HwSrc = gwMAC
		rep.ProtoSrc = fromIP
		rep.HwDst = req.HwSrc
		rep.ProtoDst = req.ProtoSrc

		chain := pkt.NewChain(&pkt.Eth{Src: gwMAC, Dst: req.HwSrc}, rep)
		buf := peer.GetBuf()
		n, err := pkt.Pack(buf, chain)
		if err != nil {
			t.Errorf("pack reply: %v", err)
			return
		}
		peer.Inject(buf[:n])
		return
	}
	t.Error("no arp request seen")
}

func TestGatewayMAC(t *testing.T) {
	lo := netdev.NewLoopback()
	go answerARP(t, lo.B, gwIP)

	mac, err := GatewayMAC(lo.A, localMAC, localIP, gwIP)
	if err != nil {
		t.Fatalf("GatewayMAC: %v", err)
	}
	if mac != gwMAC {
		t.Errorf("mac = % x, want % x", mac, gwMAC)
	}
}

func TestGatewayMACIgnoresWrongSender(t *testing.T) {
	lo := netdev.NewLoopback()
	// A reply from the wrong address must not satisfy the resolver; after
	// it, the right one arrives.
	go func() {
		answerARP(t, lo.B, 0x01020304)
		answerARPAgain(lo.B)
	}()

	mac, err := GatewayMAC(lo.A, localMAC, localIP, gwIP)
	if err != nil {
		t.Fatalf("GatewayMAC: %v", err)
	}
	if mac != gwMAC {
		t.Errorf("mac = % x, want % x", mac, gwMAC)
	}
}

// answerARPAgain sends a correct reply without waiting for a request.
func answerARPAgain(peer netdev.Device) {
	rep := pkt.NewARP(pkt.ARPOpReply)
	rep.HwSrc = gwMAC
	rep.ProtoSrc = gwIP
	rep.HwDst = localMAC
	rep.ProtoDst = localIP

	chain := pkt.NewChain(&pkt.Eth{Src: gwMAC, Dst: localMAC}, rep)
	buf := peer.GetBuf()
	if n, err := pkt.Pack(buf, chain); err == nil {
		peer.Inject(buf[:n])
	}
}
