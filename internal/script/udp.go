package script

import (
	"encoding/binary"

	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/ranges"
)

func init() {
	Register("udp", func(env *Env) Script { return &udpScript{env: env} })
}

// udpScript sends empty UDP datagrams. Any reply to the probe port is an
// open service; an ICMP port-unreachable quoting one of our probes is a
// closed one.
type udpScript struct {
	env *Env
}

func (s *udpScript) Loop(daddr uint32, dport uint16) (*pkt.Chain, error) {
	env := s.env
	udp := &pkt.UDP{Sport: ProbePort, Dport: dport}
	return pkt.NewChain(pkt.NewIP4(env.LocalIP, daddr), udp), nil
}

func (s *udpScript) Recv(c *pkt.Chain) (bool, error) {
	env := s.env

	ip := c.IP4()
	if ip == nil {
		return false, nil
	}

	if udp := c.UDP(); udp != nil && udp.Dport == ProbePort {
		env.Printf("open %s %d/udp", ranges.FormatAddr(ip.Src), udp.Sport)
		return true, nil
	}

	// ICMP type 3 code 3: the quoted datagram starts with the original
	// IPv4 header; the UDP ports sit at offset ihl*4.
	if icmp := c.ICMP(); icmp != nil && icmp.Type == pkt.ICMPUnreachable && icmp.Code == 3 {
		quoted := c.Payload()
		if len(quoted) < 20 {
			return false, nil
		}
		ihl := int(quoted[0]&0x0f) * 4
		if len(quoted) < ihl+4 {
			return false, nil
		}
		sport := binary.BigEndian.Uint16(quoted[ihl:])
		dport := binary.BigEndian.Uint16(quoted[ihl+2:])
		if sport != ProbePort {
			return false, nil
		}
		dst := binary.BigEndian.Uint32(quoted[16:20])
		env.Printf("closed %s %d/udp", ranges.FormatAddr(dst), dport)
		return true, nil
	}

	return false, nil
}

func (s *udpScript) Close() {}
