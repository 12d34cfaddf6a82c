package script

import (
	"encoding/binary"

	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/ranges"
)

func init() {
	Register("ping", func(env *Env) Script { return &pingScript{env: env} })
}

// pingScript sends ICMP echo requests. The sequence field carries the
// 16-bit flow cookie and the payload a send timestamp, so replies can be
// both recognised and timed without state.
type pingScript struct {
	env *Env
}

func (s *pingScript) Loop(daddr uint32, dport uint16) (*pkt.Chain, error) {
	env := s.env

	icmp := &pkt.ICMP{
		Type: pkt.ICMPEchoRequest,
		ID:   1,
		Seq:  env.Cookie16(env.LocalIP, daddr, ProbePort, 0),
	}

	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(env.Now().UnixMicro()))

	return pkt.NewChain(pkt.NewIP4(env.LocalIP, daddr), icmp,
		&pkt.Raw{Data: stamp[:]}), nil
}

func (s *pingScript) Recv(c *pkt.Chain) (bool, error) {
	env := s.env

	ip := c.IP4()
	icmp := c.ICMP()
	if ip == nil || icmp == nil || icmp.Type != pkt.ICMPEchoReply {
		return false, nil
	}
	if icmp.Seq != env.Cookie16(ip.Dst, ip.Src, ProbePort, 0) {
		return false, nil
	}

	if payload := c.Payload(); len(payload) >= 8 {
		sent := int64(binary.BigEndian.Uint64(payload[:8]))
		rtt := float64(env.Now().UnixMicro()-sent) / 1000
		env.Printf("ping %s time=%.2fms", ranges.FormatAddr(ip.Src), rtt)
	} else {
		env.Printf("ping %s", ranges.FormatAddr(ip.Src))
	}
	return true, nil
}

func (s *pingScript) Close() {}
