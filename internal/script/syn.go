package script

import (
	"github.com/ghedo/pktizr/internal/pkt"
	"github.com/ghedo/pktizr/internal/ranges"
)

func init() {
	Register("syn", func(env *Env) Script { return &synScript{env: env} })
}

// synScript is a stateless TCP SYN scan. The probe's sequence number is
// the flow cookie; a SYN+ACK acknowledging cookie+1 proves the reply
// belongs to one of our probes, so no per-flow table is needed.
type synScript struct {
	env *Env
}

func (s *synScript) Loop(daddr uint32, dport uint16) (*pkt.Chain, error) {
	env := s.env

	tcp := pkt.NewTCP(ProbePort, dport)
	tcp.SYN = true
	tcp.Seq = env.Cookie32(env.LocalIP, daddr, ProbePort, dport)

	return pkt.NewChain(pkt.NewIP4(env.LocalIP, daddr), tcp), nil
}

func (s *synScript) Recv(c *pkt.Chain) (bool, error) {
	env := s.env

	ip := c.IP4()
	tcp := c.TCP()
	if ip == nil || tcp == nil || tcp.Dport != ProbePort {
		return false, nil
	}
	if !tcp.SYN || !tcp.ACK {
		return false, nil
	}

	cookie := env.Cookie32(ip.Dst, ip.Src, tcp.Dport, tcp.Sport)
	if tcp.AckSeq-1 != cookie {
		return false, nil
	}

	env.Printf("open %s %d", ranges.FormatAddr(ip.Src), tcp.Sport)

	// Tear the half-open connection down so the target doesn't retransmit.
	rst := pkt.NewTCP(ProbePort, tcp.Sport)
	rst.RST = true
	rst.Seq = tcp.AckSeq
	reply := pkt.NewChain(pkt.NewIP4(env.LocalIP, ip.Src), rst)
	if err := env.Send(reply); err != nil {
		return true, err
	}
	return true, nil
}

func (s *synScript) Close() {}
