package pkt

import "fmt"

// Kind identifies a layer type within a chain.
type Kind uint8

const (
	KindEth Kind = iota + 1
	KindARP
	KindIP4
	KindICMP
	KindTCP
	KindUDP
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindEth:
		return "eth"
	case KindARP:
		return "arp"
	case KindIP4:
		return "ip4"
	case KindICMP:
		return "icmp"
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindRaw:
		return "raw"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Layer is one protocol header in a chain. The concrete types below form
// a closed set; Pack and Unpack dispatch on Kind.
type Layer interface {
	Kind() Kind
}

// Ethertype and ARP constants used by the codec.
const (
	EtherTypeIP4 = 0x0800
	EtherTypeARP = 0x0806

	ARPHardwareEther = 1
	ARPOpRequest     = 1
	ARPOpReply       = 2

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// Eth is an Ethernet II header. Type is filled on encode from the next
// layer's kind.
type Eth struct {
	Src  [6]byte
	Dst  [6]byte
	Type uint16
}

func (*Eth) Kind() Kind { return KindEth }

// Broadcast is the all-ones Ethernet destination.
var Broadcast = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARP is an RFC 826 request/reply for IPv4 over Ethernet.
type ARP struct {
	HwType    uint16
	ProtoType uint16
	Op        uint16
	HwSrc     [6]byte
	ProtoSrc  uint32
	HwDst     [6]byte
	ProtoDst  uint32
}

func (*ARP) Kind() Kind { return KindARP }

// NewARP returns an ARP header with the Ethernet/IPv4 hardware and
// protocol types preset.
func NewARP(op uint16) *ARP {
	return &ARP{HwType: ARPHardwareEther, ProtoType: EtherTypeIP4, Op: op}
}

// IP4 is an IPv4 header. TotalLen and Csum are computed on encode;
// Proto is filled from the next layer when that layer is ICMP/TCP/UDP.
type IP4 struct {
	TOS     uint8
	ID      uint16
	TTL     uint8
	Proto   uint8
	Src     uint32
	Dst     uint32
	DF      bool
	MF      bool
	FragOff uint16
	Options []byte // opaque, length multiple of 4

	TotalLen uint16 // filled by the codec
	Csum     uint16 // filled by the codec
}

func (*IP4) Kind() Kind { return KindIP4 }

// NewIP4 returns an IPv4 header with the default TTL.
func NewIP4(src, dst uint32) *IP4 {
	return &IP4{TTL: 64, Src: src, Dst: dst}
}

// ICMP is an ICMPv4 echo-style header (type, code, id, seq).
type ICMP struct {
	Type uint8
	Code uint8
	ID   uint16
	Seq  uint16

	Csum uint16 // filled by the codec
}

func (*ICMP) Kind() Kind { return KindICMP }

// ICMP types recognised by the built-in scripts.
const (
	ICMPEchoReply   = 0
	ICMPUnreachable = 3
	ICMPEchoRequest = 8
)

// TCP is a TCP header. Csum is computed on encode using the pseudo-header
// of the immediately preceding IP4 layer.
type TCP struct {
	Sport   uint16
	Dport   uint16
	Seq     uint32
	AckSeq  uint32
	FIN     bool
	SYN     bool
	RST     bool
	PSH     bool
	ACK     bool
	URG     bool
	Window  uint16
	UrgPtr  uint16
	Options []byte // opaque, length multiple of 4

	DataOff uint8  // filled by the codec
	Csum    uint16 // filled by the codec
}

func (*TCP) Kind() Kind { return KindTCP }

// NewTCP returns a TCP header with the default window.
func NewTCP(sport, dport uint16) *TCP {
	return &TCP{Sport: sport, Dport: dport, Window: 64240}
}

// UDP is a UDP header. Len and Csum are computed on encode. NoCsum is set
// by the decoder when the wire checksum was zero; such headers re-encode
// with a zero checksum unless the flag is cleared.
type UDP struct {
	Sport uint16
	Dport uint16

	NoCsum bool

	Len  uint16 // filled by the codec
	Csum uint16 // filled by the codec
}

func (*UDP) Kind() Kind { return KindUDP }

// Raw is an opaque payload. It may only appear as the final layer.
type Raw struct {
	Data []byte
}

func (*Raw) Kind() Kind { return KindRaw }

// Chain is one packet: an ordered sequence of layers, outermost first.
// Probe marks chains produced by the loop worker so progress counts
// logical probes rather than follow-up packets.
type Chain struct {
	Layers []Layer
	Probe  bool
}

// NewChain builds a chain from the given layers, outermost first.
func NewChain(layers ...Layer) *Chain {
	return &Chain{Layers: layers}
}

func (c *Chain) Len() int { return len(c.Layers) }

// Append adds a layer at the inner end.
func (c *Chain) Append(l Layer) { c.Layers = append(c.Layers, l) }

// Prepend adds a layer at the outer end. The engine uses this to wrap
// script-built chains in Ethernet.
func (c *Chain) Prepend(l Layer) {
	c.Layers = append([]Layer{l}, c.Layers...)
}

// find returns the first layer of the given kind, or nil.
func (c *Chain) find(k Kind) Layer {
	for _, l := range c.Layers {
		if l.Kind() == k {
			return l
		}
	}
	return nil
}

func (c *Chain) Eth() *Eth {
	if l := c.find(KindEth); l != nil {
		return l.(*Eth)
	}
	return nil
}

func (c *Chain) ARP() *ARP {
	if l := c.find(KindARP); l != nil {
		return l.(*ARP)
	}
	return nil
}

func (c *Chain) IP4() *IP4 {
	if l := c.find(KindIP4); l != nil {
		return l.(*IP4)
	}
	return nil
}

func (c *Chain) ICMP() *ICMP {
	if l := c.find(KindICMP); l != nil {
		return l.(*ICMP)
	}
	return nil
}

func (c *Chain) TCP() *TCP {
	if l := c.find(KindTCP); l != nil {
		return l.(*TCP)
	}
	return nil
}

func (c *Chain) UDP() *UDP {
	if l := c.find(KindUDP); l != nil {
		return l.(*UDP)
	}
	return nil
}

// Payload returns the trailing RAW layer's bytes, or nil.
func (c *Chain) Payload() []byte {
	if n := len(c.Layers); n > 0 {
		if raw, ok := c.Layers[n-1].(*Raw); ok {
			return raw.Data
		}
	}
	return nil
}
