package pkt

import (
	"errors"
	"fmt"
)

// ErrEncode is the base error for chains the codec cannot serialize.
var ErrEncode = errors.New("pkt: encode failed")

func encodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncode, fmt.Sprintf(format, args...))
}

const (
	ethHdrLen  = 14
	arpHdrLen  = 28
	ip4HdrLen  = 20
	icmpHdrLen = 8
	tcpHdrLen  = 20
	udpHdrLen  = 8
)

// Pack serializes a chain into buf, outermost layer first, and returns
// the number of bytes written. Length and checksum fields are computed by
// the codec; placeholder values in the chain are ignored. Computed values
// are written back into the layer structs so callers can inspect what
// went on the wire.
func Pack(buf []byte, c *Chain) (int, error) {
	if c == nil || len(c.Layers) == 0 {
		return 0, encodeErr("empty chain")
	}
	b := NewBuffer(buf)
	n, err := packLayer(b, c, 0)
	if err != nil {
		return 0, err
	}
	if err := b.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// packLayer writes the layer at idx and everything inside it, returning
// the total byte count from this layer's header to the end of the packet.
func packLayer(b *Buffer, c *Chain, idx int) (int, error) {
	switch l := c.Layers[idx].(type) {
	case *Eth:
		return packEth(b, c, idx, l)
	case *ARP:
		return packARP(b, c, idx, l)
	case *IP4:
		return packIP4(b, c, idx, l)
	case *ICMP:
		return packICMP(b, c, idx, l)
	case *TCP:
		return packTCP(b, c, idx, l)
	case *UDP:
		return packUDP(b, c, idx, l)
	case *Raw:
		return packRaw(b, c, idx, l)
	}
	return 0, encodeErr("unknown layer kind %v", c.Layers[idx].Kind())
}

// packInner recurses into the layer after idx, if any.
func packInner(b *Buffer, c *Chain, idx int) (int, error) {
	if idx+1 >= len(c.Layers) {
		return 0, nil
	}
	return packLayer(b, c, idx+1)
}

func packEth(b *Buffer, c *Chain, idx int, l *Eth) (int, error) {
	etype := l.Type
	if idx+1 < len(c.Layers) {
		switch c.Layers[idx+1].Kind() {
		case KindIP4:
			etype = EtherTypeIP4
		case KindARP:
			etype = EtherTypeARP
		case KindRaw:
			return 0, encodeErr("raw payload directly after eth")
		default:
			return 0, encodeErr("eth cannot carry %v", c.Layers[idx+1].Kind())
		}
	}

	b.PutBytes(l.Dst[:])
	b.PutBytes(l.Src[:])
	b.PutU16(etype)
	l.Type = etype

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}
	return ethHdrLen + n, nil
}

func packARP(b *Buffer, c *Chain, idx int, l *ARP) (int, error) {
	b.PutU16(l.HwType)
	b.PutU16(l.ProtoType)
	b.PutU8(6) // hardware address length
	b.PutU8(4) // protocol address length
	b.PutU16(l.Op)
	b.PutBytes(l.HwSrc[:])
	b.PutU32(l.ProtoSrc)
	b.PutBytes(l.HwDst[:])
	b.PutU32(l.ProtoDst)

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}
	return arpHdrLen + n, nil
}

func packIP4(b *Buffer, c *Chain, idx int, l *IP4) (int, error) {
	if len(l.Options)%4 != 0 {
		return 0, encodeErr("ip4 options length %d not a multiple of 4", len(l.Options))
	}
	hdrLen := ip4HdrLen + len(l.Options)
	if hdrLen > 60 {
		return 0, encodeErr("ip4 header length %d exceeds 60", hdrLen)
	}

	proto := l.Proto
	if idx+1 < len(c.Layers) {
		switch c.Layers[idx+1].Kind() {
		case KindICMP:
			proto = ProtoICMP
		case KindTCP:
			proto = ProtoTCP
		case KindUDP:
			proto = ProtoUDP
		case KindRaw:
			// opaque payload, protocol as given
		default:
			return 0, encodeErr("ip4 cannot carry %v", c.Layers[idx+1].Kind())
		}
	}

	start := b.Offset()
	b.PutU8(0x40 | uint8(hdrLen/4))
	b.PutU8(l.TOS)
	b.PutU16(0) // total length, patched below
	b.PutU16(l.ID)

	frag := l.FragOff & 0x1fff
	if l.DF {
		frag |= 0x4000
	}
	if l.MF {
		frag |= 0x2000
	}
	b.PutU16(frag)

	b.PutU8(l.TTL)
	b.PutU8(proto)
	b.PutU16(0) // checksum, patched below
	b.PutU32(l.Src)
	b.PutU32(l.Dst)
	b.PutBytes(l.Options)

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}

	total := uint16(hdrLen + n)
	b.PutU16At(start+2, total)
	csum := Checksum(b.Window(start, start+hdrLen))
	b.PutU16At(start+10, csum)

	l.Proto = proto
	l.TotalLen = total
	l.Csum = csum
	return hdrLen + n, nil
}

func packICMP(b *Buffer, c *Chain, idx int, l *ICMP) (int, error) {
	start := b.Offset()
	b.PutU8(l.Type)
	b.PutU8(l.Code)
	b.PutU16(0) // checksum, patched below
	b.PutU16(l.ID)
	b.PutU16(l.Seq)

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}

	csum := Checksum(b.Window(start, start+icmpHdrLen+n))
	b.PutU16At(start+2, csum)
	l.Csum = csum
	return icmpHdrLen + n, nil
}

func precedingIP4(c *Chain, idx int) (*IP4, error) {
	if idx > 0 {
		if ip, ok := c.Layers[idx-1].(*IP4); ok {
			return ip, nil
		}
	}
	return nil, encodeErr("%v layer without preceding ip4", c.Layers[idx].Kind())
}

func packTCP(b *Buffer, c *Chain, idx int, l *TCP) (int, error) {
	ip, err := precedingIP4(c, idx)
	if err != nil {
		return 0, err
	}
	if len(l.Options)%4 != 0 {
		return 0, encodeErr("tcp options length %d not a multiple of 4", len(l.Options))
	}
	hdrLen := tcpHdrLen + len(l.Options)
	if hdrLen > 60 {
		return 0, encodeErr("tcp header length %d exceeds 60", hdrLen)
	}

	var flags uint8
	if l.FIN {
		flags |= 0x01
	}
	if l.SYN {
		flags |= 0x02
	}
	if l.RST {
		flags |= 0x04
	}
	if l.PSH {
		flags |= 0x08
	}
	if l.ACK {
		flags |= 0x10
	}
	if l.URG {
		flags |= 0x20
	}

	start := b.Offset()
	b.PutU16(l.Sport)
	b.PutU16(l.Dport)
	b.PutU32(l.Seq)
	b.PutU32(l.AckSeq)
	b.PutU8(uint8(hdrLen/4) << 4)
	b.PutU8(flags)
	b.PutU16(l.Window)
	b.PutU16(0) // checksum, patched below
	b.PutU16(l.UrgPtr)
	b.PutBytes(l.Options)

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}

	csum := TransportChecksum(ProtoTCP, ip.Src, ip.Dst, b.Window(start, start+hdrLen+n))
	b.PutU16At(start+16, csum)
	l.DataOff = uint8(hdrLen / 4)
	l.Csum = csum
	return hdrLen + n, nil
}

func packUDP(b *Buffer, c *Chain, idx int, l *UDP) (int, error) {
	ip, err := precedingIP4(c, idx)
	if err != nil {
		return 0, err
	}

	start := b.Offset()
	b.PutU16(l.Sport)
	b.PutU16(l.Dport)
	b.PutU16(0) // length, patched below
	b.PutU16(0) // checksum, patched below

	n, err := packInner(b, c, idx)
	if err != nil {
		return 0, err
	}

	total := uint16(udpHdrLen + n)
	b.PutU16At(start+4, total)

	var csum uint16
	if !l.NoCsum {
		csum = TransportChecksum(ProtoUDP, ip.Src, ip.Dst, b.Window(start, start+udpHdrLen+n))
		if csum == 0 {
			csum = 0xffff // RFC 768: computed zero is sent as all-ones
		}
		b.PutU16At(start+6, csum)
	}

	l.Len = total
	l.Csum = csum
	return udpHdrLen + n, nil
}

func packRaw(b *Buffer, c *Chain, idx int, l *Raw) (int, error) {
	if idx != len(c.Layers)-1 {
		return 0, encodeErr("raw layer must be last")
	}
	b.PutBytes(l.Data)
	return len(l.Data), nil
}
