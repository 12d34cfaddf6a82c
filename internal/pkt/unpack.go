package pkt

import "errors"

// Decode-time errors. Both are per-packet: the engine drops the frame
// and keeps running.
var (
	ErrTruncated   = errors.New("pkt: truncated packet")
	ErrBadChecksum = errors.New("pkt: bad checksum")
)

// Unpack decodes a link-layer frame into a chain, starting at Ethernet
// and dispatching inward. Unknown ethertypes or IP protocols stop the
// dispatch and the remainder becomes a RAW record, as do trailing bytes
// after the last recognised header; ARP padding and bytes past the IPv4
// total length are dropped. The IPv4 header checksum is verified;
// transport checksums are not (capture offload makes them unreliable).
func Unpack(data []byte) (*Chain, error) {
	b := NewBuffer(data)
	c := &Chain{Layers: make([]Layer, 0, 4)}

	if err := unpackEth(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

func unpackEth(b *Buffer, c *Chain) error {
	if b.Remaining() < ethHdrLen {
		return ErrTruncated
	}

	eth := &Eth{}
	copy(eth.Dst[:], b.Bytes(6))
	copy(eth.Src[:], b.Bytes(6))
	eth.Type = b.U16()
	c.Append(eth)

	switch eth.Type {
	case EtherTypeARP:
		return unpackARP(b, c)
	case EtherTypeIP4:
		return unpackIP4(b, c)
	}
	appendRaw(b, c, b.Remaining())
	return nil
}

func unpackARP(b *Buffer, c *Chain) error {
	if b.Remaining() < arpHdrLen {
		return ErrTruncated
	}

	arp := &ARP{}
	arp.HwType = b.U16()
	arp.ProtoType = b.U16()
	hlen := b.U8()
	plen := b.U8()
	arp.Op = b.U16()
	if hlen != 6 || plen != 4 {
		return ErrTruncated
	}
	copy(arp.HwSrc[:], b.Bytes(6))
	arp.ProtoSrc = b.U32()
	copy(arp.HwDst[:], b.Bytes(6))
	arp.ProtoDst = b.U32()
	c.Append(arp)

	// ARP frames are padded to the Ethernet minimum; the pad is not payload.
	return nil
}

func unpackIP4(b *Buffer, c *Chain) error {
	if b.Remaining() < ip4HdrLen {
		return ErrTruncated
	}

	start := b.Offset()
	vihl := b.U8()
	if vihl>>4 != 4 {
		return ErrTruncated
	}
	hdrLen := int(vihl&0x0f) * 4
	if hdrLen < ip4HdrLen {
		return ErrTruncated
	}

	ip := &IP4{}
	ip.TOS = b.U8()
	ip.TotalLen = b.U16()
	ip.ID = b.U16()
	frag := b.U16()
	ip.DF = frag&0x4000 != 0
	ip.MF = frag&0x2000 != 0
	ip.FragOff = frag & 0x1fff
	ip.TTL = b.U8()
	ip.Proto = b.U8()
	ip.Csum = b.U16()
	ip.Src = b.U32()
	ip.Dst = b.U32()

	if int(ip.TotalLen) < hdrLen || b.Offset()-start+b.Remaining() < int(ip.TotalLen) {
		return ErrTruncated
	}
	if hdrLen > ip4HdrLen {
		opts := b.Bytes(hdrLen - ip4HdrLen)
		ip.Options = append([]byte(nil), opts...)
	}
	if b.Err() != nil {
		return ErrTruncated
	}
	if Checksum(b.Window(start, start+hdrLen)) != 0 {
		return ErrBadChecksum
	}
	c.Append(ip)

	// Payload is bounded by the declared total length; anything past it is
	// Ethernet pad and is discarded.
	payload := int(ip.TotalLen) - hdrLen

	// Fragments are recognised but never reassembled.
	if ip.MF || ip.FragOff != 0 {
		appendRaw(b, c, payload)
		return nil
	}

	switch ip.Proto {
	case ProtoICMP:
		return unpackICMP(b, c, payload)
	case ProtoTCP:
		return unpackTCP(b, c, payload)
	case ProtoUDP:
		return unpackUDP(b, c, payload)
	}
	appendRaw(b, c, payload)
	return nil
}

func unpackICMP(b *Buffer, c *Chain, length int) error {
	if length < icmpHdrLen || b.Remaining() < icmpHdrLen {
		return ErrTruncated
	}

	icmp := &ICMP{}
	icmp.Type = b.U8()
	icmp.Code = b.U8()
	icmp.Csum = b.U16()
	icmp.ID = b.U16()
	icmp.Seq = b.U16()
	c.Append(icmp)

	appendRaw(b, c, length-icmpHdrLen)
	return nil
}

func unpackTCP(b *Buffer, c *Chain, length int) error {
	if length < tcpHdrLen || b.Remaining() < tcpHdrLen {
		return ErrTruncated
	}

	tcp := &TCP{}
	tcp.Sport = b.U16()
	tcp.Dport = b.U16()
	tcp.Seq = b.U32()
	tcp.AckSeq = b.U32()
	tcp.DataOff = b.U8() >> 4
	flags := b.U8()
	tcp.FIN = flags&0x01 != 0
	tcp.SYN = flags&0x02 != 0
	tcp.RST = flags&0x04 != 0
	tcp.PSH = flags&0x08 != 0
	tcp.ACK = flags&0x10 != 0
	tcp.URG = flags&0x20 != 0
	tcp.Window = b.U16()
	tcp.Csum = b.U16()
	tcp.UrgPtr = b.U16()

	hdrLen := int(tcp.DataOff) * 4
	if hdrLen < tcpHdrLen || hdrLen > length {
		return ErrTruncated
	}
	if hdrLen > tcpHdrLen {
		opts := b.Bytes(hdrLen - tcpHdrLen)
		if b.Err() != nil {
			return ErrTruncated
		}
		tcp.Options = append([]byte(nil), opts...)
	}
	c.Append(tcp)

	appendRaw(b, c, length-hdrLen)
	return nil
}

func unpackUDP(b *Buffer, c *Chain, length int) error {
	if length < udpHdrLen || b.Remaining() < udpHdrLen {
		return ErrTruncated
	}

	udp := &UDP{}
	udp.Sport = b.U16()
	udp.Dport = b.U16()
	udp.Len = b.U16()
	udp.Csum = b.U16()
	udp.NoCsum = udp.Csum == 0

	if int(udp.Len) < udpHdrLen || int(udp.Len) > length {
		return ErrTruncated
	}
	c.Append(udp)

	appendRaw(b, c, int(udp.Len)-udpHdrLen)
	return nil
}

// appendRaw consumes up to n remaining bytes into a RAW record. Zero-length
// tails produce no record.
func appendRaw(b *Buffer, c *Chain, n int) {
	if n <= 0 {
		return
	}
	if n > b.Remaining() {
		n = b.Remaining()
	}
	data := b.Bytes(n)
	if data == nil {
		return
	}
	c.Append(&Raw{Data: append([]byte(nil), data...)})
}
