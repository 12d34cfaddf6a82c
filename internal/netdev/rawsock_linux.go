//go:build linux

package netdev

import (
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"
	"golang.org/x/sys/unix"
)

// rawSockDev is a plain AF_PACKET SOCK_RAW socket without the mmap ring:
// one sendto/recvfrom syscall per frame. Kept as the fallback backend
// for kernels or namespaces where the TPACKET ring is unavailable.
type rawSockDev struct {
	fd      int
	ifindex int
	iface   string
	scratch [2048]byte
	rbuf    [2048]byte
}

func htons(v uint16) uint16 { return v<<8 | v>>8 }

func openRawSock(iface string) (Device, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: no interface %s: %v", ErrOpenFailed, iface, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("%w: AF_PACKET socket: %v", ErrOpenFailed, err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind to %s: %v", ErrOpenFailed, iface, err)
	}

	return &rawSockDev{fd: fd, ifindex: ifi.Index, iface: iface}, nil
}

func (d *rawSockDev) GetBuf() []byte { return d.scratch[:] }

func (d *rawSockDev) Inject(frame []byte) error {
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  d.ifindex,
		Halen:    6,
	}
	copy(sll.Addr[:], frame[:6])
	for {
		err := unix.Sendto(d.fd, frame, 0, sll)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func (d *rawSockDev) Capture() ([]byte, bool) {
	pfd := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, 1)
	if err != nil || n == 0 {
		return nil, false
	}
	for {
		n, _, err := unix.Recvfrom(d.fd, d.rbuf[:], unix.MSG_DONTWAIT)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return nil, false
		}
		return d.rbuf[:n], true
	}
}

func (d *rawSockDev) Release() {}

// SetFilter compiles the expression with libpcap and attaches it as a
// classic BPF program via SO_ATTACH_FILTER.
func (d *rawSockDev) SetFilter(filter string) error {
	h, err := pcap.OpenLive(d.iface, 1600, true, pcap.BlockForever)
	if err != nil {
		return err
	}
	defer h.Close()

	insts, err := h.CompileBPFFilter(filter)
	if err != nil {
		return err
	}
	prog := make([]unix.SockFilter, len(insts))
	for i, ins := range insts {
		prog[i] = unix.SockFilter{Code: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{Len: uint16(len(prog)), Filter: &prog[0]}
	return unix.SetsockoptSockFprog(d.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog)
}

func (d *rawSockDev) Close() error {
	return unix.Close(d.fd)
}
