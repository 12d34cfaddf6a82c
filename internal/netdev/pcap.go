package netdev

import (
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"
)

// pcapDev is the portable driver: libpcap capture and injection on one
// handle. Slower than AF_PACKET but works on every platform and on
// tunnel interfaces where AF_PACKET injection silently fails.
type pcapDev struct {
	h       *pcap.Handle
	scratch [2048]byte
}

func openPcap(iface string) (Device, error) {
	h, err := pcap.OpenLive(iface, 2048, true, 1*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: pcap on %s: %v", ErrOpenFailed, iface, err)
	}
	return &pcapDev{h: h}, nil
}

func (d *pcapDev) GetBuf() []byte { return d.scratch[:] }

func (d *pcapDev) Inject(frame []byte) error {
	return d.h.WritePacketData(frame)
}

func (d *pcapDev) Capture() ([]byte, bool) {
	data, _, err := d.h.ZeroCopyReadPacketData()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (d *pcapDev) Release() {}

func (d *pcapDev) SetFilter(filter string) error {
	return d.h.SetBPFFilter(filter)
}

func (d *pcapDev) Close() error {
	d.h.Close()
	return nil
}
