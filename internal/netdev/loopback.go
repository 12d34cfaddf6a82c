package netdev

import "time"

// Loopback is an in-memory wire: two endpoints, each seeing the frames
// the other injects. Used by the resolver and engine tests in place of a
// real interface.
type Loopback struct {
	A *LoopEndpoint
	B *LoopEndpoint
}

// NewLoopback creates a connected endpoint pair. Each direction buffers
// up to 4096 frames; overflow frames are dropped, as a real wire would.
func NewLoopback() *Loopback {
	ab := make(chan []byte, 4096)
	ba := make(chan []byte, 4096)
	return &Loopback{
		A: &LoopEndpoint{tx: ab, rx: ba},
		B: &LoopEndpoint{tx: ba, rx: ab},
	}
}

// LoopEndpoint implements Device over channel queues.
type LoopEndpoint struct {
	tx      chan []byte
	rx      chan []byte
	scratch [2048]byte
}

func (e *LoopEndpoint) GetBuf() []byte { return e.scratch[:] }

func (e *LoopEndpoint) Inject(frame []byte) error {
	out := append([]byte(nil), frame...)
	select {
	case e.tx <- out:
	default:
	}
	return nil
}

func (e *LoopEndpoint) Capture() ([]byte, bool) {
	select {
	case f := <-e.rx:
		return f, true
	case <-time.After(time.Millisecond):
		return nil, false
	}
}

func (e *LoopEndpoint) Release() {}

func (e *LoopEndpoint) SetFilter(string) error { return nil }

func (e *LoopEndpoint) Close() error { return nil }
