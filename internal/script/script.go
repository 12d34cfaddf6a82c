// Package script defines the contract between the engine and the packet
// scripts: loop() builds probes, recv() interprets replies. Scripts are
// compile-time plugins selected by name; each worker gets its own
// context and contexts share no mutable state — correlation happens on
// the wire via flow cookies.
package script

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ghedo/pktizr/internal/pkt"
)

// ProbePort is the source port the built-in scripts stamp on probes and
// expect replies on.
const ProbePort = 64434

// Per-call script failures; the packet that triggered one is dropped.
var ErrScript = errors.New("script: call failed")

// Script is one loaded context. Loop returns the chain to enqueue, or
// nil to skip the (target, port) pair. Recv is invoked for every decoded
// inbound chain; returning true counts the packet as accepted.
type Script interface {
	Loop(daddr uint32, dport uint16) (*pkt.Chain, error)
	Recv(c *pkt.Chain) (bool, error)
	Close()
}

// Env is the capability set a script runs against.
type Env struct {
	LocalIP uint32
	Cookies *pkt.Cookier

	// SendFn injects a chain immediately, bypassing the queue and the
	// rate limit. Used for handshake follow-ups.
	SendFn func(*pkt.Chain) error

	// PrintFn receives formatted result lines.
	PrintFn func(line string)
}

func (e *Env) Cookie32(src, dst uint32, sport, dport uint16) uint32 {
	return e.Cookies.Cookie32(src, dst, sport, dport)
}

func (e *Env) Cookie16(src, dst uint32, sport, dport uint16) uint16 {
	return e.Cookies.Cookie16(src, dst, sport, dport)
}

// Send injects a chain directly.
func (e *Env) Send(c *pkt.Chain) error {
	if e.SendFn == nil {
		return fmt.Errorf("%w: no send path", ErrScript)
	}
	return e.SendFn(c)
}

// Printf emits a formatted result line.
func (e *Env) Printf(format string, args ...any) {
	if e.PrintFn != nil {
		e.PrintFn(fmt.Sprintf(format, args...))
	}
}

// Now returns the current time; scripts use it for payload timestamps.
func (e *Env) Now() time.Time { return time.Now() }

// Factory builds a fresh script context.
type Factory func(env *Env) Script

var registry = map[string]Factory{}

// Register adds a script under a name. Called from init().
func Register(name string, f Factory) {
	registry[name] = f
}

// Load creates a fresh, independent context for the named script.
func Load(name string, env *Env) (Script, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown script %q (have %v)", ErrScript, name, Names())
	}
	return f(env), nil
}

// Names lists the registered scripts, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
