package pkt

import (
	"crypto/rand"
	"encoding/binary"
)

// Cookier derives keyed flow cookies from the (src, dst, sport, dport)
// 4-tuple. The key is 128 bits expanded from the user seed, so cookies
// are stable for the process lifetime and unguessable without the seed.
// Scripts recognise replies by recomputing the cookie of the reversed
// tuple — no per-flow state is kept anywhere.
type Cookier struct {
	k0 uint64
	k1 uint64
}

// NewCookier expands a 64-bit seed into the 128-bit cookie key.
func NewCookier(seed uint64) *Cookier {
	return &Cookier{k0: splitmix64(&seed), k1: splitmix64(&seed)}
}

// RandomSeed draws a seed from OS entropy.
func RandomSeed() uint64 {
	var b [8]byte
	rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Cookie32 hashes the 12-byte tuple (src, dst, sport, dport) to 32 bits.
func (c *Cookier) Cookie32(src, dst uint32, sport, dport uint16) uint32 {
	return uint32(c.hash(src, dst, sport, dport))
}

// Cookie16 hashes the same tuple to 16 bits.
func (c *Cookier) Cookie16(src, dst uint32, sport, dport uint16) uint16 {
	return uint16(c.hash(src, dst, sport, dport))
}

func (c *Cookier) hash(src, dst uint32, sport, dport uint16) uint64 {
	h := c.k0
	h = mix64(h ^ uint64(src))
	h = mix64(h ^ uint64(dst))
	h = mix64(h ^ (uint64(sport)<<16 | uint64(dport)))
	return mix64(h ^ c.k1)
}

// mix64 is the murmur3 64-bit finalizer: full avalanche, no allocation.
func mix64(v uint64) uint64 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
