package pkt

import "testing"

func TestBufferRoundTrip(t *testing.T) {
	data := make([]byte, 15)
	b := NewBuffer(data)
	b.PutU8(0xab)
	b.PutU16(0x1234)
	b.PutU32(0xdeadbeef)
	b.PutU64(0x0102030405060708)
	if err := b.Err(); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if b.Offset() != 15 {
		t.Fatalf("offset = %d, want 15", b.Offset())
	}

	r := NewBuffer(data)
	if v := r.U8(); v != 0xab {
		t.Errorf("U8 = %#x", v)
	}
	if v := r.U16(); v != 0x1234 {
		t.Errorf("U16 = %#x", v)
	}
	if v := r.U32(); v != 0xdeadbeef {
		t.Errorf("U32 = %#x", v)
	}
	if v := r.U64(); v != 0x0102030405060708 {
		t.Errorf("U64 = %#x", v)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("read failed: %v", err)
	}
}

func TestBufferNetworkOrder(t *testing.T) {
	data := make([]byte, 2)
	b := NewBuffer(data)
	b.PutU16(0x0800)
	if data[0] != 0x08 || data[1] != 0x00 {
		t.Errorf("not big-endian: % x", data)
	}
}

func TestBufferShort(t *testing.T) {
	b := NewBuffer(make([]byte, 3))
	b.PutU32(1)
	if b.Err() != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", b.Err())
	}

	// Sticky: the error persists and later writes do not move the cursor.
	b2 := NewBuffer(make([]byte, 8))
	b2.PutU64(1)
	b2.PutU8(1)
	if b2.Err() != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", b2.Err())
	}
	b2.PutU8(2)
	if b2.Offset() != 8 {
		t.Errorf("cursor moved after error")
	}
}

func TestBufferPatch(t *testing.T) {
	data := make([]byte, 4)
	b := NewBuffer(data)
	b.PutU32(0)
	b.PutU16At(1, 0xbeef)
	if data[1] != 0xbe || data[2] != 0xef {
		t.Errorf("patch misplaced: % x", data)
	}
	b.PutU16At(3, 0xffff)
	if b.Err() != ErrShortBuffer {
		t.Errorf("out-of-range patch not caught")
	}
}
