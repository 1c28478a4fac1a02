// ABOUTME: Tests for IDAllocator's detached/attached namespace split and compact base-36 encoding.

package dstore

import "testing"

func TestIDAllocatorNextDetachedIDIsEvenAndSequential(t *testing.T) {
	a := NewIDAllocator()
	first := a.NextDetachedID()
	second := a.NextDetachedID()
	if first != "0" {
		t.Fatalf("first detached id = %q, want 0", first)
	}
	if second != "2" {
		t.Fatalf("second detached id = %q, want 2", second)
	}
	if a.DetachedCount() != 2 {
		t.Fatalf("detached count = %d, want 2", a.DetachedCount())
	}
}

func TestIDAllocatorNextDetachedIDEncodesBase36(t *testing.T) {
	a := NewIDAllocator()
	for i := 0; i < 18; i++ {
		a.NextDetachedID()
	}
	id := a.NextDetachedID()
	if id != "10" {
		t.Fatalf("19th detached id = %q, want base-36 encoding of 36 (\"10\")", id)
	}
}

func TestNextAttachedIDNumericLandsInOddNamespace(t *testing.T) {
	id := NextAttachedID(CompressedID{Numeric: 0, IsNumeric: true})
	if id != "1" {
		t.Fatalf("attached id for numeric 0 = %q, want 1 (2*0+1)", id)
	}
	id = NextAttachedID(CompressedID{Numeric: 1, IsNumeric: true})
	if id != "3" {
		t.Fatalf("attached id for numeric 1 = %q, want 3 (2*1+1)", id)
	}
}

func TestNextAttachedIDUUIDPassesThroughVerbatim(t *testing.T) {
	id := NextAttachedID(CompressedID{UUID: "abc-123"})
	if id != "abc-123" {
		t.Fatalf("attached id for uuid = %q, want passthrough", id)
	}
}

func TestDetachedAndAttachedNamespacesNeverCollide(t *testing.T) {
	a := NewIDAllocator()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[a.NextDetachedID()] = true
	}
	for n := uint64(0); n < 50; n++ {
		id := NextAttachedID(CompressedID{Numeric: n, IsNumeric: true})
		if seen[id] {
			t.Fatalf("attached numeric id %q collides with a detached id", id)
		}
	}
}
