package identity

import (
	"strings"
	"testing"
	"time"
)

// TestDeriveAddressStableWithinPeriod verifies that two times inside the
// same rotation period yield the same address.
func TestDeriveAddressStableWithinPeriod(t *testing.T) {
	// Jan 1 and Jan 3 share period 0 (days 0-2).
	t1 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 1, 3, 23, 59, 0, 0, time.UTC)

	a1 := DeriveAddress("Alice", t1)
	a2 := DeriveAddress("Alice", t2)

	if a1.Value != a2.Value {
		t.Errorf("Expected identical addresses within a period, got %q and %q", a1.Value, a2.Value)
	}
	if a1.PeriodIndex != a2.PeriodIndex {
		t.Errorf("Expected identical period index, got %d and %d", a1.PeriodIndex, a2.PeriodIndex)
	}
}

// TestDeriveAddressRotatesAcrossPeriods verifies that crossing a rotation
// boundary produces a different address.
func TestDeriveAddressRotatesAcrossPeriods(t *testing.T) {
	t1 := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC) // period 0
	t2 := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC) // period 1

	a1 := DeriveAddress("Alice", t1)
	a2 := DeriveAddress("Alice", t2)

	if a1.Value == a2.Value {
		t.Errorf("Expected different addresses across periods, both were %q", a1.Value)
	}
	if a2.PeriodIndex != a1.PeriodIndex+1 {
		t.Errorf("Expected period index to increment, got %d after %d", a2.PeriodIndex, a1.PeriodIndex)
	}
}

// TestDeriveAddressSuffixRange verifies the suffix is always four digits.
func TestDeriveAddressSuffixRange(t *testing.T) {
	names := []string{"Alice", "Bob", "carol", "Zo", "名前", "", "a1b2c3"}
	now := time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

	for _, name := range names {
		addr := DeriveAddress(name, now)
		parts := strings.Split(addr.Value, "_")
		if len(parts) != 2 {
			t.Fatalf("Unexpected address format %q for name %q", addr.Value, name)
		}
		suffix := parts[1]
		if len(suffix) != 4 {
			t.Errorf("Expected 4-digit suffix for %q, got %q", name, suffix)
		}
	}
}

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase kept", "alice", "alice"},
		{"uppercase folded", "Alice Smith", "alicesmith"},
		{"punctuation stripped", "bob!@#", "bob"},
		{"digits kept", "carol99", "carol99"},
		{"empty falls back", "", FallbackSlug},
		{"symbols only fall back", "!!!", FallbackSlug},
		{"unicode stripped", "名前", FallbackSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSlug(tt.input); got != tt.expected {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestValidUntilIsMidnightBoundary verifies ValidUntil lands exactly on the
// midnight at which the period increments.
func TestValidUntilIsMidnightBoundary(t *testing.T) {
	now := time.Date(2025, 1, 2, 15, 30, 0, 0, time.UTC) // day 1, period 0
	addr := DeriveAddress("alice", now)

	expected := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
	if !addr.ValidUntil.Equal(expected) {
		t.Errorf("Expected ValidUntil %v, got %v", expected, addr.ValidUntil)
	}

	// The instant before the boundary is still period 0, the boundary
	// itself is period 1.
	before := DeriveAddress("alice", addr.ValidUntil.Add(-time.Second))
	after := DeriveAddress("alice", addr.ValidUntil)
	if before.Value != addr.Value {
		t.Errorf("Address changed before the boundary: %q vs %q", before.Value, addr.Value)
	}
	if after.Value == addr.Value {
		t.Error("Address did not change at the boundary")
	}
}

func TestDaysUntilRotation(t *testing.T) {
	tests := []struct {
		day      int // January day
		expected int
	}{
		{1, 2}, // first day of period
		{2, 1},
		{3, 0}, // rotates at next midnight
		{4, 2}, // first day of next period
	}

	for _, tt := range tests {
		now := time.Date(2025, 1, tt.day, 12, 0, 0, 0, time.UTC)
		if got := DaysUntilRotation(now); got != tt.expected {
			t.Errorf("DaysUntilRotation(Jan %d) = %d, want %d", tt.day, got, tt.expected)
		}
	}
}

// TestDeriveAddressDistinctNames verifies different names (usually) get
// different suffixes within the same period.
func TestDeriveAddressDistinctNames(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	a := DeriveAddress("alice", now)
	b := DeriveAddress("bob", now)

	if a.Value == b.Value {
		t.Errorf("Expected distinct addresses for distinct names, both %q", a.Value)
	}
}
