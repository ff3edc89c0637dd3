package identity

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	// RotationDays is the number of calendar days an address stays stable.
	RotationDays = 3

	// FallbackSlug is used when a display name normalizes to the empty string.
	FallbackSlug = "user"

	// suffixRange bounds the numeric suffix to four digits.
	suffixRange = 9000
	suffixFloor = 1000
)

// Address is a derived connection address together with its rotation window.
type Address struct {
	// Value is the shareable address, e.g. "alice_4821".
	Value string

	// ValidUntil is the midnight boundary at which the period index
	// increments. Display only; never used for correctness gating.
	ValidUntil time.Time

	// PeriodIndex identifies the rotation period within the year.
	PeriodIndex int
}

// DeriveAddress computes the connection address for a display name at the
// given time. The same name produces the same address for all times within
// one rotation period.
func DeriveAddress(displayName string, now time.Time) Address {
	slug := NormalizeSlug(displayName)
	period := periodIndex(now)
	suffix := addressSuffix(slug, period)

	addr := Address{
		Value:       fmt.Sprintf("%s_%d", slug, suffix),
		ValidUntil:  nextRotation(now),
		PeriodIndex: period,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "DeriveAddress",
		"slug":         slug,
		"period_index": period,
		"address":      addr.Value,
		"valid_until":  addr.ValidUntil,
	}).Debug("Derived connection address")

	return addr
}

// NormalizeSlug lowercases the display name and strips everything outside
// [a-z0-9]. Degenerate input falls back to FallbackSlug.
func NormalizeSlug(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return FallbackSlug
	}
	return b.String()
}

// DaysUntilRotation returns how many full days remain before the current
// address rotates. Zero means the address changes at the next midnight.
func DaysUntilRotation(now time.Time) int {
	return (RotationDays - 1) - dayOfYear(now)%RotationDays
}

// periodIndex maps a time to its rotation period within the year.
func periodIndex(now time.Time) int {
	return dayOfYear(now) / RotationDays
}

// dayOfYear counts from zero so that January 1st falls in period 0.
func dayOfYear(now time.Time) int {
	return now.YearDay() - 1
}

// addressSuffix combines the slug hash with the period index into a four
// digit number. The hash is stable across processes, so both parties of a
// call derive identical addresses from the same name.
func addressSuffix(slug string, period int) int {
	sum := blake2b.Sum256([]byte(slug))
	hash := int(binary.BigEndian.Uint32(sum[:4]))

	return (period*1000+hash%1000)%suffixRange + suffixFloor
}

// nextRotation returns the midnight at which the period index increments.
func nextRotation(now time.Time) time.Time {
	days := DaysUntilRotation(now)
	y, m, d := now.Date()
	return time.Date(y, m, d+days+1, 0, 0, 0, 0, now.Location())
}
