package config

import (
	"errors"
	"fmt"
)

// ParseByteSize parses a human-readable byte size string (e.g., "64MiB", "1GiB").
// Returns the size in bytes.
func ParseByteSize(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty size string")
	}

	// Find where the number ends and the unit begins
	var numEnd int
	for i, c := range s {
		if c < '0' || c > '9' {
			numEnd = i
			break
		}
		numEnd = i + 1
	}

	if numEnd == 0 {
		return 0, fmt.Errorf("invalid size string: %q", s)
	}

	var num int64
	for _, c := range s[:numEnd] {
		num = num*10 + int64(c-'0')
	}

	multiplier := int64(1)
	switch s[numEnd:] {
	case "", "B":
		multiplier = 1
	case "KiB", "K":
		multiplier = 1024
	case "MiB", "M":
		multiplier = 1024 * 1024
	case "GiB", "G":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size unit: %q", s[numEnd:])
	}

	return num * multiplier, nil
}
