package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseExpiry converts a retention string like "1y", "3m", "30d", or "12h"
// into a duration. Years count as 365 days, months as 30.
func ParseExpiry(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid expiry %q: want <number><y|m|d|h>", s)
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(strings.TrimSpace(s[:len(s)-1]))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid expiry %q: want <number><y|m|d|h>", s)
	}

	day := 24 * time.Hour
	switch unit {
	case 'y':
		return time.Duration(n) * 365 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	case 'd':
		return time.Duration(n) * day, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid expiry unit %q in %q", string(unit), s)
	}
}
