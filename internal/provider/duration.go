package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as H:MM:SS, truncating fractions of a second.
// Negative durations render as 0:00:00.
func FormatDuration(d time.Duration) string {
	secs := max(int64(d/time.Second), 0)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// ParseDuration parses H:MM:SS with an optional fractional part
// (H+:MM:SS[.F+]). The fraction is accepted and ignored.
func ParseDuration(s string) (time.Duration, error) {
	whole, _, _ := strings.Cut(strings.TrimSpace(s), ".")
	parts := strings.Split(whole, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var vals [3]int64
	for i, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	return time.Duration(vals[0])*time.Hour +
		time.Duration(vals[1])*time.Minute +
		time.Duration(vals[2])*time.Second, nil
}
