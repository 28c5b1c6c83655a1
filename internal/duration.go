package internal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

var (
	errEmptyDuration = errors.New("empty duration")
	errDurationRange = errors.New("duration out of range")
)

// ParseDuration accepts Go duration syntax, bare integers as seconds, and a
// single integer with one of the units s, m, h, d, w or y ("7d", "1y").
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errEmptyDuration
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return scaleDuration(raw, n, time.Second)
	}

	unit := s[len(s)-1]
	var scale time.Duration
	switch unit {
	case 'd':
		scale = day
	case 'w':
		scale = week
	case 'y':
		scale = year
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		return d, nil
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return scaleDuration(raw, n, scale)
}

// scaleDuration multiplies n by scale, rejecting negative counts and
// products that do not fit in a time.Duration.
func scaleDuration(raw string, n int64, scale time.Duration) (time.Duration, error) {
	if n < 0 || n > math.MaxInt64/int64(scale) {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, errDurationRange)
	}
	return time.Duration(n) * scale, nil
}
