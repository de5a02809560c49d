package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseIntDefault parses a non-negative int, falling back to def on any
// parse failure.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}

// ParseTimeParam parses a timestamp filter value: either unix seconds or a
// YYYY-MM-DD date (interpreted as midnight UTC). Empty input yields zero,
// meaning "filter unset".
func ParseTimeParam(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("not unix seconds or YYYY-MM-DD: %q", s)
	}
	return t.Unix(), nil
}

// ParseBoolPtr parses an optional boolean query param. Empty input yields
// nil, meaning "filter unset".
func ParseBoolPtr(s string) (*bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
