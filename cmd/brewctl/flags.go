package main

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseWhen accepts a date, an RFC 3339 timestamp, or empty for "now".
func parseWhen(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", value)
	}
	return t, nil
}

func optionalWhen(value string) (*time.Time, error) {
	t, err := parseWhen(value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
