// Package util contains misc internal utilities shared by the rest of this module.
package util

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Clamp limits min < input < max
func Clamp(input, min, max float64) float64 {
	if input < min {
		return min
	}
	if input > max {
		return max
	}
	return input
}

// ClampByte limits an integer pixel accumulator to the representable 8-bit range
func ClampByte(input int) byte {
	if input < 0 {
		return 0
	}
	if input > 255 {
		return 255
	}
	return byte(input)
}

// MergeErrors converts many errors to a single one, newline separated.
// nil entries are skipped; an all-nil slice yields a nil error.
func MergeErrors(errs []error) error {
	var strs []string
	for idx := 0; idx < len(errs); idx++ {
		err := errs[idx]
		if err != nil {
			strs = append(strs, err.Error())
		}
	}
	if len(strs) == 0 {
		return nil
	}
	return errors.New(strings.Join(strs, "\n"))
}

// SecsToDuration converts floating point seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
