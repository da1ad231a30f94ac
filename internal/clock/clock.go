// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides an indirection over time.Now so tests can run
// against a deterministic clock.
package clock

import "time"

// Source supplies the current time.
type Source func() time.Time

var source Source = time.Now

// Now returns the current time from the active source.
func Now() time.Time {
	return source()
}

// Since returns the elapsed time since t according to the active source.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// SetSource swaps the time source and returns a restore function.
// Intended for tests only.
func SetSource(s Source) func() {
	prev := source
	source = s
	return func() { source = prev }
}
