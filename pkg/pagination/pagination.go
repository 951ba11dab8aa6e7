package pagination

import (
	"fmt"
	"strconv"
)

// Window is a skip/limit page request
type Window struct {
	Skip  int
	Limit int
}

// Bounds configures defaults and the hard ceiling for one listing
type Bounds struct {
	DefaultLimit int
	MaxLimit     int
}

// Listing ceilings
var (
	ChannelBounds = Bounds{DefaultLimit: 50, MaxLimit: 100}
	InboxBounds   = Bounds{DefaultLimit: 30, MaxLimit: 30}
	// ReadBounds caps how many messages one mark-read call flips
	ReadBounds = Bounds{DefaultLimit: 5, MaxLimit: 30}
)

// ParseWindow parses skip/limit query values. Empty values take the defaults; values
// outside the bounds are rejected rather than clamped.
func ParseWindow(skipStr, limitStr string, bounds Bounds) (Window, error) {
	w := Window{Limit: bounds.DefaultLimit}

	if skipStr != "" {
		skip, err := strconv.Atoi(skipStr)
		if err != nil || skip < 0 {
			return Window{}, fmt.Errorf("invalid skip parameter: %q", skipStr)
		}
		w.Skip = skip
	}

	if limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return Window{}, fmt.Errorf("invalid limit parameter: %q", limitStr)
		}
		if limit > bounds.MaxLimit {
			return Window{}, fmt.Errorf("limit must not exceed %d", bounds.MaxLimit)
		}
		if limit > 0 {
			w.Limit = limit
		}
	}

	return w, nil
}

// Normalize applies defaults and clamps to the ceiling. Used by services that receive
// windows from callers other than the HTTP layer.
func (w Window) Normalize(bounds Bounds) Window {
	if w.Skip < 0 {
		w.Skip = 0
	}
	if w.Limit <= 0 {
		w.Limit = bounds.DefaultLimit
	}
	if w.Limit > bounds.MaxLimit {
		w.Limit = bounds.MaxLimit
	}
	return w
}

// Apply returns the page of a slice selected by the window
func Apply[T any](items []T, w Window) []T {
	if w.Skip >= len(items) {
		return []T{}
	}
	end := w.Skip + w.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[w.Skip:end]
}
