package util

// Truncate shortens s to at most max bytes, marking the cut with "...".
// Values of max below 4 return s cut without a marker.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 4 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
