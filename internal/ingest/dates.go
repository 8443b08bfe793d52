package ingest

import "strings"

// EnsureRFC3339 normalizes a flyer date to RFC3339. A date-only value gets
// a midnight time; a missing zone gets UTC. Empty input stays empty.
func EnsureRFC3339(dateStr string) string {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return ""
	}

	if !strings.Contains(dateStr, "T") {
		dateStr += "T00:00:00"
	}

	if !hasZone(dateStr) {
		dateStr += "Z"
	}
	return dateStr
}

// EnsureRFC3339End is EnsureRFC3339 for deal expiry: a date-only value
// extends to the end of that day so the deal stays live through it.
func EnsureRFC3339End(dateStr string) string {
	dateOnly := !strings.Contains(strings.TrimSpace(dateStr), "T")
	out := EnsureRFC3339(dateStr)
	if dateOnly {
		out = strings.Replace(out, "T00:00:00Z", "T23:59:59Z", 1)
	}
	return out
}

// hasZone reports whether the timestamp already carries a zone suffix.
func hasZone(dateStr string) bool {
	if strings.HasSuffix(dateStr, "Z") {
		return true
	}
	tail := dateStr
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return strings.Contains(tail, "+") || strings.Contains(tail, "-")
}
