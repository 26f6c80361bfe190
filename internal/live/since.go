package live

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseSince interprets a last-seen value: an RFC 3339 timestamp or a count
// of milliseconds since the epoch, given as a number or a numeric string.
// ok is false for anything else, which disables backfill.
func ParseSince(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// parseSinceJSON handles the since field of a frame, which may be a JSON
// string or number.
func parseSinceJSON(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseSince(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return ParseSince(n.String())
	}
	return time.Time{}, false
}

// since resolves the last-seen time for a watch frame. A since field on the
// frame overrides the connection's header value.
func (s *Session) since(f Frame) (time.Time, bool) {
	if len(f.Since) > 0 && string(f.Since) != "null" {
		return parseSinceJSON(f.Since)
	}
	return ParseSince(s.opts.LastSeen)
}
