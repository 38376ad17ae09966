package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/techscire/scirecount-core/internal/device"
)

// Normalizer maps heterogeneous sensor payloads to Readings.
type Normalizer struct {
	fallbackID string
}

// NewNormalizer creates a Normalizer that assigns fallbackID to payloads
// without an identity. An empty fallbackID selects DefaultFallbackDeviceID.
func NewNormalizer(fallbackID string) *Normalizer {
	if fallbackID == "" {
		fallbackID = DefaultFallbackDeviceID
	}
	return &Normalizer{fallbackID: fallbackID}
}

// Normalize parses raw with the default fallback identity.
func Normalize(raw []byte) Reading {
	return NewNormalizer("").Normalize(raw, "")
}

// Normalize parses raw into a Reading. It never fails: input that is not
// a JSON object is treated as an empty payload.
//
// The device id is taken from deviceId, then mac, then hint (for example
// the device segment of an MQTT topic), then the configured fallback.
// Counts come from lineCrossing.in/out, then flat in/out, then zero, and
// are clamped at zero. An explicit occupancy is kept as sent, negative
// values included.
func (n *Normalizer) Normalize(raw []byte, hint string) Reading {
	payload := decodeObject(raw)

	r := Reading{
		DeviceID: n.resolveID(payload, hint),
		In:       max(0, countField(payload, "in")),
		Out:      max(0, countField(payload, "out")),
		Name:     truncateRunes(firstString(payload, "deviceName", "name"), device.MaxNameLength),
		Model:    firstString(payload, "model"),
	}

	if v, ok := payload["occupancy"]; ok && v != nil {
		r.Occupancy = toInt(v)
		r.OccupancyExplicit = true
	} else {
		r.Occupancy = derivedOccupancy(r.In, r.Out)
	}

	if v, ok := payload["timestamp"]; ok {
		r.Timestamp = toTime(v)
	}

	return r
}

func (n *Normalizer) resolveID(payload map[string]any, hint string) string {
	id := firstString(payload, "deviceId", "mac")
	if id == "" {
		id = strings.TrimSpace(hint)
	}
	if id == "" {
		id = n.fallbackID
	}
	if len(id) > device.MaxDeviceIDLength {
		id = id[:device.MaxDeviceIDLength]
		for !utf8.ValidString(id) {
			id = id[:len(id)-1]
		}
	}
	return id
}

func decodeObject(raw []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// countField reads lineCrossing.<key>, falling back to the flat <key>.
func countField(payload map[string]any, key string) int {
	if lc, ok := payload["lineCrossing"].(map[string]any); ok {
		if v, ok := lc[key]; ok && v != nil {
			return toInt(v)
		}
	}
	if v, ok := payload[key]; ok && v != nil {
		return toInt(v)
	}
	return 0
}

// firstString returns the first non-empty value among keys. Numbers are
// accepted too, since some firmware sends numeric device ids.
func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// toInt coerces a decoded JSON value to an int. Numbers truncate toward
// zero, numeric strings are parsed, booleans map to 1 and 0, and anything
// else is 0.
func toInt(v any) int {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return clampInt64(i)
		}
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		return truncFloat(f)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return clampInt64(i)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return truncFloat(f)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func truncFloat(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func clampInt64(i int64) int {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	return int(i)
}

// unixMillisThreshold separates unix seconds from milliseconds: 1e12 ms is
// September 2001, while 1e12 s is far beyond any plausible sensor clock.
const unixMillisThreshold = 1e12

// toTime accepts RFC3339 strings and unix seconds or milliseconds, as
// numbers or numeric strings. Anything else yields the zero time.
func toTime(v any) time.Time {
	var f float64
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}
		}
		f = parsed
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return time.Time{}
		}
		f = parsed
	default:
		return time.Time{}
	}

	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}
	if f >= unixMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
