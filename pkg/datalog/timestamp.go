package datalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// maxEpochMillis is the largest instant a datalog writer can express.
const maxEpochMillis = 8.64e15

var fallbackLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// RawTimestamp is one of StringTimestamp, SecondsTimestamp or MillisTimestamp.
type RawTimestamp interface {
	instant() (time.Time, bool)
}

// StringTimestamp is a free-form date-time string.
type StringTimestamp string

// SecondsTimestamp is the document store's native timestamp.
type SecondsTimestamp struct {
	Seconds int64
	Nanos   int64
}

// MillisTimestamp is milliseconds since the Unix epoch.
type MillisTimestamp float64

func (s StringTimestamp) instant() (time.Time, bool) {
	str := strings.TrimSpace(string(s))
	if str == "" {
		return time.Time{}, false
	}
	if t, err := iso8601.ParseString(str); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Nanos are dropped, the instant has whole-second precision.
func (s SecondsTimestamp) instant() (time.Time, bool) {
	if math.Abs(float64(s.Seconds))*1000 > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(s.Seconds * 1000).UTC(), true
}

func (m MillisTimestamp) instant() (time.Time, bool) {
	ms := float64(m)
	if ms == 0 || math.IsNaN(ms) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// Normalize converts any timestamp variant to an instant. ok is false when
// the input is missing or unusable; it never panics.
func Normalize(raw RawTimestamp) (t time.Time, ok bool) {
	if raw == nil {
		return time.Time{}, false
	}
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	return raw.instant()
}

// DecodeTimestamp maps the JSON encodings sensors use onto a RawTimestamp:
// strings, epoch milliseconds, and {"seconds", "nanoseconds"} objects (also
// the underscore-prefixed admin SDK form). It returns nil for anything else.
func DecodeTimestamp(raw json.RawMessage) RawTimestamp {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	switch ts := v.(type) {
	case string:
		return StringTimestamp(ts)
	case float64:
		return MillisTimestamp(ts)
	case map[string]any:
		seconds, ok := numberField(ts, "seconds", "_seconds")
		if !ok {
			return nil
		}
		nanos, _ := numberField(ts, "nanoseconds", "_nanoseconds", "nanos")
		return SecondsTimestamp{Seconds: int64(seconds), Nanos: int64(nanos)}
	default:
		return nil
	}
}

// numberField also accepts numeric strings, some writers store seconds as
// text.
func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch f := m[key].(type) {
		case float64:
			return f, true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
