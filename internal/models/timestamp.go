package models

import (
	"encoding/json"
	"time"
)

// FlexTime accepts the timestamp shapes emitted by the legacy document store:
// RFC3339 (or date-only) strings, numeric epoch seconds or milliseconds, and
// wrapped objects of the form {"seconds":…,"nanos":…} or
// {"_seconds":…,"_nanoseconds":…}. Anything unparseable normalizes to the zero
// instant so chronological sorts place it earliest; ingestion never rejects a
// record over its timestamp.
type FlexTime struct {
	time.Time
}

// epoch values above this are treated as milliseconds rather than seconds.
const flexMillisThreshold = 1e11

type wrappedSeconds struct {
	Seconds    *int64 `json:"seconds"`
	Nanos      *int64 `json:"nanos"`
	AltSeconds *int64 `json:"_seconds"`
	AltNanos   *int64 `json:"_nanoseconds"`
}

// UnmarshalJSON implements the tagged-union conversion.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		t.Time = parseTimeString(raw)
	case '{':
		var wrapped wrappedSeconds
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil
		}
		seconds, nanos := wrapped.Seconds, wrapped.Nanos
		if seconds == nil {
			seconds, nanos = wrapped.AltSeconds, wrapped.AltNanos
		}
		if seconds != nil {
			var n int64
			if nanos != nil {
				n = *nanos
			}
			t.Time = time.Unix(*seconds, n).UTC()
		}
	default:
		var raw float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		t.Time = parseEpoch(raw)
	}
	return nil
}

// MarshalJSON emits RFC3339; the zero instant serializes as null.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func parseEpoch(raw float64) time.Time {
	if raw <= 0 {
		return time.Time{}
	}
	if raw > flexMillisThreshold {
		return time.UnixMilli(int64(raw)).UTC()
	}
	sec := int64(raw)
	nsec := int64((raw - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func parseTimeString(raw string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
