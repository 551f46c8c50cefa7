package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Known external_refs keys. Unknown keys are stored as-is for
// forward-compatibility; known keys are type-checked at the boundary.
const (
	RefZoomMeetingID      = "zoom_meeting_id"
	RefGoogleEventID      = "google_event_id"
	RefFirefliesMeetingID = "fireflies_meeting_id"
	RefCalendlyEventID    = "calendly_event_id"
	RefLegacyID           = "legacy_id"
)

var knownRefKeys = map[string]bool{
	RefZoomMeetingID:      true,
	RefGoogleEventID:      true,
	RefFirefliesMeetingID: true,
	RefCalendlyEventID:    true,
	RefLegacyID:           true,
}

// NormalizeRefs converts a provider-supplied refs map (string or numeric
// values) into the canonical string form. Known keys with a non-scalar value
// are rejected; unknown keys with non-scalar values are dropped. Nil input
// yields an empty, non-nil map (the external_refs invariant).
func NormalizeRefs(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		s, ok := refValueString(v)
		if !ok {
			if knownRefKeys[k] {
				return nil, fmt.Errorf("external ref %q: unsupported value type %T", k, v)
			}
			continue
		}
		if s == "" {
			continue
		}
		out[k] = s
	}
	return out, nil
}

func refValueString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64: // encoding/json numbers
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// UnionRefs merges src into dst: existing dst keys win, new src keys are
// added. dst may be nil; the merged map is returned.
func UnionRefs(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = map[string]string{}
	}
	for k, v := range src {
		if _, exists := dst[k]; !exists && v != "" {
			dst[k] = v
		}
	}
	return dst
}
