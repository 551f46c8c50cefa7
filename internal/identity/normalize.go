package identity

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeEmail trims surrounding whitespace and lowercases. Returns "" when
// nothing usable remains.
func NormalizeEmail(raw string) string {
	e := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(e, "@") {
		return ""
	}
	return e
}

// NormalizePhone parses raw into E.164. Invalid or unparseable numbers
// normalize to "" (treated as absent, never an error): a bad phone must not
// fail the whole attendee resolution.
func NormalizePhone(raw, defaultRegion string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// DeriveKey computes the deterministic attendee identity key: the provider's
// external attendee id when present, else the normalized email, else the raw
// name. Returns "" when no fragment is usable.
func DeriveKey(externalAttendeeID, rawEmail, rawName string) string {
	if id := strings.TrimSpace(externalAttendeeID); id != "" {
		return id
	}
	if e := NormalizeEmail(rawEmail); e != "" {
		return e
	}
	return strings.TrimSpace(rawName)
}
