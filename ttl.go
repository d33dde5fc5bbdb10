package auth

import (
	"strconv"
	"strings"
	"time"
)

// TTL policy: the configured string is <number><unit> with unit d, h, or
// m. An unrecognized or missing unit means days. A value below the
// unit-specific minimum is replaced by the unit-specific fallback rather
// than rejected, so the system always has a usable TTL and a
// misconfiguration never locks out every session.
const DefaultSessionTTL = 7 * 24 * time.Hour

type ttlRule struct {
	unit     time.Duration
	minimum  float64
	fallback float64
}

var ttlRules = map[string]ttlRule{
	"d": {unit: 24 * time.Hour, minimum: 1, fallback: 7},
	"h": {unit: time.Hour, minimum: 1, fallback: 1},
	"m": {unit: time.Minute, minimum: 10, fallback: 30},
}

// ParseTTL converts a configured TTL string into a duration.
func ParseTTL(s string) time.Duration {
	s = strings.TrimSpace(s)

	var number, unit strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			number.WriteRune(r)
		} else {
			unit.WriteRune(r)
		}
	}

	kind := strings.ToLower(strings.TrimSpace(unit.String()))
	rule, ok := ttlRules[kind]
	if !ok {
		rule = ttlRules["d"]
	}

	count, err := strconv.ParseFloat(number.String(), 64)
	if err != nil || count < rule.minimum {
		count = rule.fallback
	}

	return time.Duration(count * float64(rule.unit))
}
