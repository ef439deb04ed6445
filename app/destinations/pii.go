package destinations

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// piiFields maps a normalized user-data field to the event-data keys that may carry it
var piiFields = map[string][]string{
	"email":       {"email", "em"},
	"phone":       {"phone", "phone_number", "phoneNumber", "ph"},
	"first_name":  {"firstName", "first_name", "fn"},
	"last_name":   {"lastName", "last_name", "ln"},
	"city":        {"city", "ct"},
	"state":       {"state", "st"},
	"zip":         {"zip", "zipCode", "zip_code", "postalCode", "postal_code", "zp"},
	"country":     {"country"},
	"external_id": {"externalId", "external_id", "userId", "user_id"},
}

// clickIDKeys are passed through to Meta verbatim and kept out of custom data
var clickIDKeys = map[string][]string{
	"fbc": {"fbc", "_fbc"},
	"fbp": {"fbp", "_fbp"},
}

// HashPII returns the hex SHA-256 of the trimmed lower-cased value.
// Empty values are not hashed.
func HashPII(value string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), true
}

// hashedUserData hashes every PII field present in data, keyed by the normalized field name
func hashedUserData(data map[string]any) map[string]string {
	out := make(map[string]string)
	for field, keys := range piiFields {
		raw, ok := firstValue(data, keys)
		if !ok {
			continue
		}
		if hashed, ok := HashPII(raw); ok {
			out[field] = hashed
		}
	}
	return out
}

// scrubbedCopy returns data without PII and click-id keys
func scrubbedCopy(data map[string]any) map[string]any {
	drop := make(map[string]struct{})
	for _, keys := range piiFields {
		for _, k := range keys {
			drop[k] = struct{}{}
		}
	}
	for _, keys := range clickIDKeys {
		for _, k := range keys {
			drop[k] = struct{}{}
		}
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, skip := drop[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

func firstValue(data map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		s := stringify(v)
		if strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool, map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
