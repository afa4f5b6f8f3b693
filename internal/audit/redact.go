package audit

import "strings"

// RedactionMarker replaces any value whose key matches the sensitive
// denylist before storage.
const RedactionMarker = "[REDACTED]"

var sensitiveKeyFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"ssn",
	"social_security",
	"credit_card",
	"card_number",
	"cvv",
	"bank_account",
	"routing_number",
	"authorization",
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Redact returns a copy of details with every value under a sensitive key
// replaced by RedactionMarker, at any nesting depth, including maps inside
// slices. The input map is never modified.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if sensitiveKey(key) {
			out[key] = RedactionMarker
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Redact(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i] = Redact(item)
		}
		return out
	default:
		return value
	}
}
