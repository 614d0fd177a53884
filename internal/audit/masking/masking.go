package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose values identify a person.
var sensitiveKeys = map[string]struct{}{
	"recipient_email": {},
	"email":           {},
}

// MaskEmail keeps the first local character and the domain: "alice@example.com" -> "a****@example.com".
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return maskToken
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskMetadata returns a copy of input with personal values masked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[key]; ok {
			return MaskEmail(cast)
		}
		return cast
	case map[string]any:
		return MaskMetadata(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}
