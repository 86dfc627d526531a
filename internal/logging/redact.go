package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

var secretKeys = map[string]bool{
	"api_key":                   true,
	"apikey":                    true,
	"authorization":             true,
	"gemini_api_key":            true,
	"anchoredit_gemini_api_key": true,
	"x-goog-api-key":            true,
	"key":                       true,
	"token":                     true,
	"secret":                    true,
}

// Document text travels through tool arguments and RPC params; logs keep only
// its size and a short head.
var documentKeys = map[string]bool{
	"content":              true,
	"new_chunk_content":    true,
	"context_before_chunk": true,
	"context_after_chunk":  true,
	"new_content":          true,
}

const documentHead = 40

func RedactValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		return "Bearer " + mask(trimmed[7:])
	}
	return mask(trimmed)
}

// ClipDocument shortens document text to its first line fragment and length.
func ClipDocument(value string) string {
	if len(value) <= documentHead {
		return value
	}
	head := value[:documentHead]
	if i := strings.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	return fmt.Sprintf("%s... (%d bytes)", head, len(value))
}

// RedactAny masks secrets and clips document text anywhere in a decoded
// JSON-like value.
func RedactAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			out[key] = redactField(key, val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, val := range typed {
			out[key] = redactField(key, val).(string)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = RedactAny(val)
		}
		return out
	default:
		return value
	}
}

func redactField(key string, val any) any {
	lower := strings.ToLower(strings.TrimSpace(key))
	switch {
	case secretKeys[lower]:
		return RedactValue(fmt.Sprint(val))
	case documentKeys[lower]:
		if s, ok := val.(string); ok {
			return ClipDocument(s)
		}
	}
	return RedactAny(val)
}

func RedactJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ClipDocument(strings.TrimSpace(string(raw)))
	}
	return RedactAny(payload)
}

func mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
