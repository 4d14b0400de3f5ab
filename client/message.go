package client

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// parseErrorBody decodes an error response. Anything that is not a JSON
// object degrades to an empty object.
func parseErrorBody(raw []byte) map[string]any {
	body := map[string]any{}
	if len(raw) == 0 {
		return body
	}
	if err := sonic.ConfigStd.Unmarshal(raw, &body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// errorMessage derives a human-readable message from an error body.
//
// Precedence: a validation list under "detail", a string "detail", a
// "detail.message", then "error.message" and "message", else a generic
// message naming the status.
func errorMessage(status int, body map[string]any) string {
	fallback := fmt.Sprintf("Request failed with status %d", status)

	if detail, ok := body["detail"]; ok && detail != nil {
		switch d := detail.(type) {
		case []any:
			return validationMessage(d)
		case string:
			if d != "" {
				return d
			}
		case map[string]any:
			if msg, ok := d["message"].(string); ok && msg != "" {
				return msg
			}
		}
		return fallback
	}
	if nested, ok := body["error"].(map[string]any); ok {
		if msg, ok := nested["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	return fallback
}

// validationMessage renders entries shaped like {"loc": [...], "msg": "..."}
// as "loc.path: msg" joined with ", ".
func validationMessage(entries []any) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		item, _ := entry.(map[string]any)
		field := locPath(item["loc"])
		msg, _ := item["msg"].(string)
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, ", ")
}

func locPath(loc any) string {
	segments, ok := loc.([]any)
	if !ok || len(segments) == 0 {
		return "field"
	}
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, fmt.Sprint(s))
	}
	joined := strings.Join(out, ".")
	if joined == "" {
		return "field"
	}
	return joined
}
