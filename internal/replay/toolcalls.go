package replay

import (
	"encoding/json"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

// toolCallContainers are the payload field names scanned for tool
// invocations. Heuristic: payloads come from several provider wire
// formats, so the set is a starting configuration, not a contract.
var toolCallContainers = map[string]bool{
	"tool_calls": true,
	"toolCalls":  true,
	"tool_use":   true,
	"calls":      true,
	"content":    true,
}

// ExtractToolCalls recursively scans a recorded payload for tool-invocation
// shapes: a map carrying an identifier, a name, and arguments in one of the
// known provider encodings (OpenAI function calls, Anthropic tool_use).
func ExtractToolCalls(payload any) []domain.ToolCall {
	shaped := normalizePayload(payload)
	var calls []domain.ToolCall
	collectToolCalls(shaped, false, &calls)
	return calls
}

func collectToolCalls(v any, inContainer bool, calls *[]domain.ToolCall) {
	switch val := v.(type) {
	case map[string]any:
		if inContainer {
			if call, ok := asToolCall(val); ok {
				*calls = append(*calls, call)
				return
			}
		}
		for key, child := range val {
			collectToolCalls(child, toolCallContainers[key], calls)
		}
	case []any:
		for _, child := range val {
			collectToolCalls(child, inContainer, calls)
		}
	}
}

// asToolCall decodes a map as a tool call if it has the required shape.
func asToolCall(m map[string]any) (domain.ToolCall, bool) {
	call := domain.ToolCall{
		ID:   stringField(m, "id", "tool_call_id"),
		Name: stringField(m, "name"),
	}

	// OpenAI encoding nests name/arguments under "function"
	if fn, ok := m["function"].(map[string]any); ok {
		if call.Name == "" {
			call.Name = stringField(fn, "name")
		}
		call.Arguments = fn["arguments"]
	}

	// Anthropic tool_use blocks carry "input"
	if call.Arguments == nil {
		if input, ok := m["input"]; ok {
			call.Arguments = input
		} else if args, ok := m["arguments"]; ok {
			call.Arguments = args
		}
	}

	if typ := stringField(m, "type"); typ != "" && typ != "function" && typ != "tool_use" {
		return domain.ToolCall{}, false
	}
	if call.ID == "" || call.Name == "" {
		return domain.ToolCall{}, false
	}
	return call, true
}

// findResultValue recursively scans a recorded payload for a result shape
// matching the call id (preferred) or the call name.
func findResultValue(payload any, callID, name string) (any, bool) {
	shaped := normalizePayload(payload)
	return searchResult(shaped, callID, name)
}

func searchResult(v any, callID, name string) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		if matchesResult(val, callID, name) {
			return resultValue(val), true
		}
		for _, child := range val {
			if value, ok := searchResult(child, callID, name); ok {
				return value, true
			}
		}
	case []any:
		for _, child := range val {
			if value, ok := searchResult(child, callID, name); ok {
				return value, true
			}
		}
	}
	return nil, false
}

// matchesResult reports whether a map looks like the recorded result of the
// call. Identifier match is authoritative; name match is the fallback.
func matchesResult(m map[string]any, callID, name string) bool {
	if callID != "" {
		if stringField(m, "tool_call_id", "tool_use_id") == callID {
			return true
		}
		// a bare "id" only counts when the shape is explicitly a result
		if stringField(m, "type") == "tool_result" && stringField(m, "id") == callID {
			return true
		}
	}
	if name != "" && stringField(m, "name") == name {
		_, hasResult := m["result"]
		_, hasOutput := m["output"]
		_, hasContent := m["content"]
		return hasResult || hasOutput || hasContent
	}
	return false
}

// resultValue extracts the payload of a matched result map.
func resultValue(m map[string]any) any {
	for _, key := range []string{"result", "output", "content"} {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return m
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// normalizePayload round-trips a payload through JSON so the scans only see
// map/slice/scalar shapes. Unserializable payloads yield no matches.
func normalizePayload(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
