package replay

import (
	"testing"
)

func TestExtractToolCallsOpenAIShape(t *testing.T) {
	payload := map[string]any{
		"model": "gpt-4",
		"tool_calls": []any{
			map[string]any{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "get_weather",
					"arguments": `{"city":"Austin"}`,
				},
			},
			map[string]any{
				"id":   "call_2",
				"type": "function",
				"function": map[string]any{
					"name": "get_time",
				},
			},
		},
	}

	calls := ExtractToolCalls(payload)
	if len(calls) != 2 {
		t.Fatalf("extracted %d calls, want 2", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "get_weather" {
		t.Errorf("first call = %+v", calls[0])
	}
	if args, ok := calls[0].Arguments.(string); !ok || args != `{"city":"Austin"}` {
		t.Errorf("arguments = %v", calls[0].Arguments)
	}
}

func TestExtractToolCallsAnthropicShape(t *testing.T) {
	payload := map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "let me check"},
			map[string]any{
				"type":  "tool_use",
				"id":    "toolu_1",
				"name":  "get_weather",
				"input": map[string]any{"city": "Austin"},
			},
		},
	}

	calls := ExtractToolCalls(payload)
	if len(calls) != 1 {
		t.Fatalf("extracted %d calls, want 1", len(calls))
	}
	if calls[0].ID != "toolu_1" || calls[0].Name != "get_weather" {
		t.Errorf("call = %+v", calls[0])
	}
	input, ok := calls[0].Arguments.(map[string]any)
	if !ok || input["city"] != "Austin" {
		t.Errorf("arguments = %v", calls[0].Arguments)
	}
}

func TestExtractToolCallsNested(t *testing.T) {
	payload := map[string]any{
		"response": map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"toolCalls": []any{
							map[string]any{
								"id":   "call_deep",
								"name": "lookup",
							},
						},
					},
				},
			},
		},
	}

	calls := ExtractToolCalls(payload)
	if len(calls) != 1 || calls[0].ID != "call_deep" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestExtractToolCallsIgnoresNonCallShapes(t *testing.T) {
	tests := []struct {
		desc    string
		payload any
	}{
		{"outside container", map[string]any{
			"message": map[string]any{"id": "call_1", "name": "get_weather"},
		}},
		{"missing id", map[string]any{
			"tool_calls": []any{map[string]any{"name": "get_weather"}},
		}},
		{"missing name", map[string]any{
			"tool_calls": []any{map[string]any{"id": "call_1"}},
		}},
		{"wrong type", map[string]any{
			"content": []any{map[string]any{"type": "text", "id": "x", "name": "y"}},
		}},
		{"nil payload", nil},
		{"scalar payload", "just a string"},
	}
	for _, tt := range tests {
		if calls := ExtractToolCalls(tt.payload); len(calls) != 0 {
			t.Errorf("%s: extracted %+v, want none", tt.desc, calls)
		}
	}
}

func TestExtractToolCallsFromStruct(t *testing.T) {
	type fnCall struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
	type toolCall struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function fnCall `json:"function"`
	}
	payload := struct {
		ToolCalls []toolCall `json:"tool_calls"`
	}{
		ToolCalls: []toolCall{{ID: "call_s", Type: "function", Function: fnCall{Name: "search"}}},
	}

	calls := ExtractToolCalls(payload)
	if len(calls) != 1 || calls[0].ID != "call_s" || calls[0].Name != "search" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestFindResultValueByCallID(t *testing.T) {
	payload := map[string]any{
		"results": []any{
			map[string]any{
				"tool_call_id": "call_other",
				"result":       "wrong",
			},
			map[string]any{
				"tool_call_id": "call_1",
				"result":       map[string]any{"temp_f": 98},
			},
		},
	}

	value, ok := findResultValue(payload, "call_1", "get_weather")
	if !ok {
		t.Fatal("result not found")
	}
	result, ok := value.(map[string]any)
	if !ok || result["temp_f"] != 98 {
		t.Errorf("value = %v", value)
	}
}

func TestFindResultValueAnthropicToolResult(t *testing.T) {
	payload := map[string]any{
		"content": []any{
			map[string]any{
				"type":    "tool_result",
				"id":      "toolu_1",
				"content": "72 degrees and sunny",
			},
		},
	}

	value, ok := findResultValue(payload, "toolu_1", "")
	if !ok {
		t.Fatal("result not found")
	}
	if value != "72 degrees and sunny" {
		t.Errorf("value = %v", value)
	}
}

func TestFindResultValueNameFallback(t *testing.T) {
	payload := map[string]any{
		"tool_results": []any{
			map[string]any{
				"name":   "get_weather",
				"output": "sunny",
			},
		},
	}

	// no id matches, the name fallback applies
	value, ok := findResultValue(payload, "call_unknown", "get_weather")
	if !ok {
		t.Fatal("result not found via name fallback")
	}
	if value != "sunny" {
		t.Errorf("value = %v", value)
	}
}

func TestFindResultValueNameWithoutResultFieldDoesNotMatch(t *testing.T) {
	// a map that merely mentions the tool name is not a result
	payload := map[string]any{
		"tools": []any{
			map[string]any{
				"name":        "get_weather",
				"description": "returns the weather",
			},
		},
	}

	if _, ok := findResultValue(payload, "", "get_weather"); ok {
		t.Fatal("a tool definition must not match as a result")
	}
}

func TestFindResultValueNoMatch(t *testing.T) {
	payload := map[string]any{
		"results": []any{
			map[string]any{"tool_call_id": "call_other", "result": "x"},
		},
	}
	if _, ok := findResultValue(payload, "call_1", "get_weather"); ok {
		t.Fatal("unexpected match")
	}
}
