package redact

import (
	"testing"
)

func TestSanitizeRedactsSensitiveFields(t *testing.T) {
	input := map[string]any{
		"apiKey": "sk-123",
		"prompt": "hi",
	}

	out, ok := Sanitize(input).(map[string]any)
	if !ok {
		t.Fatalf("expected map output, got %T", Sanitize(input))
	}

	if out["apiKey"] != Marker {
		t.Errorf("expected apiKey to be redacted, got %v", out["apiKey"])
	}
	if out["prompt"] != "hi" {
		t.Errorf("expected prompt to pass through, got %v", out["prompt"])
	}
}

func TestSanitizeRecursesNestedStructuresAndArrays(t *testing.T) {
	input := map[string]any{
		"config": map[string]any{
			"auth_token": "abc",
			"providers": []any{
				map[string]any{
					"name":       "openai",
					"secret_key": "sk-999",
				},
				map[string]any{
					"name":     "anthropic",
					"password": "hunter2",
				},
			},
		},
		"depth": map[string]any{
			"deeper": map[string]any{
				"bearerToken": "xyz",
				"model":       "gpt-4",
			},
		},
	}

	out := Sanitize(input).(map[string]any)

	cfg := out["config"].(map[string]any)
	if cfg["auth_token"] != Marker {
		t.Errorf("expected auth_token redacted, got %v", cfg["auth_token"])
	}

	providers := cfg["providers"].([]any)
	first := providers[0].(map[string]any)
	if first["secret_key"] != Marker {
		t.Errorf("expected secret_key redacted, got %v", first["secret_key"])
	}
	if first["name"] != "openai" {
		t.Errorf("expected name untouched, got %v", first["name"])
	}
	second := providers[1].(map[string]any)
	if second["password"] != Marker {
		t.Errorf("expected password redacted, got %v", second["password"])
	}

	deeper := out["depth"].(map[string]any)["deeper"].(map[string]any)
	if deeper["bearerToken"] != Marker {
		t.Errorf("expected bearerToken redacted, got %v", deeper["bearerToken"])
	}
	if deeper["model"] != "gpt-4" {
		t.Errorf("expected model untouched, got %v", deeper["model"])
	}
}

func TestSanitizeNeverFailsOnMalformedInput(t *testing.T) {
	// channels cannot be serialized; the value must pass through untouched
	ch := make(chan int)
	if out := Sanitize(ch); out != any(ch) {
		t.Errorf("expected unserializable value passed through, got %v", out)
	}

	if out := Sanitize(nil); out != nil {
		t.Errorf("expected nil to stay nil, got %v", out)
	}

	if out := Sanitize("plain string"); out != "plain string" {
		t.Errorf("expected scalar passthrough, got %v", out)
	}
}

func TestSanitizeRedactsAroundUnserializableSiblings(t *testing.T) {
	ch := make(chan int)
	input := map[string]any{
		"apiKey": "sk-123",
		"prompt": "hi",
		"ch":     ch,
		"nested": map[string]any{
			"password": "hunter2",
			"conn":     make(chan int),
		},
		"list": []any{
			map[string]any{"auth_token": "abc", "w": make(chan int)},
		},
	}

	out := Sanitize(input).(map[string]any)

	if out["apiKey"] != Marker {
		t.Errorf("expected apiKey redacted despite unserializable sibling, got %v", out["apiKey"])
	}
	if out["prompt"] != "hi" {
		t.Errorf("expected prompt untouched, got %v", out["prompt"])
	}
	if out["ch"] != any(ch) {
		t.Errorf("expected unserializable leaf passed through, got %v", out["ch"])
	}

	nested := out["nested"].(map[string]any)
	if nested["password"] != Marker {
		t.Errorf("expected nested password redacted, got %v", nested["password"])
	}

	entry := out["list"].([]any)[0].(map[string]any)
	if entry["auth_token"] != Marker {
		t.Errorf("expected auth_token redacted inside array, got %v", entry["auth_token"])
	}
}

func TestSensitiveFieldMatching(t *testing.T) {
	s := New()

	tests := []struct {
		field     string
		sensitive bool
	}{
		{"password", true},
		{"Password", true},
		{"user_password", true},
		{"apiKey", true},
		{"api_key", true},
		{"secretKey", true},
		{"access_token", true},
		{"Authorization", true},
		{"credentials", true},
		{"bearer", true},
		{"prompt", false},
		{"model", false},
		{"keyboard", false},
		{"temperature", false},
	}

	for _, tt := range tests {
		if got := s.Sensitive(tt.field); got != tt.sensitive {
			t.Errorf("Sensitive(%q) = %v, want %v", tt.field, got, tt.sensitive)
		}
	}
}

func TestSanitizeExtraTerms(t *testing.T) {
	s := New("ssn")

	out := s.Sanitize(map[string]any{
		"ssn":  "123-45-6789",
		"name": "test",
	}).(map[string]any)

	if out["ssn"] != Marker {
		t.Errorf("expected extra term redacted, got %v", out["ssn"])
	}
	if out["name"] != "test" {
		t.Errorf("expected name untouched, got %v", out["name"])
	}
}

func TestSanitizeStructInput(t *testing.T) {
	type request struct {
		APIKey string `json:"api_key"`
		Prompt string `json:"prompt"`
	}

	out, ok := Sanitize(request{APIKey: "sk-123", Prompt: "hi"}).(map[string]any)
	if !ok {
		t.Fatal("expected struct to normalize to a map")
	}
	if out["api_key"] != Marker {
		t.Errorf("expected api_key redacted, got %v", out["api_key"])
	}
	if out["prompt"] != "hi" {
		t.Errorf("expected prompt untouched, got %v", out["prompt"])
	}
}
