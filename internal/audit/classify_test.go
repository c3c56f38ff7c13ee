package audit

import (
	"testing"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		output any
		want   domain.TransformationType
	}{
		{
			name:   "creation from nil",
			input:  nil,
			output: map[string]any{"a": 1},
			want:   domain.TransformationCreation,
		},
		{
			name:   "creation from empty map",
			input:  map[string]any{},
			output: []any{"x"},
			want:   domain.TransformationCreation,
		},
		{
			name:   "deletion to nil",
			input:  map[string]any{"a": 1},
			output: nil,
			want:   domain.TransformationDeletion,
		},
		{
			name:   "deletion to empty string",
			input:  "payload",
			output: "",
			want:   domain.TransformationDeletion,
		},
		{
			name:   "object to array",
			input:  map[string]any{"a": 1},
			output: []any{1},
			want:   domain.TransformationTypeConversion,
		},
		{
			name:   "scalar to object",
			input:  "gpt-4",
			output: map[string]any{"model": "gpt-4"},
			want:   domain.TransformationTypeConversion,
		},
		{
			name:   "field added",
			input:  map[string]any{"model": "gpt-4"},
			output: map[string]any{"model": "gpt-4", "provider": "openai"},
			want:   domain.TransformationModification,
		},
		{
			name:   "field removed",
			input:  map[string]any{"model": "gpt-4", "stream": true},
			output: map[string]any{"model": "gpt-4"},
			want:   domain.TransformationStructureChange,
		},
		{
			name:   "value changed",
			input:  map[string]any{"model": "gpt-4"},
			output: map[string]any{"model": "claude-3"},
			want:   domain.TransformationModification,
		},
		{
			name:   "scalar edit",
			input:  "hello",
			output: "hello world",
			want:   domain.TransformationModification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _, _ := classify(tt.input, tt.output)
			if got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
