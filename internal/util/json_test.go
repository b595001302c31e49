package util

import (
	"encoding/json"
	"testing"
)

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain object unchanged",
			input: `{"confidence": 0.8}`,
			want:  `{"confidence": 0.8}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"confidence\": 0.8}\n```",
			want:  `{"confidence": 0.8}`,
		},
		{
			name:  "bare fence with prose around it",
			input: "Here is my verdict:\n```\n{\"issues\": []}\n```\nThanks!",
			want:  `{"issues": []}`,
		},
		{
			name:  "prose without fence",
			input: `Sure. {"confidence": 0.4} Let me know.`,
			want:  `{"confidence": 0.4}`,
		},
		{
			name:  "smart quotes",
			input: "{“issues”: [“missing tests”]}",
			want:  `{"issues": ["missing tests"]}`,
		},
		{
			name:  "no object at all",
			input: "  I cannot evaluate this.  ",
			want:  "I cannot evaluate this.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.input); got != tt.want {
				t.Errorf("SanitizeJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeJSON_ProducesParseableObject(t *testing.T) {
	raw := "```json\n{\n  \"confidence\": 0.9,\n  \"issues\": [\"a\", \"b\"]\n}\n```"

	var v struct {
		Confidence float64  `json:"confidence"`
		Issues     []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(SanitizeJSON(raw)), &v); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if v.Confidence != 0.9 || len(v.Issues) != 2 {
		t.Errorf("decoded = %+v", v)
	}
}
