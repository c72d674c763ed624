package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"action_type": "NAVIGATE"}`,
			want:    `{"action_type": "NAVIGATE"}`,
		},
		{
			name: "fenced json block",
			content: "Here is the analysis:\n```json\n{\"action_type\": \"NAVIGATE\"}\n```\nDone.",
			want: `{"action_type": "NAVIGATE"}`,
		},
		{
			name: "fenced block without language tag",
			content: "```\n{\"key\": \"value\"}\n```",
			want: `{"key": "value"}`,
		},
		{
			name:    "object embedded in prose",
			content: `Sure! The result is {"key": "value"} as requested.`,
			want:    `{"key": "value"}`,
		},
		{
			name:    "no json at all",
			content: "I cannot answer that.",
			want:    "",
		},
		{
			name:    "empty content",
			content: "",
			want:    "",
		},
		{
			name:    "trailing comma removed",
			content: `{"a": 1, "b": 2,}`,
			want:    `{"a": 1, "b": 2}`,
		},
		{
			name: "line comments stripped",
			content: "{\n\"a\": 1, // the first field\n\"b\": \"http://example.com\"\n}",
			want: "{\n\"a\": 1,\n\"b\": \"http://example.com\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
