package exchange

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare array",
			input: `[{"classification": "Level 1", "rate": "23.50"}]`,
			want:  `[{"classification": "Level 1", "rate": "23.50"}]`,
		},
		{
			name:  "markdown fence",
			input: "```json\n[{\"classification\": \"L1\"}]\n```",
			want:  `[{"classification": "L1"}]`,
		},
		{
			name:  "prose around array",
			input: `Here are the rates I found: [{"rate": "23.50"}] Let me know if you need more.`,
			want:  `[{"rate": "23.50"}]`,
		},
		{
			name:  "empty array",
			input: `The document contains no rate table. []`,
			want:  `[]`,
		},
		{
			name:  "object before array picks object",
			input: `{"rates": [{"rate": "1"}]}`,
			want:  `{"rates": [{"rate": "1"}]}`,
		},
		{
			name:  "brackets inside strings",
			input: `[{"notes": "see clause [4.2] for {details}"}]`,
			want:  `[{"notes": "see clause [4.2] for {details}"}]`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `[{"notes": "the \"standard\" rate"}]`,
			want:  `[{"notes": "the \"standard\" rate"}]`,
		},
		{
			name:    "no json at all",
			input:   "I could not find any rates in this document.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			input:   `[{"rate": "1"`,
			wantErr: true,
		},
		{
			name:    "empty response",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractJSON(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractJSON_DecodesToRates(t *testing.T) {
	response := "Sure! Here is the wage table:\n```json\n" +
		`[{"classification": "Level 1", "rate": "23.50", "effective_date": "2024-07-01", "notes": ""}]` +
		"\n```"

	jsonStr, err := extractJSON(response)
	if err != nil {
		t.Fatalf("extractJSON() error = %v", err)
	}

	var rates []ExtractedPayRate
	if err := json.Unmarshal([]byte(jsonStr), &rates); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("rates = %d, want 1", len(rates))
	}
	if rates[0].Classification != "Level 1" || rates[0].Rate != "23.50" {
		t.Errorf("rate = %+v", rates[0])
	}
	if rates[0].EffectiveDate != "2024-07-01" {
		t.Errorf("EffectiveDate = %q", rates[0].EffectiveDate)
	}
}

func TestNewExtractionClient_Validation(t *testing.T) {
	if _, err := NewExtractionClient(ExtractionConfig{Model: "m"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewExtractionClient(ExtractionConfig{Endpoint: "http://localhost:11434/v1"}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewExtractionClient(ExtractionConfig{Endpoint: "http://localhost:11434/v1/", Model: "m"}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
