package internal

import "testing"

func TestProcessResponse(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		firstChunk bool
		wantBody   string
		wantDesc   string
	}{
		{
			name:       "inline",
			text:       "DESCRIPTION: This is a description\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "This is a description",
		},
		{
			name:       "deferred",
			text:       "DESCRIPTION:\n\nActual desc line.\n\nRest of body.",
			firstChunk: true,
			wantBody:   "\nRest of body.",
			wantDesc:   "Actual desc line.",
		},
		{
			name:       "not first chunk",
			text:       "DESCRIPTION:\n\nActual desc line.\n\nRest of body.",
			firstChunk: false,
			wantBody:   "DESCRIPTION:\n\nActual desc line.\n\nRest of body.",
			wantDesc:   "",
		},
		{
			name:       "no marker",
			text:       "# Heading\n\nSome text\nmore text\n",
			firstChunk: true,
			wantBody:   "# Heading\n\nSome text\nmore text\n",
			wantDesc:   "",
		},
		{
			name:       "lower case",
			text:       " description:  lower case\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "lower case",
		},
		{
			name:       "spaced colon",
			text:       "  DESCRIPTION :  spaced colon\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "spaced colon",
		},
		{
			name:       "polish label",
			text:       "\tOpis:  mixed case polish\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "mixed case polish",
		},
		{
			name:       "bold label",
			text:       "**DESCRIPTION:** Bold label\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "Bold label",
		},
		{
			name:       "bold marker with value on next line",
			text:       "**DESCRIPTION:**\nNext line value\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "Next line value",
		},
		{
			name:       "preamble before marker",
			text:       "Sure, here you go.\nDESCRIPTION: After preamble\nContent",
			firstChunk: true,
			wantBody:   "Content",
			wantDesc:   "After preamble",
		},
		{
			name:       "marker with nothing after",
			text:       "DESCRIPTION:\n\n",
			firstChunk: true,
			wantBody:   "",
			wantDesc:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, desc := ProcessResponse(tt.text, tt.firstChunk)
			if body != tt.wantBody {
				t.Errorf("ProcessResponse() body = %q, want %q", body, tt.wantBody)
			}
			if desc != tt.wantDesc {
				t.Errorf("ProcessResponse() description = %q, want %q", desc, tt.wantDesc)
			}
		})
	}
}
