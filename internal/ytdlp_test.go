package internal

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseSRT(t *testing.T) {
	content := "1\r\n00:00:01,000 --> 00:00:04,500\r\nHello there\r\n\r\n" +
		"2\n00:00:04,500 --> 00:00:07,250\nsecond line\ncontinues here\n\n" +
		"garbage block\n\n" +
		"3\n01:02:03,004 --> 01:02:05,000\n   \n"

	got := parseSRT(content)
	if len(got) != 2 {
		t.Fatalf("got %d segments: %+v", len(got), got)
	}
	if got[0].Text != "Hello there" || got[0].Start != time.Second || got[0].Duration != 3500*time.Millisecond {
		t.Errorf("segment 0 = %+v", got[0])
	}
	if got[1].Text != "second line continues here" || got[1].Start != 4500*time.Millisecond {
		t.Errorf("segment 1 = %+v", got[1])
	}
}

func TestDedupeSegments(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"repeat", []string{"about Go", "about Go", "today"}, []string{"about Go", "today"}},
		{"rolling", []string{"we are going", "we are going to talk"}, []string{"we are going", "to talk"}},
		{"substring kept", []string{"no", "I do not know"}, []string{"no", "I do not know"}},
		{"shorter kept", []string{"we are going to talk", "going"}, []string{"we are going to talk", "going"}},
		{"no word split", []string{"we are going", "we are goings"}, []string{"we are going", "we are goings"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupeSegments(segs(tt.in...))
			var texts []string
			for _, s := range got {
				texts = append(texts, s.Text)
			}
			if strings.Join(texts, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", texts, tt.want)
			}
		})
	}
}

func TestDedupeSegments_KeepsSpokenWords(t *testing.T) {
	joined := JoinSegments(dedupeSegments(segs("no", "I do not know", "we are going", "we are going to talk")))
	for _, word := range []string{"no", "know", "going", "talk"} {
		if !slices.Contains(strings.Fields(joined), word) {
			t.Errorf("word %q lost from %q", word, joined)
		}
	}
	if joined != "no I do not know we are going to talk" {
		t.Errorf("joined = %q", joined)
	}
}

func TestClassifyYtdlpError(t *testing.T) {
	exit := errors.New("exit status 1")
	tests := []struct {
		stderr string
		want   TranscriptErrorKind
		reason string
	}{
		{"ERROR: [youtube] abc: Video unavailable", KindVideoUnavailable, ""},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", KindVideoUnavailable, ""},
		{"ERROR: [youtube] abc: Sign in to confirm you're not a bot", KindIPBlocked, ""},
		{"WARNING: x\nERROR: Unable to download webpage: HTTP Error 429: Too Many Requests", KindIPBlocked, ""},
		{"ERROR: [youtube] abc: This live event will begin in 3 hours.", KindUnplayable, "[youtube] abc: This live event will begin in 3 hours."},
		{"ERROR: [youtube] abc: Subtitles are disabled for this video", KindTranscriptsDisabled, ""},
		{"ERROR: Unable to extract uploader id", KindGeneric, "Unable to extract uploader id"},
	}
	for _, tt := range tests {
		err := classifyYtdlpError("abc", exit, tt.stderr)
		var te *TranscriptError
		if !errors.As(err, &te) {
			t.Fatalf("%q: not a TranscriptError", tt.stderr)
		}
		if te.Kind != tt.want {
			t.Errorf("%q: kind = %s, want %s", tt.stderr, te.Kind, tt.want)
		}
		if te.Reason != tt.reason {
			t.Errorf("%q: reason = %q, want %q", tt.stderr, te.Reason, tt.reason)
		}
		if !errors.Is(err, exit) {
			t.Errorf("%q: should wrap the exit error", tt.stderr)
		}
	}
}

func TestVideoMetadata_Captions(t *testing.T) {
	var m VideoMetadata
	raw := `{"id":"abc","channel":"","uploader":"Someone","upload_date":"20250314",
		"subtitles":{"pl":[{"ext":"vtt"}]},"automatic_captions":{"en-US":[{"ext":"srv1"}]}}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	if !m.HasCaptions() {
		t.Error("HasCaptions = false")
	}
	for lang, want := range map[string]bool{"pl": true, "en": true, "EN": true, "de": false, "e": false} {
		if got := m.HasCaptionLanguage(lang); got != want {
			t.Errorf("HasCaptionLanguage(%q) = %v", lang, got)
		}
	}
	if got := m.Published(); got != time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Published = %s", got)
	}
	if m.Author() != "Someone" {
		t.Errorf("Author = %q", m.Author())
	}

	var empty VideoMetadata
	if empty.HasCaptions() || !empty.Published().IsZero() {
		t.Error("empty metadata should have no captions and no date")
	}
}
