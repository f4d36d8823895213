package internal

import (
	"path/filepath"
	"testing"
)

func TestGetVideoID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", false},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ/", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/live/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/playlist?list=PL123", "", true},
		{"https://vimeo.com/12345", "", true},
		{"https://www.youtube.com/", "", true},
	}
	for _, tt := range tests {
		got, err := getVideoID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("getVideoID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("getVideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParseArg(t *testing.T) {
	url, id, err := ParseArg("dQw4w9WgXcQ")
	if err != nil || id != "dQw4w9WgXcQ" || url != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("ParseArg(id) = %q, %q, %v", url, id, err)
	}
	url, id, err = ParseArg(" https://youtu.be/dQw4w9WgXcQ ")
	if err != nil || id != "dQw4w9WgXcQ" || url != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("ParseArg(url) = %q, %q, %v", url, id, err)
	}
	if _, _, err := ParseArg("summarize"); err == nil {
		t.Error("a bare word should not parse as a video")
	}
}

func TestSaveAndLoadTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcripts")
	path, err := SaveTranscript("abc", "some words\n", dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "abc.txt" {
		t.Errorf("path = %s", path)
	}
	text, ok := LoadTranscript("abc", dir)
	if !ok || text != "some words" {
		t.Errorf("LoadTranscript = %q, %v", text, ok)
	}
	if _, ok := LoadTranscript("missing", dir); ok {
		t.Error("missing transcript reported as found")
	}
}
