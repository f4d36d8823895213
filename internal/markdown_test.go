package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func testNoteVideo() Video {
	return Video{
		ID:        "abc123def45",
		URL:       testVideoURL,
		Title:     `Rust vs Go: "which" is faster? | 2025`,
		Author:    "Mr. Code & Co",
		Published: time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC),
		Category:  "IT",
	}
}

func readFrontMatter(t *testing.T, path string) (map[string]any, string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.SplitN(string(data), "---\n", 3)
	if len(parts) != 3 || parts[0] != "" {
		t.Fatalf("no front matter in %q", data)
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(parts[1]), &meta); err != nil {
		t.Fatal(err)
	}
	return meta, parts[2]
}

func TestNoteWriter_Save(t *testing.T) {
	dir := t.TempDir()
	w := NewNoteWriter(dir)
	w.now = func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) }

	path, err := w.Save(Note{Video: testNoteVideo(), Body: "# Notes\n\nbody text", Description: "A: short, summary"})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "IT", "Mr_Code__Co", "Rust_vs_Go_which_is_faster__2025.md")
	if path != want {
		t.Errorf("path = %s\nwant  %s", path, want)
	}

	meta, body := readFrontMatter(t, path)
	if meta["title"] != testNoteVideo().Title || meta["author"] != "[[Mr. Code & Co]]" {
		t.Errorf("meta = %v", meta)
	}
	if meta["published"] != "2025-05-30" || meta["created"] != "2025-06-02" || meta["source"] != testVideoURL {
		t.Errorf("dates/source = %v", meta)
	}
	if meta["description"] != "A: short, summary" {
		t.Errorf("description = %v", meta["description"])
	}
	if body != "\n# Notes\n\nbody text" {
		t.Errorf("body = %q", body)
	}
}

func TestNoteWriter_Paths(t *testing.T) {
	w := NewNoteWriter("/s")
	v := testNoteVideo()

	if got := w.NotePath(v, "gemma3"); filepath.Base(got) != "Rust_vs_Go_which_is_faster__2025_gemma3.md" {
		t.Errorf("suffix path = %s", got)
	}
	v.Category = ""
	if got := w.NotePath(v, ""); filepath.Dir(got) != "/s" {
		t.Errorf("uncategorized notes go to the root, got %s", got)
	}

	long := strings.Repeat("ż", 200)
	if got := SanitizeTitle(long); len([]rune(got)) != 150 {
		t.Errorf("title not capped: %d runes", len([]rune(got)))
	}
	if got := SanitizeTitle("Zażółć gęślą jaźń"); got != "Zażółć_gęślą_jaźń" {
		t.Errorf("unicode letters should survive, got %q", got)
	}
	if _, err := NewNoteWriter("").Save(Note{Video: v}); err != ErrNoSummariesPath {
		t.Errorf("empty dir err = %v", err)
	}
}

func TestNoteSuffix(t *testing.T) {
	tests := []struct {
		key   ResultKey
		model string
		skip  bool
		want  string
	}{
		{ResultLocal, "gemma3:4b", false, "gemma3"},
		{ResultLocal, "llama3", true, "llama3"},
		{ResultCloud, "gemini-2.5-pro", false, ""},
		{ResultCloud, "gemini-2.5-pro", true, "gemini"},
		{ResultCloud, "sonar", true, "sonar"},
	}
	for _, tt := range tests {
		if got := NoteSuffix(tt.key, tt.model, tt.skip); got != tt.want {
			t.Errorf("NoteSuffix(%s, %q, %v) = %q, want %q", tt.key, tt.model, tt.skip, got, tt.want)
		}
	}
}

func TestAddFrontMatterTag(t *testing.T) {
	dir := t.TempDir()
	path, err := NewNoteWriter(dir).Save(Note{Video: testNoteVideo(), Body: "text\n---\nmore"})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if err := AddFrontMatterTag(path, KindleTag); err != nil {
			t.Fatal(err)
		}
	}
	meta, body := readFrontMatter(t, path)
	tags, _ := meta["tags"].([]any)
	if len(tags) != 1 || tags[0] != KindleTag {
		t.Errorf("tags = %v", meta["tags"])
	}
	if meta["title"] != testNoteVideo().Title {
		t.Errorf("other keys changed: %v", meta)
	}
	if body != "\ntext\n---\nmore" {
		t.Errorf("body = %q", body)
	}
}

func TestAddFrontMatterTag_ScalarAndMissing(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"scalar":  "---\ntitle: x\ntags: existing\n---\nbody",
		"null":    "---\ntitle: x\ntags:\n---\nbody",
		"missing": "---\ntitle: x\n---\nbody",
	}
	for name, content := range tests {
		path := filepath.Join(dir, name+".md")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if err := AddFrontMatterTag(path, "#t"); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		meta, _ := readFrontMatter(t, path)
		tags, _ := meta["tags"].([]any)
		if tags[len(tags)-1] != "#t" {
			t.Errorf("%s: tags = %v", name, meta["tags"])
		}
		if name == "scalar" && (len(tags) != 2 || tags[0] != "existing") {
			t.Errorf("scalar tag lost: %v", tags)
		}
	}

	plain := filepath.Join(dir, "plain.md")
	os.WriteFile(plain, []byte("no front matter"), 0644)
	if err := AddFrontMatterTag(plain, "#t"); err == nil {
		t.Error("expected error without front matter")
	}
}
