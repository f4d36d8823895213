package internal

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const maxTitleRunes = 150

// ErrNoSummariesPath is returned when notes cannot be saved for lack of
// an output directory
var ErrNoSummariesPath = errors.New("SUMMARIES_PATH is not set")

var (
	windowsReserved = regexp.MustCompile(`[\\/*?:"<>|]`)
	titleUnsafe     = regexp.MustCompile(`[^\p{L}\p{N}_\s.-]`)
	authorUnsafe    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
)

// Note is one analysis result ready to be written
type Note struct {
	Video       Video
	Body        string
	Description string
	// Suffix is appended to the file name after an underscore
	Suffix string
}

type frontMatter struct {
	Title       string   `yaml:"title"`
	Source      string   `yaml:"source"`
	Author      string   `yaml:"author"`
	Published   string   `yaml:"published"`
	Created     string   `yaml:"created"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// NoteWriter saves notes as markdown with YAML front matter
type NoteWriter struct {
	dir string
	now func() time.Time
}

// NewNoteWriter writes below dir
func NewNoteWriter(dir string) *NoteWriter {
	return &NoteWriter{dir: dir, now: time.Now}
}

// Dir returns the summaries root
func (w *NoteWriter) Dir() string {
	return w.dir
}

// NotePath returns where a note for video would be written
func (w *NoteWriter) NotePath(video Video, suffix string) string {
	dir := w.dir
	if video.Category != "" {
		dir = filepath.Join(w.dir, video.Category, SanitizeAuthor(video.Author))
	}
	name := SanitizeTitle(video.Title)
	if suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(dir, name+".md")
}

// Save writes the note and returns its absolute path. Existing files with
// the same name are replaced.
func (w *NoteWriter) Save(note Note) (string, error) {
	if w.dir == "" {
		return "", ErrNoSummariesPath
	}
	path := w.NotePath(note.Video, note.Suffix)
	if err := EnsureDirs(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("creating note directory: %w", err)
	}

	meta := frontMatter{
		Title:       note.Video.Title,
		Source:      note.Video.URL,
		Author:      "[[" + note.Video.Author + "]]",
		Published:   note.Video.PublishedDate(),
		Created:     w.now().Format("2006-01-02"),
		Description: note.Description,
		Tags:        []string{},
	}
	content, err := renderNote(meta, note.Body)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("writing note: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func renderNote(meta any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// SanitizeTitle turns a video title into a file name stem
func SanitizeTitle(title string) string {
	s := windowsReserved.ReplaceAllString(title, "")
	s = titleUnsafe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "_")
	if r := []rune(s); len(r) > maxTitleRunes {
		s = string(r[:maxTitleRunes])
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

// SanitizeAuthor turns a channel name into a directory name
func SanitizeAuthor(author string) string {
	s := authorUnsafe.ReplaceAllString(author, "")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		s = "unknown"
	}
	return s
}

// NoteSuffix picks the file name suffix for a result. Local results carry the
// model name without its tag. Cloud results only get one with
// skipVerification, so re-runs don't overwrite the original note.
func NoteSuffix(key ResultKey, model string, skipVerification bool) string {
	switch {
	case key == ResultLocal:
		name, _, _ := strings.Cut(model, ":")
		return name
	case skipVerification:
		name, _, _ := strings.Cut(model, "-")
		return name
	default:
		return ""
	}
}

// WordCount counts whitespace separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// AddFrontMatterTag adds tag to the note's front matter tags if missing.
// Other keys keep their order.
func AddFrontMatterTag(path, tag string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading note: %w", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return fmt.Errorf("no front matter in %s", path)
	}
	end := strings.Index(text[3:], "\n---")
	if end < 0 {
		return fmt.Errorf("malformed front matter in %s", path)
	}
	header, rest := text[4:end+4], text[end+4+len("---"):]

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return fmt.Errorf("parsing front matter: %w", err)
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		doc.Kind = yaml.DocumentNode
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("front matter in %s is not a mapping", path)
	}

	tags := frontMatterValue(root, "tags")
	if tags == nil {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "tags"},
			&yaml.Node{Kind: yaml.SequenceNode})
		tags = root.Content[len(root.Content)-1]
	}
	switch tags.Kind {
	case yaml.SequenceNode:
	case yaml.ScalarNode:
		prev, null := tags.Value, tags.Tag == "!!null"
		*tags = yaml.Node{Kind: yaml.SequenceNode}
		if prev != "" && !null {
			tags.Content = append(tags.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: prev})
		}
	default:
		return fmt.Errorf("unexpected tags value in %s", path)
	}
	for _, n := range tags.Content {
		if n.Value == tag {
			return nil
		}
	}
	tags.Style = 0
	tags.Content = append(tags.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: tag})

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding front matter: %w", err)
	}
	enc.Close()
	buf.WriteString("---")
	buf.WriteString(rest)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing note: %w", err)
	}
	return nil
}

func frontMatterValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
